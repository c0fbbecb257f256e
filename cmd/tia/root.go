package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"tia/internal/config"
	"tia/internal/logging"
	"tia/internal/version"
)

var (
	// repoRootFlag overrides repository root detection
	repoRootFlag string
)

var rootCmd = &cobra.Command{
	Use:   "tia",
	Short: "tia - test-impact analyzer for POM browser-test suites",
	Long: `tia computes which spec files may be affected by a source change set,
so CI runs only the impacted subset of a Page-Object-Model test suite
instead of the entire thing.`,
	Version: version.Info(),
}

func init() {
	rootCmd.SetVersionTemplate("tia version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&repoRootFlag, "repo-root", "",
		"Repository root (default: detected from the working directory)")
}

// mustGetRepoRoot resolves the repository root from the flag, git, or the
// working directory, in that order.
func mustGetRepoRoot() string {
	if repoRootFlag != "" {
		abs, err := absPath(repoRootFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error resolving repo root: %v\n", err)
			os.Exit(1)
		}
		return abs
	}

	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	if out, err := cmd.Output(); err == nil {
		return strings.TrimSpace(string(out))
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving working directory: %v\n", err)
		os.Exit(1)
	}
	return cwd
}

func absPath(path string) (string, error) {
	if strings.HasPrefix(path, "/") {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return cwd + "/" + path, nil
}

// newLogger builds the logger from configuration, quieting human chatter
// for machine formats.
func newLogger(cfg *config.Config, outputFormat string) *logging.Logger {
	level := logging.ParseLevel(cfg.Logging.Level)
	format := logging.HumanFormat
	if cfg.Logging.Format == string(logging.JSONFormat) {
		format = logging.JSONFormat
	}
	if outputFormat == "json" || outputFormat == "yaml" || outputFormat == "list" {
		// Diagnostics already go to stderr; keep them terse for CI parsing
		if level == logging.InfoLevel {
			level = logging.WarnLevel
		}
	}
	return logging.NewLogger(logging.Config{Format: format, Level: level})
}

// resolveProfile loads PROFILES.toml and picks the requested profile,
// falling back to a conventional default layout when none is declared.
func resolveProfile(repoRoot, name string, cfg *config.Config) (*config.Profile, error) {
	file, err := config.LoadProfiles(repoRoot)
	if err != nil {
		return nil, err
	}

	if name == "" {
		name = cfg.DefaultProfile
	}

	if profile, ok := file.Resolve(name); ok {
		profile.ApplyDefaults()
		return profile, nil
	}
	if name != "" {
		return nil, fmt.Errorf("profile %q not declared in %s", name, config.ProfilesDeclarationFile)
	}
	if len(file.Profiles) > 1 {
		return nil, fmt.Errorf("multiple profiles declared; pick one by name (select --profile, profile --name)")
	}

	// No declarations: assume the conventional layout
	profile := &config.Profile{
		Name:              "default",
		TestsRoot:         "tests",
		ChangedSpecPrefix: "tests/",
	}
	profile.ApplyDefaults()
	return profile, nil
}
