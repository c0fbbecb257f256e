package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/cobra"

	"tia/internal/analyzer"
	"tia/internal/config"
	"tia/internal/paths"
	"tia/internal/specmatch"
	"tia/internal/store"
)

var (
	selectBase          string
	selectProfile       string
	selectBias          string
	selectFormat        string
	selectOutput        string
	selectDiffFile      string
	selectCache         bool
	selectNoUntracked   bool
	selectNoWorkingTree bool
)

var selectCmd = &cobra.Command{
	Use:   "select",
	Short: "Select spec files impacted by the current change set",
	Long: `Analyze source changes and compute the subset of spec files whose
behavior may have been altered.

Examples:
  tia select                        # Analyze working-tree changes
  tia select --base=origin/main     # Compare against a base revision
  tia select --format=list          # Output just spec paths (for CI)
  tia select --bias=fail-closed     # Drop specs on uncertain call sites
  tia select --diff-file=ci.diff    # Consume a pre-computed unified diff
  tia select --output=report.json.gz`,
	RunE: runSelect,
}

func init() {
	selectCmd.Flags().StringVar(&selectBase, "base", "", "Base revision for comparison (default: working tree only)")
	selectCmd.Flags().StringVar(&selectProfile, "profile", "", "Analysis profile from PROFILES.toml")
	selectCmd.Flags().StringVar(&selectBias, "bias", "", "Selection bias: fail-open, balanced, fail-closed")
	selectCmd.Flags().StringVar(&selectFormat, "format", "human", "Output format (json, yaml, list, human)")
	selectCmd.Flags().StringVar(&selectOutput, "output", "", "Write the report to a file (.gz compresses)")
	selectCmd.Flags().StringVar(&selectDiffFile, "diff-file", "", "Read changes from a unified diff instead of git")
	selectCmd.Flags().BoolVar(&selectCache, "cache", false, "Persist member fingerprints in .tia/cache.db")
	selectCmd.Flags().BoolVar(&selectNoUntracked, "no-untracked", false, "Ignore untracked spec files")
	selectCmd.Flags().BoolVar(&selectNoWorkingTree, "no-working-tree", false, "Skip the working-tree comparison when --base is set")
	rootCmd.AddCommand(selectCmd)
}

func runSelect(cmd *cobra.Command, args []string) error {
	start := time.Now()

	format, err := ParseOutputFormat(selectFormat)
	if err != nil {
		return err
	}

	repoRoot := mustGetRepoRoot()
	cfg, err := config.LoadConfig(repoRoot)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := newLogger(cfg, string(format))

	profile, err := resolveProfile(repoRoot, selectProfile, cfg)
	if err != nil {
		return err
	}

	opts := analyzer.NewOptions(repoRoot, profile)
	opts.BaseRef = selectBase
	opts.DiffFile = selectDiffFile
	opts.IncludeUntrackedSpecs = !selectNoUntracked
	opts.IncludeWorkingTreeWithBase = !selectNoWorkingTree
	opts.Logger = logger

	bias := selectBias
	if bias == "" {
		bias = cfg.SelectionBias
	}
	opts.SelectionBias = specmatch.ParseBias(bias)

	if selectCache || cfg.Cache.Enabled {
		cachePath := paths.JoinRepoPath(repoRoot, cfg.Cache.Path)
		fpStore, err := store.Open(cachePath, logger)
		if err != nil {
			// The cache is advisory; the run proceeds without it
			logger.Warn("fingerprint cache unavailable", map[string]interface{}{
				"path": cachePath, "error": err.Error(),
			})
		} else {
			defer func() { _ = fpStore.Close() }()
			opts.Store = fpStore
		}
	}

	result, err := analyzer.Analyze(context.Background(), opts)
	if err != nil {
		return err
	}

	output, err := FormatResult(result, format)
	if err != nil {
		return fmt.Errorf("failed to format result: %w", err)
	}

	if selectOutput != "" {
		if err := writeReport(selectOutput, output); err != nil {
			return err
		}
	} else {
		fmt.Println(output)
	}

	logger.Debug("selection completed", map[string]interface{}{
		"specs":    len(result.SelectedSpecs),
		"duration": time.Since(start).Milliseconds(),
	})

	return nil
}

// writeReport writes the rendered report, gzip-compressed when the path
// ends in .gz.
func writeReport(path, content string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if strings.HasSuffix(path, ".gz") {
		zw := gzip.NewWriter(f)
		if _, err := zw.Write([]byte(content)); err != nil {
			return err
		}
		return zw.Close()
	}

	_, err = f.WriteString(content)
	return err
}
