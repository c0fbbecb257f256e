package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"tia/internal/config"
)

var profileName string

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show the resolved analysis profile",
	Long: `Print the analysis profile after defaults are applied, as CI would
use it. Useful for debugging PROFILES.toml declarations.`,
	RunE: runProfile,
}

func init() {
	profileCmd.Flags().StringVar(&profileName, "name", "", "Profile name from PROFILES.toml")
	rootCmd.AddCommand(profileCmd)
}

func runProfile(cmd *cobra.Command, args []string) error {
	repoRoot := mustGetRepoRoot()
	cfg, err := config.LoadConfig(repoRoot)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	profile, err := resolveProfile(repoRoot, profileName, cfg)
	if err != nil {
		return err
	}
	if err := profile.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
