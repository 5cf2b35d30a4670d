package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entrhq/forge-recipe/pkg/config"
	"github.com/entrhq/forge-recipe/pkg/logging"
)

var (
	configPath string
	envFiles   []string
	verbosity  int
)

var rootCmd = &cobra.Command{
	Use:   "forge-recipe",
	Short: "forge-recipe - self-healing runner for browser automation recipes",
	Long: `forge-recipe executes versioned browser automation recipes and repairs
failing steps with a budget-aware fallback ladder.

Persistent settings are read from ~/.forge-recipe/config.json (see the config
command). KEY=VALUE files given with --env-file, or ./.env, are loaded first.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the settings file (default ~/.forge-recipe/config.json)")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "KEY=VALUE files to load into the environment (default ./.env)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase log output (-v info, -vv debug)")

	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(routeCmd)
	rootCmd.AddCommand(memoryCmd)
	rootCmd.AddCommand(patchCmd)
	rootCmd.AddCommand(recipeCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(runCmd)
}

func setup(cmd *cobra.Command, _ []string) error {
	logging.SetupConsole(verbosity)

	if err := config.LoadEnv(envFiles...); err != nil {
		return err
	}
	if err := config.Initialize(configPath); err != nil {
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}
	return nil
}
