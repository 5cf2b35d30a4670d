package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/entrhq/forge-recipe/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show and change persistent settings",
	Long: `Settings are grouped into sections (budget, healing, authoring, llm,
checkpoint) and stored in ~/.forge-recipe/config.json, or the file named by
--config. Values given to set are converted to the field's type, so durations
take "30s" and lists take comma-separated values.

Example:
  forge-recipe config show budget
  forge-recipe config set budget max_llm_calls_per_run 5
  forge-recipe config set checkpoint auto_approve_domains "*.staging.example.com,localhost"
  forge-recipe config reset healing
`,
}

var configShowCmd = &cobra.Command{
	Use:   "show [section]",
	Short: "Print settings as JSON",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <section> <key> <value>",
	Short: "Change one setting and save the file",
	Args:  cobra.ExactArgs(3),
	RunE:  runConfigSet,
}

var configResetCmd = &cobra.Command{
	Use:   "reset <section>",
	Short: "Restore a section's defaults and save the file",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigReset,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the settings file location",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, ok := config.Global().Store().(*config.FileStore)
		if !ok {
			return fmt.Errorf("settings are not file backed")
		}
		fmt.Fprintln(cmd.OutOrStdout(), store.Path())
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configResetCmd)
	configCmd.AddCommand(configPathCmd)
}

func section(id string) (config.Section, error) {
	s, ok := config.Global().GetSection(id)
	if !ok {
		ids := make([]string, 0)
		for _, known := range config.Global().GetSections() {
			ids = append(ids, known.ID())
		}
		sort.Strings(ids)
		return nil, fmt.Errorf("unknown section %q (known: %s)", id, strings.Join(ids, ", "))
	}
	return s, nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if len(args) == 1 {
		s, err := section(args[0])
		if err != nil {
			return err
		}
		return printJSON(out, s.Data())
	}

	all := make(map[string]map[string]interface{})
	for _, s := range config.Global().GetSections() {
		all[s.ID()] = s.Data()
	}
	return printJSON(out, all)
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	s, err := section(args[0])
	if err != nil {
		return err
	}
	key, value := args[1], args[2]

	if err := s.SetData(map[string]interface{}{key: value}); err != nil {
		return fmt.Errorf("invalid value for %s.%s: %w", s.ID(), key, err)
	}
	// Unknown keys decode to nothing and never show up in Data.
	if _, known := s.Data()[key]; !known {
		return fmt.Errorf("section %s has no setting %q", s.ID(), key)
	}
	if err := config.Global().SaveAll(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s.%s = %v\n", s.ID(), key, s.Data()[key])
	return nil
}

func runConfigReset(cmd *cobra.Command, args []string) error {
	s, err := section(args[0])
	if err != nil {
		return err
	}
	s.Reset()
	if err := config.Global().SaveAll(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s reset to defaults\n", s.ID())
	return nil
}
