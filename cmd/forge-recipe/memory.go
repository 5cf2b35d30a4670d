package main

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/entrhq/forge-recipe/pkg/config"
	"github.com/entrhq/forge-recipe/pkg/healing"
)

var (
	memoryStore         string
	memoryMinConfidence float64
	memoryMaxAge        time.Duration
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect and maintain the healing memory",
	Long: `Healing memory remembers which bindings repaired a target on a page so
later runs can replay them before spending on an LLM or authoring call.

The store defaults to the healing section of the settings file
(~/.forge-recipe/healing.json unless healing.path is set).`,
}

var memoryStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the store",
	Args:  cobra.NoArgs,
	RunE:  runMemoryStats,
}

var memoryListCmd = &cobra.Command{
	Use:   "list [target-key]",
	Short: "List records, optionally for one target",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runMemoryList,
}

var memoryLookupCmd = &cobra.Command{
	Use:   "lookup <target-key> <url>",
	Short: "Show the binding a run would replay for a target on a page",
	Args:  cobra.ExactArgs(2),
	RunE:  runMemoryLookup,
}

var memoryPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Drop low-confidence and stale records",
	Args:  cobra.NoArgs,
	RunE:  runMemoryPrune,
}

func init() {
	memoryCmd.PersistentFlags().StringVar(&memoryStore, "store", "", "Path to the healing store (default from settings)")
	memoryCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print JSON")
	memoryLookupCmd.Flags().Float64Var(&memoryMinConfidence, "min-confidence", -1, "Minimum confidence (default from settings)")
	memoryPruneCmd.Flags().Float64Var(&memoryMinConfidence, "min-confidence", -1, "Drop records below this confidence (default from settings)")
	memoryPruneCmd.Flags().DurationVar(&memoryMaxAge, "max-age", -1, "Drop records not successful within this long, 0 keeps all (default from settings)")

	memoryCmd.AddCommand(memoryStatsCmd)
	memoryCmd.AddCommand(memoryListCmd)
	memoryCmd.AddCommand(memoryLookupCmd)
	memoryCmd.AddCommand(memoryPruneCmd)
}

func healingSettings() config.HealingSettings {
	if s := config.GetHealing(); s != nil {
		return s.Settings()
	}
	return config.DefaultHealingSettings()
}

func openMemory() (*healing.Memory, config.HealingSettings, error) {
	settings := healingSettings()
	if memoryStore != "" {
		settings.Path = memoryStore
	}
	path, err := settings.StorePath()
	if err != nil {
		return nil, settings, err
	}
	return healing.New(path), settings, nil
}

func runMemoryStats(cmd *cobra.Command, _ []string) error {
	mem, _, err := openMemory()
	if err != nil {
		return err
	}
	stats := mem.Stats()

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, stats)
	}
	printField(out, "store", mem.Path())
	printField(out, "records", stats.TotalRecords)
	printField(out, "average confidence", fmt.Sprintf("%.2f", stats.AverageConfidence))

	domains := make([]string, 0, len(stats.ByDomain))
	for d := range stats.ByDomain {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	for _, d := range domains {
		fmt.Fprintf(out, "  %s %d\n", keyStyle.Render(d), stats.ByDomain[d])
	}
	return nil
}

func runMemoryList(cmd *cobra.Command, args []string) error {
	mem, _, err := openMemory()
	if err != nil {
		return err
	}
	var targetKey string
	if len(args) == 1 {
		targetKey = args[0]
	}
	records := mem.Records(targetKey)

	out := cmd.OutOrStdout()
	if jsonOutput {
		if records == nil {
			records = []*healing.Record{}
		}
		return printJSON(out, records)
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "no records")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TARGET\tDOMAIN\tSELECTOR\tMETHOD\tOK\tFAIL\tCONFIDENCE")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%.2f\n",
			r.TargetKey, r.Domain, r.Action.Selector, r.Evidence.HealingMethod,
			r.SuccessCount, r.FailCount, r.Confidence)
	}
	return tw.Flush()
}

func runMemoryLookup(cmd *cobra.Command, args []string) error {
	mem, settings, err := openMemory()
	if err != nil {
		return err
	}
	minConfidence := settings.MinConfidence
	if memoryMinConfidence >= 0 {
		minConfidence = memoryMinConfidence
	}

	ref, ok := mem.FindMatch(args[0], args[1], minConfidence)
	out := cmd.OutOrStdout()
	if !ok {
		if jsonOutput {
			return printJSON(out, nil)
		}
		fmt.Fprintf(out, "no binding for %s at or above confidence %.2f\n", args[0], minConfidence)
		return nil
	}
	if jsonOutput {
		return printJSON(out, ref)
	}
	printField(out, "selector", goodStyle.Render(ref.Selector))
	printField(out, "method", ref.Method)
	if ref.Description != "" {
		printField(out, "description", ref.Description)
	}
	return nil
}

func runMemoryPrune(cmd *cobra.Command, _ []string) error {
	mem, settings, err := openMemory()
	if err != nil {
		return err
	}
	minConfidence := settings.PruneConfidence
	if memoryMinConfidence >= 0 {
		minConfidence = memoryMinConfidence
	}
	maxAge := settings.MaxAge
	if memoryMaxAge >= 0 {
		maxAge = memoryMaxAge
	}

	removed, err := mem.Prune(minConfidence, maxAge)
	if err != nil {
		return fmt.Errorf("failed to prune %s: %w", mem.Path(), err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, map[string]int{"removed": removed})
	}
	fmt.Fprintf(out, "removed %d record(s)\n", removed)
	return nil
}
