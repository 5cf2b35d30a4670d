package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/entrhq/forge-recipe/pkg/checkpoint"
	"github.com/entrhq/forge-recipe/pkg/config"
	"github.com/entrhq/forge-recipe/pkg/patch"
	"github.com/entrhq/forge-recipe/pkg/recipe"
	"github.com/entrhq/forge-recipe/pkg/types"
)

var (
	patchRecipeDir string
	patchDomain    string
	patchFlow      string
	patchVersion   string
	patchYes       bool
)

var patchCmd = &cobra.Command{
	Use:   "patch",
	Short: "Validate, grade and apply authoring patches",
	Long: `Patch payloads are the JSON documents the authoring service returns:
{"patch": [{"op": "actions.replace", "key": "...", "value": {...}}], "reason": "..."}

A payload with exactly one actions.* or selectors.* op is minor. Anything
else is major and needs a GO at a checkpoint before it is applied.`,
}

var patchValidateCmd = &cobra.Command{
	Use:   "validate <payload.json>",
	Short: "Check a payload and report its severity",
	Args:  cobra.ExactArgs(1),
	RunE:  runPatchValidate,
}

var patchApplyCmd = &cobra.Command{
	Use:   "apply <payload.json>",
	Short: "Apply a payload to a recipe and save it as the next version",
	Long: `Apply loads a recipe version, applies the payload to a copy and writes
the copy as the next version. Major payloads are confirmed in the terminal
unless --yes is given or the domain is auto-approved in the settings file.

Example:
  forge-recipe patch apply fix.json --recipe-dir ./recipes --domain shop.example.com --flow checkout
`,
	Args: cobra.ExactArgs(1),
	RunE: runPatchApply,
}

func init() {
	patchCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print JSON")

	patchApplyCmd.Flags().StringVar(&patchRecipeDir, "recipe-dir", ".", "Root of the recipe store")
	patchApplyCmd.Flags().StringVar(&patchDomain, "domain", "", "Recipe domain")
	patchApplyCmd.Flags().StringVar(&patchFlow, "flow", "", "Recipe flow")
	patchApplyCmd.Flags().StringVar(&patchVersion, "recipe-version", "", "Version to patch, such as v003 (default latest)")
	patchApplyCmd.Flags().BoolVarP(&patchYes, "yes", "y", false, "Approve major patches without asking")
	_ = patchApplyCmd.MarkFlagRequired("domain")
	_ = patchApplyCmd.MarkFlagRequired("flow")

	patchCmd.AddCommand(patchValidateCmd)
	patchCmd.AddCommand(patchApplyCmd)
}

func readPayload(path string) (types.PatchPayload, error) {
	var payload types.PatchPayload
	raw, err := os.ReadFile(path)
	if err != nil {
		return payload, fmt.Errorf("failed to read patch: %w", err)
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, fmt.Errorf("failed to parse patch %s: %w", path, err)
	}
	return payload, nil
}

type patchReport struct {
	Valid    bool           `json:"valid"`
	Severity types.Severity `json:"severity"`
	Problems []string       `json:"problems,omitempty"`
}

func runPatchValidate(cmd *cobra.Command, args []string) error {
	payload, err := readPayload(args[0])
	if err != nil {
		return err
	}

	report := patchReport{Valid: true, Severity: patch.ClassifyPatch(payload)}
	verr := patch.Validate(payload)
	if verr != nil {
		report.Valid = false
		var ve *patch.ValidationError
		if errors.As(verr, &ve) {
			report.Problems = ve.Problems
		} else {
			report.Problems = []string{verr.Error()}
		}
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		if err := printJSON(out, report); err != nil {
			return err
		}
		return verr
	}
	if report.Valid {
		fmt.Fprintf(out, "%s (%s)\n", goodStyle.Render("valid"), report.Severity)
		return nil
	}
	fmt.Fprintln(out, badStyle.Render("invalid"))
	for _, p := range report.Problems {
		fmt.Fprintf(out, "  - %s\n", p)
	}
	return verr
}

func runPatchApply(cmd *cobra.Command, args []string) error {
	payload, err := readPayload(args[0])
	if err != nil {
		return err
	}

	store := recipe.NewStore(patchRecipeDir)
	current, err := loadRecipe(store, patchDomain, patchFlow, patchVersion)
	if err != nil {
		return err
	}

	gate, err := patchGate(cmd)
	if err != nil {
		return err
	}

	next, err := patch.NewWorkflow(store, gate).ApplyAndVersionUp(cmd.Context(), current, payload)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, map[string]string{"from": current.Version, "to": next.Version})
	}
	fmt.Fprintf(out, "%s %s -> %s\n", goodStyle.Render("patched"), current, next.Version)
	return nil
}

func loadRecipe(store *recipe.Store, domain, flow, version string) (*recipe.Recipe, error) {
	if version == "" {
		return store.Latest(domain, flow)
	}
	return store.Load(domain, flow, version)
}

// patchGate answers major-patch checkpoints for the apply command.
func patchGate(cmd *cobra.Command) (checkpoint.Gate, error) {
	if patchYes {
		return checkpoint.GateFunc(func(context.Context, checkpoint.Request) (checkpoint.Decision, error) {
			return checkpoint.GO, nil
		}), nil
	}

	settings := config.CheckpointSettings{ApprovalTimeout: config.DefaultApprovalTimeout}
	if s := config.GetCheckpoint(); s != nil {
		settings = s.Settings()
	}
	terminal := checkpoint.NewTerminalGate(cmd.InOrStdin(), cmd.OutOrStdout(), settings.ApprovalTimeout)
	return checkpoint.NewAutoApprover(settings.AutoApproveDomains, terminal)
}
