package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/entrhq/forge-recipe/pkg/recovery"
	"github.com/entrhq/forge-recipe/pkg/types"
)

var (
	classifySelector  string
	classifySourceURL string
	classifyContext   string
)

var classifyCmd = &cobra.Command{
	Use:   "classify <message...>",
	Short: "Classify a failure message and show its recovery ladder",
	Long: `Classify maps a raw failure message to one error kind and prints the
fallback ladder that would be tried for it.

Example:
  forge-recipe classify "Timeout 5000ms exceeded waiting for locator('#pay')" --selector '#pay'
  forge-recipe classify "authoring request aborted" --context "authoring plan_patch"
`,
	Args: cobra.MinimumNArgs(1),
	RunE: runClassify,
}

func init() {
	classifyCmd.Flags().StringVar(&classifySelector, "selector", "", "Selector the failed step acted on")
	classifyCmd.Flags().StringVar(&classifySourceURL, "source-url", "", "URL of the page or resource involved")
	classifyCmd.Flags().StringVar(&classifyContext, "context", "", "Extra context, such as which collaborator was called")
	classifyCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON")
}

type classification struct {
	ErrorKind types.ErrorKind        `json:"errorKind"`
	Actions   []types.RecoveryAction `json:"actions"`
}

func runClassify(cmd *cobra.Command, args []string) error {
	message := strings.Join(args, " ")
	kind := recovery.Classify(message, recovery.ClassifyContext{
		Selector:  classifySelector,
		SourceURL: classifySourceURL,
		Message:   classifyContext,
	})
	result := classification{ErrorKind: kind, Actions: recovery.Route(kind)}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, result)
	}
	printField(out, "kind", headingStyle.Render(kind.String()))
	printField(out, "ladder", ladder(result.Actions))
	return nil
}
