package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entrhq/forge-recipe/pkg/recovery"
	"github.com/entrhq/forge-recipe/pkg/types"
)

var routeCmd = &cobra.Command{
	Use:   "route [error-kind]",
	Short: "Show the fallback ladder for an error kind",
	Long: `Route prints the ordered recovery actions for one error kind, or for
every kind when none is given.

Example:
  forge-recipe route TargetNotFound
  forge-recipe route
`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRoute,
}

func init() {
	routeCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON")
}

func runRoute(cmd *cobra.Command, args []string) error {
	kinds := types.ErrorKinds
	if len(args) == 1 {
		kind, err := types.ParseErrorKind(args[0])
		if err != nil {
			return err
		}
		kinds = []types.ErrorKind{kind}
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		routes := make(map[types.ErrorKind][]types.RecoveryAction, len(kinds))
		for _, k := range kinds {
			routes[k] = recovery.Route(k)
		}
		return printJSON(out, routes)
	}
	for _, k := range kinds {
		fmt.Fprintf(out, "%s\n  %s\n", headingStyle.Render(k.String()), ladder(recovery.Route(k)))
	}
	return nil
}
