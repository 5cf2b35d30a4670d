package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entrhq/forge-recipe/pkg/recipe"
)

var (
	recipeDir    string
	recipeDomain string
	recipeFlow   string
)

var recipeCmd = &cobra.Command{
	Use:   "recipe",
	Short: "Inspect stored recipe versions",
	Long: `Recipes are stored as <dir>/<domain>/<flow>/<version>/ with one JSON
document per concern. Versions are immutable; patches always write the next one.`,
}

var recipeVersionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List the stored versions of a flow, oldest first",
	Args:  cobra.NoArgs,
	RunE:  runRecipeVersions,
}

var recipeShowCmd = &cobra.Command{
	Use:   "show [version]",
	Short: "Print a recipe version as JSON (default latest)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRecipeShow,
}

var recipeNextCmd = &cobra.Command{
	Use:   "next <version>",
	Short: "Print the version that follows the given one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		next, err := recipe.NextVersion(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), next)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{recipeVersionsCmd, recipeShowCmd} {
		c.Flags().StringVar(&recipeDir, "recipe-dir", ".", "Root of the recipe store")
		c.Flags().StringVar(&recipeDomain, "domain", "", "Recipe domain")
		c.Flags().StringVar(&recipeFlow, "flow", "", "Recipe flow")
		_ = c.MarkFlagRequired("domain")
		_ = c.MarkFlagRequired("flow")
	}

	recipeCmd.AddCommand(recipeVersionsCmd)
	recipeCmd.AddCommand(recipeShowCmd)
	recipeCmd.AddCommand(recipeNextCmd)
}

func runRecipeVersions(cmd *cobra.Command, _ []string) error {
	versions, err := recipe.NewStore(recipeDir).Versions(recipeDomain, recipeFlow)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, v := range versions {
		fmt.Fprintln(out, v)
	}
	return nil
}

func runRecipeShow(cmd *cobra.Command, args []string) error {
	var version string
	if len(args) == 1 {
		version = args[0]
	}
	r, err := loadRecipe(recipe.NewStore(recipeDir), recipeDomain, recipeFlow, version)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), r)
}
