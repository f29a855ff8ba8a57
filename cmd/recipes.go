package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nmthangdn2000/web-automation-tools/internal/config"
	"github.com/nmthangdn2000/web-automation-tools/internal/observability"
	"github.com/nmthangdn2000/web-automation-tools/internal/platforms"
	"github.com/nmthangdn2000/web-automation-tools/internal/recipe"
)

func newRecipesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recipes [name]",
		Short: "List available recipes, or show one recipe's parameters",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := platforms.Load(config.Get().Recipes.Dir, observability.GetLogger())
			if err != nil {
				return err
			}
			if len(args) == 0 {
				return listRecipes(cmd.OutOrStdout(), registry)
			}
			rc, err := registry.Get(args[0])
			if err != nil {
				return err
			}
			return describeRecipe(cmd.OutOrStdout(), rc, registry.Source(rc.Name))
		},
	}
}

func listRecipes(w io.Writer, registry *platforms.Registry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSOURCE\tDESCRIPTION")
	for _, name := range registry.Names() {
		rc, err := registry.Get(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, registry.Source(name), rc.Description)
	}
	return tw.Flush()
}

func describeRecipe(w io.Writer, rc *recipe.Recipe, source string) error {
	fmt.Fprintf(w, "%s (%s)\n", rc.Name, source)
	if rc.Description != "" {
		fmt.Fprintf(w, "  %s\n", rc.Description)
	}
	if len(rc.Params) == 0 {
		fmt.Fprintln(w, "\nNo parameters.")
		return nil
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PARAM\tREQUIRED\tDEFAULT\tDESCRIPTION")
	for _, p := range rc.Params {
		def := ""
		if p.Default != nil {
			def = fmt.Sprint(p.Default)
		}
		fmt.Fprintf(tw, "%s\t%t\t%s\t%s\n", p.Name, p.Required, def, p.Description)
	}
	return tw.Flush()
}
