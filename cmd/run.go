package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nmthangdn2000/web-automation-tools/api/schemas"
	"github.com/nmthangdn2000/web-automation-tools/internal/config"
	"github.com/nmthangdn2000/web-automation-tools/internal/engine"
)

func newRunCmd(factory ComponentFactory) *cobra.Command {
	var (
		recipeName string
		paramsFile string
		pairs      []string
		sf         sessionFlags
	)

	runCmd := &cobra.Command{
		Use:   "run [recipe]",
		Short: "Run one recipe on one browser session",
		Long: `Provisions a browser session, runs the named recipe through it and prints the
run report as JSON. The command exits non-zero when the run aborts.`,
		Example: `  webauto run tiktok_post --param video_path=/videos/a.mp4 --param description="hello"
  webauto run threads_post --params-file post.yaml --show-browser --keep-open`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				recipeName = args[0]
			}
			if recipeName == "" {
				return fmt.Errorf("a recipe must be provided (see 'webauto recipes')")
			}
			params, err := parseParams(paramsFile, pairs)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			cfg := config.Get()

			components, err := factory.Create(ctx, cfg)
			if err != nil {
				return err
			}
			defer components.Shutdown()

			job := engine.Job{
				Recipe:  recipeName,
				Params:  params,
				Session: sf.apply(cmd, cfg.SessionConfig()),
			}
			report, runErr := components.Engine.Run(ctx, job)
			if report.RunID != "" {
				if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
			}
			return runErr
		},
	}

	runCmd.Flags().StringVarP(&recipeName, "recipe", "r", "", "recipe to run")
	runCmd.Flags().StringVar(&paramsFile, "params-file", "", "YAML file of recipe parameters")
	runCmd.Flags().StringArrayVarP(&pairs, "param", "p", nil, "recipe parameter as key=value (repeatable)")
	sf.register(runCmd)

	return runCmd
}

func writeJSON(w io.Writer, v interface{}) error {
	var (
		out []byte
		err error
	)
	if report, ok := v.(schemas.RunReport); ok {
		out, err = report.ToJSON()
	} else {
		out, err = json.MarshalIndent(v, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to serialize output to JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
