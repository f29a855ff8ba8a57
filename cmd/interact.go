package cmd

import (
	"github.com/spf13/cobra"

	"github.com/nmthangdn2000/web-automation-tools/internal/config"
	"github.com/nmthangdn2000/web-automation-tools/internal/feed"
)

func newInteractCmd(factory ComponentFactory) *cobra.Command {
	var (
		fcfg    feed.Config
		feedURL string
		sf      sessionFlags
	)

	interactCmd := &cobra.Command{
		Use:   "interact",
		Short: "Scroll the TikTok feed, liking and commenting at random intervals",
		Long: `Opens the feed and works through it item by item: scroll, like when not
already liked, optionally comment, then wait a random interval. The interval is
"N" seconds or a "min,max" range. The loop stops after --rounds items, or when
more than --max-errors rounds fail in a row.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := fcfg.Validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			cfg := config.Get()

			components, err := factory.Create(ctx, cfg)
			if err != nil {
				return err
			}
			defer components.Shutdown()

			report, runErr := components.Engine.RunSteps(ctx, "tiktok_feed", sf.apply(cmd, cfg.SessionConfig()), feed.Steps(fcfg, feedURL))
			if report.RunID != "" {
				if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
			}
			return runErr
		},
	}

	fs := interactCmd.Flags()
	fs.StringVar(&feedURL, "url", "", "feed URL (default is the TikTok For You page)")
	fs.BoolVar(&fcfg.EnableLike, "like", true, "like items that are not liked yet")
	fs.BoolVar(&fcfg.EnableComment, "comment", false, "post a comment on every item")
	fs.StringVar(&fcfg.CommentText, "comment-text", "", "comment to post when --comment is set")
	fs.StringVar(&fcfg.ActionInterval, "interval", "5,10", `seconds between items: "N" or "min,max"`)
	fs.IntVar(&fcfg.MaxRounds, "rounds", 0, "stop after this many items (0 runs until errors stop it)")
	fs.IntVar(&fcfg.MaxConsecutiveErrors, "max-errors", feed.DefaultMaxConsecutiveErrors, "consecutive failed rounds tolerated")
	sf.register(interactCmd)

	return interactCmd
}
