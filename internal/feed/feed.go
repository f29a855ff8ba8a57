// Package feed scrolls a short-video feed and likes or comments on what it
// lands on, pacing every action like a person would.
package feed

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nmthangdn2000/web-automation-tools/api/schemas"
	"github.com/nmthangdn2000/web-automation-tools/internal/browser/humanoid"
	"github.com/nmthangdn2000/web-automation-tools/internal/i18n"
	"github.com/nmthangdn2000/web-automation-tools/internal/poll"
	"github.com/nmthangdn2000/web-automation-tools/internal/workflow"
)

// DefaultMaxConsecutiveErrors is how many failed rounds in a row are tolerated.
const DefaultMaxConsecutiveErrors = 5

// Config controls one feed session.
type Config struct {
	EnableLike     bool   `mapstructure:"enable_like" json:"enable_like" yaml:"enable_like"`
	EnableComment  bool   `mapstructure:"enable_comment" json:"enable_comment" yaml:"enable_comment"`
	CommentText    string `mapstructure:"comment_text" json:"comment_text" yaml:"comment_text"`
	ActionInterval string `mapstructure:"action_interval" json:"action_interval" yaml:"action_interval"`
	// MaxRounds stops the loop after that many items; zero runs until errors stop it.
	MaxRounds            int   `mapstructure:"max_rounds" json:"max_rounds" yaml:"max_rounds"`
	MaxConsecutiveErrors int   `mapstructure:"max_consecutive_errors" json:"max_consecutive_errors" yaml:"max_consecutive_errors"`
	Seed                 int64 `mapstructure:"seed" json:"seed" yaml:"seed"`
}

// Selectors locate the feed's controls. Label-dependent parts use i18n keys.
type Selectors struct {
	FeedURL       string
	Container     string
	Article       string
	LiveMarker    string
	LikeButton    string
	CommentButton string
	CommentBox    string
	CommentPost   string
}

// TikTokSelectors targets the tiktok.com "For You" feed.
func TikTokSelectors(labels i18n.Labels) Selectors {
	article := `xpath=(//div[@id="column-list-container"]//article[not(contains(@style,"transition-duration: 0ms"))])[1]`
	return Selectors{
		FeedURL:       "https://www.tiktok.com",
		Container:     "#column-list-container",
		Article:       article,
		LiveMarker:    fmt.Sprintf(`xpath=(//div[@id="column-list-container"]//span[contains(., %q)])[1]`, labels.Get("live")),
		LikeButton:    fmt.Sprintf(`%s//button[contains(@aria-label, %q)]`, article, labels.Get("like_video")),
		CommentButton: fmt.Sprintf(`%s//button[contains(@aria-label, %q)]`, article, labels.Get("read_or_add_comments")),
		CommentBox:    `[data-e2e="comment-input"] [contenteditable="true"]`,
		CommentPost:   `[data-e2e="comment-post"][aria-disabled="false"]`,
	}
}

// Result summarises a feed session.
type Result struct {
	Rounds       int `json:"rounds"`
	Liked        int `json:"liked"`
	AlreadyLiked int `json:"already_liked"`
	Commented    int `json:"commented"`
	Errors       int `json:"errors"`
}

// Interactor runs the feed loop on one page.
type Interactor struct {
	cfg      Config
	interval Interval
	sel      Selectors
	driver   schemas.Driver
	human    *humanoid.Humanoid
	rng      *rand.Rand
	logger   *zap.Logger
}

// Validate reports settings the loop cannot run with.
func (c Config) Validate() error {
	if _, err := NewInterval(c.ActionInterval); err != nil {
		return err
	}
	if c.EnableComment && strings.TrimSpace(c.CommentText) == "" {
		return fmt.Errorf("%w: commenting needs comment text", schemas.ErrValidation)
	}
	return nil
}

// New validates cfg and binds the loop to a page. Pauses go through human so
// they follow its clock.
func New(cfg Config, sel Selectors, driver schemas.Driver, human *humanoid.Humanoid, logger *zap.Logger) (*Interactor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	interval, _ := NewInterval(cfg.ActionInterval)
	if cfg.MaxConsecutiveErrors <= 0 {
		cfg.MaxConsecutiveErrors = DefaultMaxConsecutiveErrors
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Interactor{
		cfg:      cfg,
		interval: interval,
		sel:      sel,
		driver:   driver,
		human:    human,
		rng:      rand.New(rand.NewSource(seed)),
		logger:   logger.Named("feed"),
	}, nil
}

// Run loops until MaxRounds items were handled, more than
// MaxConsecutiveErrors rounds failed in a row, or ctx ends. Stopping on
// errors returns ErrRetryExhausted along with the partial result.
func (f *Interactor) Run(ctx context.Context) (Result, error) {
	var res Result
	consecutive := 0

	for f.cfg.MaxRounds == 0 || res.Rounds < f.cfg.MaxRounds {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Rounds++
		log := f.logger.With(zap.Int("round", res.Rounds))

		if err := f.round(ctx, &res, log); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Errors++
			consecutive++
			log.Warn("Feed round failed", zap.Int("consecutive_errors", consecutive), zap.Error(err))
			if consecutive > f.cfg.MaxConsecutiveErrors {
				return res, fmt.Errorf("%w: %d consecutive feed errors, last: %v", schemas.ErrRetryExhausted, consecutive, err)
			}
			continue
		}
		consecutive = 0
	}

	f.logger.Info("Feed session finished", zap.Int("rounds", res.Rounds), zap.Int("liked", res.Liked), zap.Int("commented", res.Commented))
	return res, nil
}

func (f *Interactor) round(ctx context.Context, res *Result, log *zap.Logger) error {
	log.Debug("Scrolling feed")
	if err := f.human.Scroll(ctx, f.sel.Container, f.sel.LiveMarker); err != nil {
		return fmt.Errorf("scrolling: %w", err)
	}
	if err := f.pause(ctx); err != nil {
		return err
	}

	if f.cfg.EnableLike {
		liked, err := f.like(ctx)
		if err != nil {
			return fmt.Errorf("liking: %w", err)
		}
		if liked {
			res.Liked++
		} else {
			res.AlreadyLiked++
		}
	}
	if f.cfg.EnableComment {
		if err := f.comment(ctx); err != nil {
			return fmt.Errorf("commenting: %w", err)
		}
		res.Commented++
	}
	return f.pause(ctx)
}

// like presses the like button unless it is already pressed.
func (f *Interactor) like(ctx context.Context) (bool, error) {
	pressed, _, err := f.driver.Attribute(ctx, f.sel.LikeButton, "aria-pressed")
	if err != nil {
		return false, err
	}
	if pressed == "true" {
		f.logger.Debug("Video already liked")
		return false, nil
	}
	if err := f.human.Click(ctx, f.sel.LikeButton); err != nil {
		return false, err
	}
	return true, f.human.Pause(ctx, time.Second, time.Second)
}

func (f *Interactor) comment(ctx context.Context) error {
	open, _, err := poll.Visible(f.sel.CommentBox)(ctx, f.driver)
	if err != nil {
		return err
	}
	if !open {
		if err := f.human.Click(ctx, f.sel.CommentButton); err != nil {
			return err
		}
		if err := f.human.Pause(ctx, time.Second, time.Second); err != nil {
			return err
		}
	}
	if err := f.human.Type(ctx, f.sel.CommentBox, f.cfg.CommentText, humanoid.Fill); err != nil {
		return err
	}
	if err := f.human.Pause(ctx, time.Second, time.Second); err != nil {
		return err
	}
	return f.human.Click(ctx, f.sel.CommentPost)
}

func (f *Interactor) pause(ctx context.Context) error {
	d := f.interval.Draw(f.rng)
	return f.human.Pause(ctx, d, d)
}

// Steps is the feed session as a workflow: open the feed, wait for it and
// run the loop. The loop's Result lands in the report payload under "feed".
func Steps(cfg Config, feedURL string) []workflow.Step {
	if feedURL == "" {
		feedURL = TikTokSelectors(nil).FeedURL
	}
	container := TikTokSelectors(nil).Container
	return []workflow.Step{
		{
			Name: "open feed",
			Action: func(ctx context.Context, env *workflow.Env) error {
				return env.Driver.Navigate(ctx, feedURL, schemas.NavigateOptions{WaitUntil: schemas.WaitNetworkIdle})
			},
			Guard: true,
			Wait: &workflow.WaitCondition{
				Predicates: poll.Predicates{Success: poll.Visible(container)},
				Timeout:    30 * time.Second,
			},
		},
		{
			Name:  "interact",
			Guard: true,
			Action: func(ctx context.Context, env *workflow.Env) error {
				sel := TikTokSelectors(env.Labels(ctx))
				sel.FeedURL = feedURL
				f, err := New(cfg, sel, env.Driver, env.Human, env.Logger)
				if err != nil {
					return err
				}
				res, err := f.Run(ctx)
				env.SetResult("feed", res)
				return err
			},
		},
	}
}
