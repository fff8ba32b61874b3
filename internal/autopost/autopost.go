// Package autopost runs the background automation loops: a scheduled
// posting loop that turns community trends into content, plus mention and
// reply handling. Each cycle's failure is logged and followed by a cooldown;
// a loop never dies because one cycle went wrong.
package autopost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/movecult/movebot/internal/ideas"
	"github.com/movecult/movebot/internal/social"
)

const (
	errorCooldown = 5 * time.Minute

	// maxSearchResults matches the platform's per-request search ceiling.
	maxSearchResults = 100

	// maxPostLen is the platform's post length limit, in runes.
	maxPostLen = 280

	postHashtags = "#MovementLabs #MoveLang"
)

// IdeaSource supplies ideas for the posting loop.
type IdeaSource interface {
	UnusedIdea(ctx context.Context) (ideas.Idea, error)
	Save(ctx context.Context, list []ideas.Idea) error
}

// Generator produces fresh ideas from recent community posts.
type Generator interface {
	Generate(ctx context.Context, posts []string) ([]ideas.Idea, error)
}

// Answerer answers a mention as if it were a chat question.
type Answerer interface {
	Answer(ctx context.Context, userID, question string) string
}

// Runner drives the automation loops.
type Runner struct {
	client     social.Client
	ideas      IdeaSource
	generator  Generator
	answerer   Answerer
	cursors    *CursorStore
	trendQuery string

	postInterval    time.Duration
	interactionPoll time.Duration

	logger *slog.Logger
	// test hooks
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// New creates a Runner.
func New(client social.Client, ideaStore IdeaSource, generator Generator, answerer Answerer,
	cursors *CursorStore, trendQuery string, postInterval, interactionPoll time.Duration,
	logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		client:          client,
		ideas:           ideaStore,
		generator:       generator,
		answerer:        answerer,
		cursors:         cursors,
		trendQuery:      trendQuery,
		postInterval:    postInterval,
		interactionPoll: interactionPoll,
		logger:          logger,
		sleep:           sleepCtx,
		now:             time.Now,
	}
}

// Run starts the three loops and blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return r.loop(ctx, "posting", r.postInterval, r.postCycle) })
	group.Go(func() error { return r.loop(ctx, "mentions", r.interactionPoll, r.mentionsCycle) })
	group.Go(func() error { return r.loop(ctx, "replies", r.interactionPoll, r.repliesCycle) })
	return group.Wait()
}

// loop runs cycle every interval. A failed cycle is logged; a rate-limit
// failure waits out the reset window instead of the full interval.
func (r *Runner) loop(ctx context.Context, name string, interval time.Duration, cycle func(context.Context) error) error {
	for {
		wait := interval
		if err := cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var rle *social.RateLimitError
			switch {
			case errors.As(err, &rle):
				r.logger.Warn("cycle rate limited", "loop", name, "retry_after", rle.RetryAfter)
				wait = rle.RetryAfter
			default:
				r.logger.Error("cycle failed", "loop", name, "error", err)
				if interval > errorCooldown {
					wait = errorCooldown
				}
			}
		}

		if err := r.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// postCycle publishes one content idea, generating a fresh batch from
// current trends when the pool is exhausted.
func (r *Runner) postCycle(ctx context.Context) error {
	idea, err := r.ideas.UnusedIdea(ctx)
	if errors.Is(err, ideas.ErrNoUnusedIdeas) {
		if err := r.replenishIdeas(ctx); err != nil {
			return err
		}
		idea, err = r.ideas.UnusedIdea(ctx)
	}
	if err != nil {
		return fmt.Errorf("drawing idea: %w", err)
	}

	text := composePost(idea)
	post, err := r.client.CreatePost(ctx, text)
	if err != nil {
		return fmt.Errorf("publishing idea %q: %w", idea.Title, err)
	}
	r.logger.Info("idea published", "title", idea.Title, "post_id", post.ID)
	return nil
}

// replenishIdeas generates new ideas from recent trend posts and saves them.
func (r *Runner) replenishIdeas(ctx context.Context) error {
	posts, err := r.client.SearchRecent(ctx, r.trendQuery, maxSearchResults)
	if err != nil {
		return fmt.Errorf("searching trends: %w", err)
	}

	texts := make([]string, 0, len(posts))
	for _, p := range posts {
		texts = append(texts, p.Text)
	}

	generated, err := r.generator.Generate(ctx, texts)
	if err != nil {
		return fmt.Errorf("generating ideas: %w", err)
	}
	if err := r.ideas.Save(ctx, generated); err != nil {
		return fmt.Errorf("saving ideas: %w", err)
	}
	r.logger.Info("idea pool replenished", "count", len(generated), "trend_posts", len(texts))
	return nil
}

// mentionsCycle answers mentions newer than the cursor.
func (r *Runner) mentionsCycle(ctx context.Context) error {
	since := r.cursors.Mentions()
	mentions, err := r.client.Mentions(ctx, since)
	if err != nil {
		return fmt.Errorf("fetching mentions: %w", err)
	}

	latest := since
	for _, mention := range mentions {
		if !mention.CreatedAt.After(since) {
			continue
		}
		reply := r.answerer.Answer(ctx, mention.AuthorID, mention.Text)
		if _, err := r.client.CreatePost(ctx, truncatePost(reply)); err != nil {
			return fmt.Errorf("answering mention %s: %w", mention.ID, err)
		}
		if mention.CreatedAt.After(latest) {
			latest = mention.CreatedAt
		}
	}

	if err := r.cursors.AdvanceMentions(latest); err != nil {
		r.logger.Warn("persisting mention cursor failed", "error", err)
	}
	return nil
}

// repliesCycle amplifies fresh community posts matching the trend query by
// reposting the newest one past the cursor.
func (r *Runner) repliesCycle(ctx context.Context) error {
	since := r.cursors.Replies()
	posts, err := r.client.SearchRecent(ctx, r.trendQuery, maxSearchResults)
	if err != nil {
		return fmt.Errorf("searching community posts: %w", err)
	}

	var newest *social.Post
	for i := range posts {
		p := &posts[i]
		if !p.CreatedAt.After(since) {
			continue
		}
		if newest == nil || p.CreatedAt.After(newest.CreatedAt) {
			newest = p
		}
	}
	if newest == nil {
		return nil
	}

	if err := r.client.Repost(ctx, newest.ID); err != nil {
		return fmt.Errorf("reposting %s: %w", newest.ID, err)
	}
	r.logger.Info("community post amplified", "post_id", newest.ID)

	if err := r.cursors.AdvanceReplies(newest.CreatedAt); err != nil {
		r.logger.Warn("persisting reply cursor failed", "error", err)
	}
	return nil
}

// composePost renders an idea as post text.
func composePost(idea ideas.Idea) string {
	return truncatePost(fmt.Sprintf("%s\n\n%s\n\n%s", idea.Title, idea.KeyPoints, postHashtags))
}

// truncatePost trims text to the platform's rune limit.
func truncatePost(text string) string {
	if utf8.RuneCountInString(text) <= maxPostLen {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxPostLen-1]) + "…"
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
