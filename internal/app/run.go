package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Run seeds the documentation index when it is empty, then runs the chat
// bot and automation loops until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if err := a.ensureIndex(ctx); err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(ctx)
	if a.TelegramBot != nil {
		group.Go(func() error { return a.TelegramBot.Run(ctx) })
	}
	if a.AutoPost != nil {
		group.Go(func() error { return a.AutoPost.Run(ctx) })
	}
	if a.TelegramBot == nil && a.AutoPost == nil {
		return fmt.Errorf("nothing to run: no telegram token and no twitter credentials")
	}
	return group.Wait()
}

// ensureIndex ingests the configured repositories the first time the bot
// runs against an empty index. Partial ingestion failures are logged, not
// fatal: an incomplete index still answers questions.
func (a *App) ensureIndex(ctx context.Context) error {
	count, err := a.Knowledge.Count(ctx, "")
	if err != nil {
		return fmt.Errorf("checking index: %w", err)
	}
	if count > 0 {
		a.Logger.Info("documentation index ready", "chunks", count)
		return nil
	}

	a.Logger.Info("index empty, ingesting documentation",
		"repos", len(a.Config.SourceRepos))
	if err := a.Pipeline.Ingest(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.Logger.Warn("ingestion finished with errors", "error", err)
	}
	return nil
}
