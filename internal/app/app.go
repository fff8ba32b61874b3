// Package app assembles the bot: configuration, database, model runtime,
// and every collaborator built on top of them. All dependencies are
// constructed here and passed down explicitly.
package app

import (
	"errors"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/movecult/movebot/internal/agent"
	"github.com/movecult/movebot/internal/answer"
	"github.com/movecult/movebot/internal/autopost"
	"github.com/movecult/movebot/internal/chatctx"
	"github.com/movecult/movebot/internal/config"
	"github.com/movecult/movebot/internal/docs"
	"github.com/movecult/movebot/internal/ideas"
	"github.com/movecult/movebot/internal/knowledge"
	"github.com/movecult/movebot/internal/telegram"
)

// App holds every constructed component and owns their lifecycles.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder

	DBPool    *pgxpool.Pool
	Knowledge *knowledge.Store
	Pipeline  *docs.Pipeline

	Contexts *chatctx.Store
	Answerer *answer.Service
	Research *agent.Research

	Ideas     *ideas.Store
	Generator *agent.IdeaGenerator
	AutoPost  *autopost.Runner

	TelegramBot *telegram.Bot
}

// Close releases held resources. Safe to call on a partially built App.
func (a *App) Close() error {
	var errs []error

	if a.Ideas != nil {
		if err := a.Ideas.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.DBPool != nil {
		a.DBPool.Close()
	}
	if a.Logger != nil {
		a.Logger.Info("application shut down")
	}

	return errors.Join(errs...)
}
