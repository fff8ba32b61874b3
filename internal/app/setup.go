package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"

	"github.com/movecult/movebot/db"
	"github.com/movecult/movebot/internal/agent"
	"github.com/movecult/movebot/internal/answer"
	"github.com/movecult/movebot/internal/autopost"
	"github.com/movecult/movebot/internal/chatctx"
	"github.com/movecult/movebot/internal/config"
	"github.com/movecult/movebot/internal/docs"
	"github.com/movecult/movebot/internal/ideas"
	"github.com/movecult/movebot/internal/knowledge"
	"github.com/movecult/movebot/internal/social"
	"github.com/movecult/movebot/internal/telegram"
)

// Setup constructs the full application. On any failure the components
// built so far are released before the error is returned.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	pool, err := db.Connect(ctx, cfg.PostgresURL())
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	a.DBPool = pool

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	a.Genkit = g

	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}
	a.Embedder = embedder

	a.Knowledge = knowledge.New(knowledge.NewQueries(pool), embedder,
		logger.With("component", "knowledge"))

	pipeline, err := providePipeline(ctx, cfg, a.Knowledge, logger)
	if err != nil {
		return nil, err
	}
	a.Pipeline = pipeline

	contexts, err := chatctx.New(
		filepath.Join(cfg.DataDir, "chat_contexts.json"),
		cfg.MaxChatHistory, cfg.ContextExpiry,
		logger.With("component", "chatctx"))
	if err != nil {
		return nil, fmt.Errorf("opening chat context store: %w", err)
	}
	a.Contexts = contexts

	research, err := agent.NewResearch(g, cfg.ModelName, a.Knowledge,
		cfg.MaxDocsPerQuery, logger.With("component", "research"))
	if err != nil {
		return nil, fmt.Errorf("creating research agent: %w", err)
	}
	a.Research = research

	a.Answerer = answer.New(research, contexts,
		cfg.ImmediateContext, cfg.AgentTimeout,
		logger.With("component", "answer"))

	ideaStore, err := ideas.Open(
		filepath.Join(cfg.DataDir, "content_ideas.db"),
		logger.With("component", "ideas"))
	if err != nil {
		return nil, fmt.Errorf("opening idea store: %w", err)
	}
	a.Ideas = ideaStore

	generator, err := agent.NewIdeaGenerator(g, cfg.ModelName,
		logger.With("component", "ideagen"))
	if err != nil {
		return nil, fmt.Errorf("creating idea generator: %w", err)
	}
	a.Generator = generator

	autoPoster, err := provideAutoPost(cfg, a, logger)
	if err != nil {
		return nil, err
	}
	a.AutoPost = autoPoster

	bot, err := provideTelegramBot(cfg, a.Answerer, logger)
	if err != nil {
		return nil, err
	}
	a.TelegramBot = bot

	return a, nil
}

// providePipeline builds the ingestion pipeline in the configured fetch mode.
func providePipeline(ctx context.Context, cfg *config.Config, store *knowledge.Store, logger *slog.Logger) (*docs.Pipeline, error) {
	sources := make([]docs.Source, 0, len(cfg.SourceRepos))
	for _, repoURL := range cfg.SourceRepos {
		src, err := docs.ParseSource(repoURL)
		if err != nil {
			return nil, fmt.Errorf("parsing source repo %q: %w", repoURL, err)
		}
		sources = append(sources, src)
	}

	var fetcher docs.Fetcher
	switch cfg.FetchMode {
	case config.FetchModeClone:
		fetcher = docs.NewCloneFetcher(logger.With("component", "fetcher"))
	case config.FetchModeAPI, "":
		fetcher = docs.NewAPIFetcher(ctx, cfg.GitHubToken, logger.With("component", "fetcher"))
	default:
		return nil, fmt.Errorf("unknown fetch mode %q", cfg.FetchMode)
	}

	dumper := docs.NewDumper(filepath.Join(cfg.DataDir, "docs"), logger.With("component", "dumper"))

	return docs.NewPipeline(fetcher, store, dumper, sources,
		cfg.ChunkSize, cfg.ChunkOverlap, logger.With("component", "pipeline")), nil
}

// provideAutoPost wires the automation loops. Disabled (nil) without a
// bearer token so the bot can run chat-only.
func provideAutoPost(cfg *config.Config, a *App, logger *slog.Logger) (*autopost.Runner, error) {
	if cfg.TwitterBearerToken == "" {
		logger.Info("no twitter credentials, automation loops disabled")
		return nil, nil
	}

	client := social.NewHTTPClient(cfg.TwitterBearerToken, cfg.TwitterUserID,
		logger.With("component", "social"))

	cursors, err := autopost.NewCursorStore(
		filepath.Join(cfg.DataDir, "interaction_cursors.json"),
		logger.With("component", "cursors"))
	if err != nil {
		return nil, fmt.Errorf("opening cursor store: %w", err)
	}

	return autopost.New(client, a.Ideas, a.Generator, a.Answerer, cursors,
		cfg.TrendQuery, cfg.PostInterval, cfg.InteractionPoll,
		logger.With("component", "autopost")), nil
}

// provideTelegramBot wires the chat loop. Disabled (nil) without a token.
func provideTelegramBot(cfg *config.Config, answerer *answer.Service, logger *slog.Logger) (*telegram.Bot, error) {
	if cfg.TelegramToken == "" {
		logger.Info("no telegram token, chat bot disabled")
		return nil, nil
	}

	var groupID int64
	if cfg.TelegramGroupID != "" {
		parsed, err := strconv.ParseInt(cfg.TelegramGroupID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing telegram group id %q: %w", cfg.TelegramGroupID, err)
		}
		groupID = parsed
	}

	api := telegram.NewBotAPI(cfg.TelegramToken, logger.With("component", "telegram_api"))
	return telegram.NewBot(api, answerer, groupID, logger.With("component", "telegram")), nil
}
