package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/frontdesk/internal/bus"
	"github.com/nextlevelbuilder/frontdesk/internal/channels/whatsapp"
	"github.com/nextlevelbuilder/frontdesk/internal/config"
	"github.com/nextlevelbuilder/frontdesk/internal/conversation"
	"github.com/nextlevelbuilder/frontdesk/internal/directory"
	"github.com/nextlevelbuilder/frontdesk/internal/intent"
	"github.com/nextlevelbuilder/frontdesk/internal/llm"
	"github.com/nextlevelbuilder/frontdesk/internal/mute"
	"github.com/nextlevelbuilder/frontdesk/internal/pipeline"
	"github.com/nextlevelbuilder/frontdesk/internal/store"
	filestore "github.com/nextlevelbuilder/frontdesk/internal/store/file"
	pgstore "github.com/nextlevelbuilder/frontdesk/internal/store/pg"
	sqlitestore "github.com/nextlevelbuilder/frontdesk/internal/store/sqlite"
	"github.com/nextlevelbuilder/frontdesk/internal/tickets"
)

const muteSweepInterval = 10 * time.Minute

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bot (all configured personas)",
		Run: func(cmd *cobra.Command, args []string) {
			runBot()
		},
	}
}

func runBot() {
	setupLogging()

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kv, err := openStore(ctx, cfg.Storage)
	if err != nil {
		slog.Error("failed to open storage", "backend", cfg.Storage.Backend, "error", err)
		os.Exit(1)
	}
	defer kv.Close()

	prompts, err := config.NewPromptStore(cfg.Prompts.Dir, cfg.Personas)
	if err != nil {
		slog.Error("failed to set up prompt store", "error", err)
		os.Exit(1)
	}
	defer prompts.Close()

	provider := llm.NewOpenAIProvider(cfg.LLM.Provider, cfg.LLM.APIKey, cfg.LLM.APIBase, cfg.LLM.Model)
	classifier := intent.New(provider, cfg.LLM.Model)

	log := conversation.NewLog(kv)
	states := conversation.NewRegistry()
	mutes := mute.NewRegistry(kv)
	summarizer := conversation.NewSummarizer(log, provider, cfg.LLM.Model)

	var resolver directory.Resolver
	if cfg.Directory.BaseURL != "" {
		resolver = directory.NewClient(cfg.Directory.BaseURL)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		mutes.RunSweeper(gctx, muteSweepInterval)
		return nil
	})
	g.Go(func() error {
		runPendingSweeper(gctx, states)
		return nil
	})

	for _, persona := range cfg.Personas {
		persona := persona

		msgBus := bus.NewMessageBus()
		channel, err := whatsapp.New(persona.BridgeURL, msgBus)
		if err != nil {
			slog.Error("failed to set up whatsapp channel", "persona", persona.Name, "error", err)
			os.Exit(1)
		}

		p := pipeline.New(persona, pipeline.Deps{
			Bus:        msgBus,
			Channel:    channel,
			Log:        log,
			States:     states,
			Mutes:      mutes,
			Classifier: classifier,
			Summarizer: summarizer,
			Prompts:    prompts,
			Directory:  resolver,
		})

		g.Go(func() error {
			if err := channel.Start(gctx); err != nil {
				return fmt.Errorf("persona %s: start channel: %w", persona.Name, err)
			}
			defer channel.Stop(context.Background())
			return p.Run(gctx)
		})
	}

	slog.Info("frontdesk started", "version", Version, "personas", len(cfg.Personas))

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		slog.Error("frontdesk exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("frontdesk stopped")
}

func setupLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func openStore(ctx context.Context, cfg config.StorageConfig) (store.KV, error) {
	switch cfg.Backend {
	case "", "file":
		return filestore.New(cfg.Dir)
	case "sqlite":
		path := cfg.SQLitePath
		if path == "" {
			path = "frontdesk.db"
		}
		return sqlitestore.New(path)
	case "postgres":
		return pgstore.New(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// runPendingSweeper drops stale pending confirmations that never saw a reply.
func runPendingSweeper(ctx context.Context, states *conversation.Registry) {
	ticker := time.NewTicker(tickets.ConfirmTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := states.SweepPending(tickets.ConfirmTTL); n > 0 {
				slog.Debug("pending sweep", "dropped", n)
			}
		}
	}
}
