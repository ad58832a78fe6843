package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ebrain-io/ebrain/internal/api"
	"github.com/ebrain-io/ebrain/internal/config"
	"github.com/ebrain-io/ebrain/internal/connector"
	slackconn "github.com/ebrain-io/ebrain/internal/connector/slack"
	"github.com/ebrain-io/ebrain/internal/connector/telegram"
	"github.com/ebrain-io/ebrain/internal/mcpserver"
	"github.com/ebrain-io/ebrain/internal/scheduler"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, chat connectors and scheduled reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.ValidateSchedules(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, logs := newLogger(cfg.Log, os.Stdout, "json")
	logger.Info("ebrain starting", "version", mcpserver.Version, "assistant", cfg.Assistant.ID)

	asst, err := newAssistant(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer asst.Close()

	sessions, store, err := openSessions(cfg, asst.boundary, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	router := connector.NewRouter(sessions, logger.With("component", "router"))
	connectors, err := newConnectors(cfg, router.Handle, logger)
	if err != nil {
		return err
	}
	for _, c := range connectors {
		router.Attach(c.Name(), c)
	}

	sched, err := newScheduler(cfg, asst.boundary, router, logger)
	if err != nil {
		return err
	}

	srv := api.NewServer(api.Deps{
		Asker:      asst.boundary,
		Sessions:   sessions,
		Operations: operations(cfg),
		Logs:       logs,
	}, api.Config{
		Addr:        cfg.API.Addr(),
		Key:         cfg.API.Key,
		CORSOrigins: cfg.API.CORSOrigins,
	}, logger.With("component", "api"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })
	for _, c := range connectors {
		g.Go(func() error {
			defer c.Stop()
			return ignoreCanceled(c.Start(gctx))
		})
	}
	if sched.Len() > 0 {
		g.Go(func() error { return ignoreCanceled(sched.Start(gctx)) })
	}

	err = g.Wait()
	logger.Info("ebrain stopped", "error", err)
	return err
}

func newScheduler(cfg *config.Config, asker scheduler.Asker, out scheduler.Deliverer, logger *slog.Logger) (*scheduler.Scheduler, error) {
	sched := scheduler.New(asker, out, logger.With("component", "scheduler"))
	for _, s := range cfg.Schedules {
		if err := sched.Add(scheduler.Job{
			Name:    s.Name,
			Spec:    s.Cron,
			Prompt:  s.Prompt,
			Channel: s.Channel,
			ChatID:  s.ChatID,
		}); err != nil {
			return nil, err
		}
	}
	return sched, nil
}

// newConnectors builds the enabled chat connectors. Each hands inbound
// messages to handle.
func newConnectors(cfg *config.Config, handle connector.InboundHandler, logger *slog.Logger) ([]connector.Connector, error) {
	var out []connector.Connector
	if tc := cfg.Connectors.Telegram; tc.Enabled() {
		c, err := telegram.New(telegram.Config{Token: tc.Token, AllowFrom: tc.AllowFrom},
			handle, logger.With("component", "telegram"))
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if sc := cfg.Connectors.Slack; sc.Enabled() {
		c, err := slackconn.New(slackconn.Config{BotToken: sc.BotToken, AppToken: sc.AppToken, AllowFrom: sc.AllowFrom},
			handle, logger.With("component", "slack"))
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
