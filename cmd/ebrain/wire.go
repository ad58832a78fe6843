package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ebrain-io/ebrain/internal/agent"
	"github.com/ebrain-io/ebrain/internal/config"
	"github.com/ebrain-io/ebrain/internal/mcpserver"
	"github.com/ebrain-io/ebrain/internal/provider"
	"github.com/ebrain-io/ebrain/internal/redmine"
	"github.com/ebrain-io/ebrain/internal/servicenow"
	"github.com/ebrain-io/ebrain/internal/session"
	"github.com/ebrain-io/ebrain/internal/tool"
)

// operations builds the operation table against the configured remote
// systems, gated by the assistant's AgentSpec.
func operations(cfg *config.Config) []tool.Operation {
	issues := redmine.New(redmine.Config{
		BaseURL: cfg.Redmine.URL,
		APIKey:  cfg.Redmine.APIKey,
	})
	records := servicenow.New(servicenow.Config{
		Instance:    cfg.ServiceNow.Instance,
		Username:    cfg.ServiceNow.Username,
		Password:    cfg.ServiceNow.Password,
		AccessToken: cfg.ServiceNow.AccessToken,
	})
	return tool.Filter(tool.Operations(issues, records), cfg.Assistant)
}

// assistant is the agent behind its boundary plus whatever must be closed
// when the process ends.
type assistant struct {
	boundary *agent.Boundary
	closers  []io.Closer
}

func (a *assistant) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func newAssistant(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*assistant, error) {
	if err := cfg.ValidateProvider(); err != nil {
		return nil, err
	}
	prov, err := provider.New(ctx, cfg.Provider)
	if err != nil {
		return nil, err
	}

	a := &assistant{}
	reg := tool.NewRegistry()
	switch cfg.Tools.Source {
	case config.ToolSourceMCP:
		client, err := spawnSelf(ctx)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client)
		for _, t := range client.Tools() {
			if err := reg.Register(t); err != nil {
				a.Close()
				return nil, err
			}
		}
	default:
		if err := tool.RegisterOperations(reg, operations(cfg)); err != nil {
			return nil, err
		}
	}

	clients, err := tool.RegisterMCPTools(ctx, reg, cfg.MCPServers)
	if err != nil {
		a.Close()
		return nil, err
	}
	for _, c := range clients {
		a.closers = append(a.closers, c)
	}

	ag := agent.New(cfg.Assistant, prov, reg)
	ag.Logger = logger.With("component", "agent")
	a.boundary = agent.NewBoundary(ag, logger.With("component", "boundary"))

	logger.Info("assistant ready",
		"id", cfg.Assistant.ID,
		"provider", prov.Name(),
		"tool_source", cfg.Tools.Source,
		"tools", len(reg.List()),
	)
	return a, nil
}

// spawnSelf runs "ebrain mcp" as a child process with the same settings and
// connects to it.
func spawnSelf(ctx context.Context) (*tool.MCPClient, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	args := []string{"mcp"}
	if flags.configFile != "" {
		args = append(args, "--config", flags.configFile)
	}
	if flags.envFile != "" {
		args = append(args, "--env-file", flags.envFile)
	}
	if flags.verbose {
		args = append(args, "-v")
	}

	return tool.NewMCPClient(ctx, mcpserver.Name, tool.NewStdioTransport(self, args, nil))
}

func openSessions(cfg *config.Config, asker session.Asker, logger *slog.Logger) (*session.Service, *session.SQLiteStore, error) {
	store, err := session.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("session store opened", "path", cfg.Store.Path)
	return session.NewService(store, asker, logger.With("component", "session")), store, nil
}
