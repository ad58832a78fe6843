// Command ebrain is the Enterprise Brain assistant for Redmine and
// ServiceNow: an HTTP API with chat connectors, an MCP server and a
// terminal client.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ebrain-io/ebrain/internal/config"
	"github.com/ebrain-io/ebrain/internal/logbuf"
	"github.com/ebrain-io/ebrain/internal/mcpserver"
)

// logBufferSize is how many records GET /api/logs can return.
const logBufferSize = 2000

type rootFlags struct {
	configFile string
	envFile    string
	verbose    bool
	json       bool
}

var flags rootFlags

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ebrain",
		Short: "Enterprise Brain: an assistant for Redmine and ServiceNow",
		Long: `ebrain answers questions about Redmine issues and ServiceNow records and
acts on them through a fixed set of operations.

Settings come from defaults, an optional config file, a dotenv file (.env)
and the environment. REDMINE_URL, REDMINE_API_KEY, SNOW_INSTANCE, SNOW_USER,
SNOW_PASS, SNOW_TOKEN and OPENAI_API_KEY are honoured, as is EBRAIN_<KEY>
for every setting.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       mcpserver.Version,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.configFile, "config", "", "config file (YAML, JSON or TOML)")
	pf.StringVar(&flags.envFile, "env-file", "", "dotenv file (default .env when present)")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")
	pf.BoolVar(&flags.json, "json", false, "print JSON instead of tables")

	cmd.AddCommand(
		serveCmd(),
		mcpCmd(),
		chatCmd(),
		askCmd(),
		toolsCmd(),
		fieldsCmd(),
		recordsCmd(),
		sessionsCmd(),
		scheduleCmd(),
		configCmd(),
	)
	return cmd
}

func loadConfig() (*config.Config, error) {
	var overrides map[string]any
	if flags.verbose {
		overrides = map[string]any{"log.level": "debug"}
	}
	return config.Load(config.Options{
		ConfigFile: flags.configFile,
		EnvFile:    flags.envFile,
		Overrides:  overrides,
	})
}

// newLogger builds the process logger. Every record at the configured level
// is also kept in the returned buffer. format is used unless log.format
// overrides it.
func newLogger(cfg config.LogConfig, w io.Writer, format string) (*slog.Logger, *logbuf.Buffer) {
	level := parseLevel(cfg.Level)
	if cfg.Format != "" {
		format = cfg.Format
	}

	opts := &slog.HandlerOptions{Level: level}
	var inner slog.Handler
	if strings.EqualFold(format, "json") {
		inner = slog.NewJSONHandler(w, opts)
	} else {
		inner = slog.NewTextHandler(w, opts)
	}

	buf := logbuf.New(logBufferSize)
	return slog.New(logbuf.NewHandler(inner, buf, level)), buf
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
