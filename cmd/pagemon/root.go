package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/pagemon/pagemon"
)

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	configPath string
	registry   string
	dbPath     string
	logLevel   string
	getenv     func(string) string
	logOut     io.Writer
}

func newRootCmd(getenv func(string) string) *cobra.Command {
	g := &globals{getenv: getenv, logOut: os.Stderr}

	root := &cobra.Command{
		Use:   "pagemon",
		Short: "Detect changes in web pages and feeds",
		Long: `pagemon fetches every target listed in a CSV registry, reduces it to a
normalized representation, compares it with the last snapshot and posts
first sightings and changes to a Discord webhook.

Without a subcommand it performs one run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd, g)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "YAML config file")
	pf.StringVar(&g.registry, "registry", "", "target registry CSV (default targets.csv)")
	pf.StringVar(&g.dbPath, "db", "", "snapshot database (default state/pagemon.db)")
	pf.StringVar(&g.logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(
		newRunCmd(g),
		newWatchCmd(g),
		newSnapshotsCmd(g),
		newTargetsCmd(g),
	)
	return root
}

// load resolves the configuration: file, then environment, then flags.
func (g *globals) load(cmd *cobra.Command) (*pagemon.Config, *slog.Logger, error) {
	cfg, err := pagemon.LoadConfig(g.configPath)
	if err != nil {
		return nil, nil, err
	}
	cfg.ApplyEnv(g.getenv)

	flags := cmd.Flags()
	if flags.Changed("registry") {
		cfg.Registry = g.registry
	}
	if flags.Changed("db") {
		cfg.DBPath = g.dbPath
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = g.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger := slog.New(slog.NewJSONHandler(g.logOut, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func (g *globals) monitor(cmd *cobra.Command) (*pagemon.Monitor, *pagemon.Config, error) {
	cfg, logger, err := g.load(cmd)
	if err != nil {
		return nil, nil, err
	}
	mon, err := pagemon.New(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init: %w", err)
	}
	return mon, cfg, nil
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
