package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"printshelf/internal/api"
	"printshelf/internal/cache"
	"printshelf/internal/clock"
	"printshelf/internal/config"
	"printshelf/internal/format"
	"printshelf/internal/ledger"
	"printshelf/internal/preview"
)

// App holds the persistent flags shared by every command.
type App struct {
	APIURL     string
	ConfigPath string
	Format     string
	Pretty     bool
	LogLevel   string
	LogFile    string
	Timeout    time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "printshelf",
		Short:        "Terminal client for a 3D-print file library",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Start the interactive TUI
  printshelf

  # Scriptable commands
  printshelf browse miniatures/dragons
  printshelf search dragon --tag miniature --page 2
  printshelf scan --watch
  printshelf download project 42 --extract
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			// No subcommand => interactive TUI.
			if len(args) == 0 {
				return app.runTUI()
			}
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !format.Valid(app.Format) {
				return fmt.Errorf("unknown --format %q (json|yaml)", app.Format)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&app.APIURL, "api-url", envOr(config.EnvBaseURL, ""), "Backend origin (default from settings, else "+config.DefaultBaseURL+")")
	cmd.PersistentFlags().StringVar(&app.ConfigPath, "config", envOr(config.EnvConfigPath, ""), "Settings file (default ~/.printshelf_config.json)")
	cmd.PersistentFlags().StringVar(&app.Format, "format", envOr("PRINTSHELF_FORMAT", "json"), "Output format (json|yaml)")
	cmd.PersistentFlags().BoolVar(&app.Pretty, "pretty", false, "Pretty-print JSON output")
	cmd.PersistentFlags().StringVar(&app.LogLevel, "log-level", envOr("PRINTSHELF_LOG_LEVEL", "warn"), "Log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&app.LogFile, "log-file", "", "Log file for the TUI (default in the state directory)")
	cmd.PersistentFlags().DurationVar(&app.Timeout, "timeout", api.DefaultTimeout, "Per-request timeout")

	cmd.AddCommand(newBrowseCmd(app))
	cmd.AddCommand(newSearchCmd(app))
	cmd.AddCommand(newProjectCmd(app))
	cmd.AddCommand(newFilesCmd(app))
	cmd.AddCommand(newTagsCmd(app))
	cmd.AddCommand(newScanCmd(app))
	cmd.AddCommand(newConfigCmd(app))
	cmd.AddCommand(newDownloadCmd(app))
	cmd.AddCommand(newDownloadsCmd(app))

	return cmd
}

func (app *App) runTUI() error {
	e, cleanup, err := app.newEnv(true)
	if err != nil {
		return err
	}
	defer cleanup()
	return runTUI(e)
}

// newEnv loads settings and builds the shared collaborators. The TUI logs
// to a file since it owns the terminal; commands log to stderr.
func (app *App) newEnv(tui bool) (*env, func(), error) {
	path := app.ConfigPath
	if path == "" {
		path = config.Path()
	}
	cfg, cfgErr := config.Load(path)
	cfg.ApplyEnv(os.Getenv)
	if app.APIURL != "" {
		cfg.APIBaseURL = app.APIURL
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	level := parseLevel(app.LogLevel)
	var out io.Writer = os.Stderr
	if tui {
		logPath := app.LogFile
		if logPath == "" {
			logPath = cfg.LogPath()
		}
		f, err := openLogFile(logPath)
		if err != nil {
			out = io.Discard
		} else {
			out = f
			closers = append(closers, func() { f.Close() })
			if app.LogLevel == "warn" {
				level = slog.LevelInfo
			}
		}
	}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	if cfgErr != nil {
		logger.Warn("settings file unreadable, using defaults", "path", path, "err", cfgErr)
	}

	client, err := api.New(cfg.APIBaseURL, api.WithTimeout(app.Timeout), api.WithLogger(logger))
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	previews, err := preview.NewLoader(client, 256, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	tiles, err := cache.New(cache.DefaultSize)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	// Downloads still work without the ledger; they are just not recorded.
	l, err := ledger.Open(cfg.LedgerFile())
	if err != nil {
		logger.Warn("download ledger unavailable", "path", cfg.LedgerFile(), "err", err)
		l = nil
	} else {
		closers = append(closers, func() { l.Close() })
	}

	e := &env{
		client:   client,
		previews: previews,
		tiles:    tiles,
		cfg:      cfg,
		ledger:   l,
		logger:   logger,
		clock:    clock.Real(),
		send:     func(tea.Msg) {},
	}
	return e, cleanup, nil
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelWarn
	}
	return level
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func writeOut(cmd *cobra.Command, app *App, v any) error {
	return format.Write(cmd.OutOrStdout(), v, app.Format, app.Pretty)
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), "error:", api.UserMessage(err))
	return err
}
