package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"wafer-defects/internal/api"
	"wafer-defects/internal/config"
	"wafer-defects/internal/editsync"
	"wafer-defects/internal/format"
	"wafer-defects/internal/listing"
	"wafer-defects/internal/logging"
	"wafer-defects/internal/tui"

	"github.com/spf13/cobra"
)

type App struct {
	ConfigPath string
	BaseURL    string
	Timeout    time.Duration
	LogFile    string
	LogLevel   string
	PrettyJSON bool
	Format     string

	cfg     config.Config
	log     *logging.Logger
	client  *api.Client
	listing *listing.Listing
	ctl     *editsync.Controller
}

func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "defects",
		Short:        "Wafer defect catalog editor (CLI + TUI)",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Start the interactive TUI
  defects

  # Search and inspect
  defects search scratch
  defects 7

  # Edit defect 7: rename, add a mode with an image, drop the first mode
  defects edit 7 --name "Scratch (deep)" \
    --add-mode-name Pit --add-mode-description "small pit" --add-mode-image pit.png \
    --remove-mode 0
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			// No subcommand => interactive TUI.
			if cmd.HasSubCommands() && len(args) == 0 {
				return runTUI(app)
			}
			return cmd.Help()
		},
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return app.setup(cmd)
	}
	cmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if app.log != nil {
			app.log.Sync()
		}
		return nil
	}

	cmd.PersistentFlags().StringVar(&app.ConfigPath, "config", "", "Config file (default: $XDG_CONFIG_HOME/wafer-defects/config.yaml)")
	cmd.PersistentFlags().StringVar(&app.BaseURL, "base-url", "", "Defect service URL (overrides DEFECTS_BASE_URL and config)")
	cmd.PersistentFlags().DurationVar(&app.Timeout, "timeout", 0, "HTTP timeout per request")
	cmd.PersistentFlags().StringVar(&app.LogFile, "log-file", "", "Write logs to this file")
	cmd.PersistentFlags().StringVar(&app.LogLevel, "log-level", "", "Log level (debug|info|warn|error)")
	cmd.PersistentFlags().BoolVar(&app.PrettyJSON, "pretty", false, "Pretty-print output")
	cmd.PersistentFlags().StringVar(&app.Format, "format", "", "Output format (json|edn)")

	cmd.AddCommand(newSearchCmd(app))
	cmd.AddCommand(newShowCmd(app))
	cmd.AddCommand(newUploadCmd(app))
	cmd.AddCommand(newEditCmd(app))
	cmd.AddCommand(newRenameCmd(app))
	cmd.AddCommand(newDeleteCmd(app))
	cmd.AddCommand(newModesCmd(app))
	cmd.AddCommand(newExportCmd(app))
	cmd.AddCommand(newConfigCmd(app))
	cmd.AddCommand(newDocsCmd(app))

	return cmd
}

// setup layers flags over the loaded config and builds the shared clients.
func (app *App) setup(cmd *cobra.Command) error {
	path := app.ConfigPath
	if cmd.Annotations[annotationWritesConfig] == "true" {
		// The file may not exist yet; it is about to be written.
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return writeErr(cmd, err)
	}
	flags := cmd.Flags()
	if flags.Changed("base-url") {
		cfg.BaseURL = app.BaseURL
	}
	if flags.Changed("timeout") {
		cfg.Timeout = app.Timeout
	}
	if flags.Changed("log-file") {
		cfg.LogFile = app.LogFile
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = app.LogLevel
	}
	if flags.Changed("format") {
		cfg.Format = app.Format
	}
	if err := cfg.Validate(); err != nil {
		return writeErr(cmd, err)
	}
	app.cfg = cfg
	app.Format = cfg.Format

	// The TUI owns the terminal: without a log file it logs nothing.
	if cmd == cmd.Root() && cfg.LogFile == "" {
		app.log = logging.Nop()
	} else {
		l, err := logging.New(logging.Options{Mode: cfg.LogMode, Level: cfg.LogLevel, File: cfg.LogFile})
		if err != nil {
			return writeErr(cmd, err)
		}
		app.log = l
	}

	c, err := api.New(cfg.BaseURL, api.WithTimeout(cfg.Timeout), api.WithLogger(app.log))
	if err != nil {
		return writeErr(cmd, err)
	}
	app.client = c
	app.listing = listing.New(c)
	app.ctl = editsync.New(c, editsync.WithLogger(app.log))
	return nil
}

func runTUI(app *App) error {
	return tui.Run(tui.Options{
		Client:         app.client,
		Listing:        app.listing,
		Controller:     app.ctl,
		Logger:         app.log,
		BaseURL:        app.cfg.BaseURL,
		MaxUploadBytes: app.cfg.MaxUploadBytes,
		Debug:          os.Getenv("DEFECTS_DEBUG") == "1",
	})
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func writeOut(cmd *cobra.Command, app *App, v any) error {
	return format.Write(cmd.OutOrStdout(), v, app.Format, app.PrettyJSON)
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	return err
}
