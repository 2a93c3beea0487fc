package cli

import (
	"wafer-defects/internal/config"
	"wafer-defects/internal/format"

	"github.com/spf13/cobra"
)

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or write client settings",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the resolved settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeOut(cmd, app, format.Envelope{Data: configView(app.cfg)})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:         "init",
		Short:       "Write the resolved settings to the config file",
		Annotations: map[string]string{annotationWritesConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.Save(app.cfg, app.ConfigPath)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, format.Envelope{Data: map[string]any{"path": path}})
		},
	})
	return cmd
}

const annotationWritesConfig = "writes-config"

func configView(cfg config.Config) map[string]any {
	return map[string]any{
		"base_url":         cfg.BaseURL,
		"timeout":          cfg.Timeout.String(),
		"max_upload_bytes": cfg.MaxUploadBytes,
		"log_file":         cfg.LogFile,
		"log_level":        cfg.LogLevel,
		"log_mode":         cfg.LogMode,
		"format":           cfg.Format,
		"source":           cfg.Source,
	}
}
