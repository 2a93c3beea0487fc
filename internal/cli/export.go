package cli

import (
	"os"
	"path/filepath"
	"strings"

	"wafer-defects/internal/format"

	"github.com/spf13/cobra"
)

func newExportCmd(app *App) *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "export <file.xlsx>",
		Short: "Export search results to a spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if path != "-" && !strings.EqualFold(filepath.Ext(path), ".xlsx") {
				return writeErr(cmd, errUsage("export file must end in .xlsx: %q", path))
			}
			snap, err := app.listing.Load(commandContext(cmd), strings.TrimSpace(query))
			if err != nil {
				return writeErr(cmd, err)
			}
			if path == "-" {
				return format.WriteXLSX(cmd.OutOrStdout(), snap.Defects, snap.Query)
			}

			f, err := os.Create(path)
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := format.WriteXLSX(f, snap.Defects, snap.Query); err != nil {
				_ = f.Close()
				return writeErr(cmd, err)
			}
			if err := f.Close(); err != nil {
				return writeErr(cmd, err)
			}
			modes := 0
			for _, d := range snap.Defects {
				modes += len(d.Modes)
			}
			return writeOut(cmd, app, format.Envelope{Data: map[string]any{
				"file":    path,
				"defects": len(snap.Defects),
				"modes":   modes,
			}})
		},
	}
	cmd.Flags().StringVar(&query, "query", "", "Only export defects matching this search")
	return cmd
}
