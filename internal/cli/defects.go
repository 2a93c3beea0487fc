package cli

import (
	"fmt"
	"strings"

	"wafer-defects/internal/format"
	"wafer-defects/internal/listing"

	"github.com/spf13/cobra"
)

func newSearchCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search defects (no query lists all)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := ""
			if len(args) == 1 {
				query = strings.TrimSpace(args[0])
			}
			snap, err := app.listing.Load(commandContext(cmd), query)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, format.Envelope{Data: snap.Defects, Hints: searchHints(snap)})
		},
	}
	return cmd
}

func searchHints(snap listing.Snapshot) []string {
	if snap.Empty() {
		return []string{snap.EmptyMessage(), "defects upload --help"}
	}
	return []string{
		fmt.Sprintf("defects show %d", snap.Defects[0].ID),
		fmt.Sprintf("defects edit %d --help", snap.Defects[0].ID),
	}
}

func newShowCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <defect-id>",
		Short: "Show one defect with its modes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("defect", args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			d, err := app.client.GetDefect(commandContext(cmd), id)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, format.Envelope{Data: d})
		},
	}
	return cmd
}

func newRenameCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rename <defect-id> <name>",
		Short: "Rename a defect, keeping its PDF and modes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("defect", args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := app.ctl.Rename(commandContext(cmd), id, args[1]); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, format.Envelope{
				Data:  map[string]any{"id": id, "defect_name": args[1]},
				Hints: []string{fmt.Sprintf("defects show %d", id)},
			})
		},
	}
	return cmd
}

func newDeleteCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <defect-id>",
		Short: "Delete a defect and all of its modes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("defect", args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := app.ctl.DeleteDefect(commandContext(cmd), id); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, format.Envelope{Data: map[string]any{"id": id, "deleted": true}})
		},
	}
	return cmd
}
