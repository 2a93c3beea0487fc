package cli

import (
	"fmt"

	"wafer-defects/internal/encode"
	"wafer-defects/internal/format"

	"github.com/spf13/cobra"
)

func newModesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modes",
		Short: "Change single modes without an edit session",
	}
	cmd.AddCommand(newModesAddCmd(app))
	cmd.AddCommand(newModesUpdateCmd(app))
	cmd.AddCommand(newModesDeleteCmd(app))
	return cmd
}

// modeChangeFlags reads the flags that were actually given.
func modeChangeFlags(cmd *cobra.Command, app *App, name, description, image string) (encode.ModeChange, error) {
	var c encode.ModeChange
	if cmd.Flags().Changed("name") {
		c.ModeName = &name
	}
	if cmd.Flags().Changed("description") {
		c.Description = &description
	}
	if image != "" {
		img, err := stageImage(app, image)
		if err != nil {
			return c, err
		}
		c.Image = img
	}
	return c, nil
}

func newModesAddCmd(app *App) *cobra.Command {
	var name, description, image string
	cmd := &cobra.Command{
		Use:   "add <defect-id>",
		Short: "Append a mode to a defect",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("defect", args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			change, err := modeChangeFlags(cmd, app, name, description, image)
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := app.ctl.AddMode(commandContext(cmd), id, change); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, format.Envelope{
				Data:  map[string]any{"defect_id": id, "mode_name": name, "added": true},
				Hints: []string{fmt.Sprintf("defects show %d", id)},
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Mode name")
	cmd.Flags().StringVar(&description, "description", "", "Mode description")
	cmd.Flags().StringVar(&image, "image", "", "Mode image (png or jpeg)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func newModesUpdateCmd(app *App) *cobra.Command {
	var name, description, image string
	cmd := &cobra.Command{
		Use:   "update <mode-id>",
		Short: "Change one mode in place",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("mode", args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			change, err := modeChangeFlags(cmd, app, name, description, image)
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := app.ctl.UpdateMode(commandContext(cmd), id, change); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, format.Envelope{Data: map[string]any{"mode_id": id, "updated": true}})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "New mode name")
	cmd.Flags().StringVar(&description, "description", "", "New description")
	cmd.Flags().StringVar(&image, "image", "", "Replace the image")
	return cmd
}

func newModesDeleteCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <mode-id>",
		Short: "Delete one mode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("mode", args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := app.ctl.DeleteMode(commandContext(cmd), id); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, format.Envelope{Data: map[string]any{"mode_id": id, "deleted": true}})
		},
	}
	return cmd
}
