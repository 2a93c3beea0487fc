package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"wafer-defects/internal/editsync"
	"wafer-defects/internal/encode"
	"wafer-defects/internal/format"
	"wafer-defects/internal/mutate"
	"wafer-defects/internal/staging"
	"wafer-defects/internal/stagedfile"

	"github.com/spf13/cobra"
)

// modeFlags are parallel lists describing modes to append.
type modeFlags struct {
	names        []string
	descriptions []string
	images       []string
}

func (m modeFlags) count() (int, error) {
	n := len(m.names)
	if len(m.descriptions) != n {
		return 0, errUsage("got %d mode names but %d descriptions", n, len(m.descriptions))
	}
	if len(m.images) > n {
		return 0, errUsage("got %d mode images for %d modes", len(m.images), n)
	}
	return n, nil
}

func newUploadCmd(app *App) *cobra.Command {
	var (
		name   string
		pdf    string
		modes  modeFlags
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Create a defect with its PDF and modes",
		Example: strings.TrimSpace(`
  defects upload --name Scratch --pdf scratch.pdf \
    --mode-name Surface --mode-description "linear mark" --mode-image surface.png
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.ctl.OpenNew(); err != nil {
				return writeErr(cmd, err)
			}
			defer func() { _ = app.ctl.Cancel() }()

			if err := apply(app.ctl, func(s staging.Session) (mutate.Result, error) {
				return mutate.SetDefectName(s, name)
			}); err != nil {
				return writeErr(cmd, err)
			}
			if pdf != "" {
				if err := stagePDF(app, pdf); err != nil {
					return writeErr(cmd, err)
				}
			}
			if err := appendModes(app, modes); err != nil {
				return writeErr(cmd, err)
			}
			return finishSession(cmd, app, dryRun)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Defect name")
	cmd.Flags().StringVar(&pdf, "pdf", "", "Reference PDF")
	cmd.Flags().StringArrayVar(&modes.names, "mode-name", nil, "Mode name (repeatable)")
	cmd.Flags().StringArrayVar(&modes.descriptions, "mode-description", nil, "Mode description (repeatable, one per --mode-name)")
	cmd.Flags().StringArrayVar(&modes.images, "mode-image", nil, "Mode image, png or jpeg (repeatable, one per --mode-name)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate and print the request without sending it")
	return cmd
}

func newEditCmd(app *App) *cobra.Command {
	var (
		name       string
		pdf        string
		setMode    []string
		removeMode []int
		add        modeFlags
		dryRun     bool
	)
	cmd := &cobra.Command{
		Use:   "edit <defect-id>",
		Short: "Edit a defect and its modes in one submission",
		Long: strings.TrimSpace(`
Edit a defect and its modes in one submission.

Mode positions are 0-based and refer to the defect as it is now.
--set-mode changes are applied first, then --remove-mode, then new modes
are appended. Removed modes are deleted by the submission itself.
`),
		Example: strings.TrimSpace(`
  defects edit 7 --set-mode "0:description=deep linear mark" --set-mode 0:image=surface-v2.png
  defects edit 7 --remove-mode 1 --dry-run
`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("defect", args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			d, err := app.client.GetDefect(commandContext(cmd), id)
			if err != nil {
				return writeErr(cmd, err)
			}
			if _, err := app.ctl.Open(d); err != nil {
				return writeErr(cmd, err)
			}
			defer func() { _ = app.ctl.Cancel() }()

			if cmd.Flags().Changed("name") {
				if err := apply(app.ctl, func(s staging.Session) (mutate.Result, error) {
					return mutate.SetDefectName(s, name)
				}); err != nil {
					return writeErr(cmd, err)
				}
			}
			if pdf != "" {
				if err := stagePDF(app, pdf); err != nil {
					return writeErr(cmd, err)
				}
			}
			for _, spec := range setMode {
				if err := setModeField(app, spec); err != nil {
					return writeErr(cmd, err)
				}
			}
			if err := removeModes(app, removeMode); err != nil {
				return writeErr(cmd, err)
			}
			if err := appendModes(app, add); err != nil {
				return writeErr(cmd, err)
			}
			return finishSession(cmd, app, dryRun)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "New defect name")
	cmd.Flags().StringVar(&pdf, "pdf", "", "Replace the reference PDF")
	cmd.Flags().StringArrayVar(&setMode, "set-mode", nil, `Change a mode: "<pos>:<name|description|image>=<value>" (repeatable)`)
	cmd.Flags().IntSliceVar(&removeMode, "remove-mode", nil, "Remove the mode at this position (repeatable)")
	cmd.Flags().StringArrayVar(&add.names, "add-mode-name", nil, "Append a mode with this name (repeatable)")
	cmd.Flags().StringArrayVar(&add.descriptions, "add-mode-description", nil, "Description for each appended mode")
	cmd.Flags().StringArrayVar(&add.images, "add-mode-image", nil, "Image for each appended mode")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate and print the request without sending it")
	return cmd
}

func apply(ctl *editsync.Controller, op mutate.Op) error {
	_, err := ctl.Apply(op)
	return err
}

// applyStaged applies op, which stages f. If op fails the session never
// referenced f, so it is released here.
func applyStaged(ctl *editsync.Controller, f *stagedfile.File, op mutate.Op) error {
	err := apply(ctl, op)
	if err != nil && f != nil {
		f.Release()
	}
	return err
}

func stagePDF(app *App, path string) error {
	f, err := stagedfile.Load(stagedfile.KindPDF, path, app.cfg.MaxUploadBytes)
	if err != nil {
		return err
	}
	return applyStaged(app.ctl, f, func(s staging.Session) (mutate.Result, error) {
		return mutate.SetPendingPDF(s, f)
	})
}

func stageImage(app *App, path string) (*stagedfile.File, error) {
	return stagedfile.Load(stagedfile.KindImage, path, app.cfg.MaxUploadBytes)
}

func appendModes(app *App, m modeFlags) error {
	n, err := m.count()
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		patch := mutate.ModePatch{ModeName: &m.names[i], Description: &m.descriptions[i]}
		if i < len(m.images) && m.images[i] != "" {
			img, err := stageImage(app, m.images[i])
			if err != nil {
				return err
			}
			patch.PendingImage = img
		}
		if err := applyStaged(app.ctl, patch.PendingImage, mutate.AddMode); err != nil {
			return err
		}
		if err := applyStaged(app.ctl, patch.PendingImage, func(s staging.Session) (mutate.Result, error) {
			return mutate.UpdateModeAt(s, len(s.Defect.Modes)-1, patch)
		}); err != nil {
			return err
		}
	}
	return nil
}

// setModeField applies one "<pos>:<field>=<value>" change.
func setModeField(app *App, spec string) error {
	posStr, rest, ok := strings.Cut(spec, ":")
	if !ok {
		return errUsage("invalid --set-mode %q: expected <pos>:<field>=<value>", spec)
	}
	field, value, ok := strings.Cut(rest, "=")
	if !ok {
		return errUsage("invalid --set-mode %q: expected <pos>:<field>=<value>", spec)
	}
	pos, err := strconv.Atoi(strings.TrimSpace(posStr))
	if err != nil {
		return errUsage("invalid --set-mode %q: bad position", spec)
	}
	if err := checkPosition(app, pos); err != nil {
		return err
	}

	var patch mutate.ModePatch
	switch strings.TrimSpace(field) {
	case "name", "mode_name":
		patch.ModeName = &value
	case "description":
		patch.Description = &value
	case "image", "image_file":
		img, err := stageImage(app, value)
		if err != nil {
			return err
		}
		patch.PendingImage = img
	default:
		return errUsage("invalid --set-mode %q: unknown field %q (name|description|image)", spec, field)
	}
	return applyStaged(app.ctl, patch.PendingImage, func(s staging.Session) (mutate.Result, error) {
		return mutate.UpdateModeAt(s, pos, patch)
	})
}

// removeModes removes positions counted before any removal, highest first so
// the lower ones stay valid.
func removeModes(app *App, positions []int) error {
	ps := append([]int(nil), positions...)
	sort.Sort(sort.Reverse(sort.IntSlice(ps)))
	for i, pos := range ps {
		if i > 0 && pos == ps[i-1] {
			continue
		}
		if err := checkPosition(app, pos); err != nil {
			return err
		}
		if err := apply(app.ctl, func(s staging.Session) (mutate.Result, error) {
			return mutate.RemoveModeAt(s, pos)
		}); err != nil {
			return err
		}
	}
	return nil
}

// checkPosition turns a bad user-supplied position into a usage error
// before it can reach the mutation as an IndexError.
func checkPosition(app *App, pos int) error {
	s, ok := app.ctl.Session()
	if !ok {
		return editsync.ErrNoSession
	}
	if pos < 0 || pos >= len(s.Defect.Modes) {
		return errUsage("no mode at position %d (defect has %d)", pos, len(s.Defect.Modes))
	}
	return nil
}

// finishSession submits the open session, or prints it with --dry-run.
func finishSession(cmd *cobra.Command, app *App, dryRun bool) error {
	s, ok := app.ctl.Session()
	if !ok {
		return writeErr(cmd, editsync.ErrNoSession)
	}
	if dryRun {
		if err := s.Validate(); err != nil {
			return writeErr(cmd, err)
		}
		p, err := encode.EncodeDefect(s)
		if err != nil {
			return writeErr(cmd, err)
		}
		fmt.Fprint(cmd.ErrOrStderr(), p.Describe())
		return writeOut(cmd, app, format.Envelope{Data: map[string]any{
			"dry_run": true,
			"target":  target(s),
			"parts":   p.Summary(),
		}})
	}

	if err := app.ctl.Submit(commandContext(cmd)); err != nil {
		return writeErr(cmd, err)
	}
	data := map[string]any{"submitted": true, "target": target(s)}
	if id, ok := s.Defect.Identity.ID(); ok {
		data["id"] = id
		return writeOut(cmd, app, format.Envelope{Data: data, Hints: []string{fmt.Sprintf("defects show %d", id)}})
	}
	return writeOut(cmd, app, format.Envelope{Data: data, Hints: []string{fmt.Sprintf("defects search %q", s.Defect.DefectName)}})
}

func target(s staging.Session) string {
	if id, ok := s.Defect.Identity.ID(); ok {
		return fmt.Sprintf("PUT /defect/%d", id)
	}
	return "POST /admin/upload"
}
