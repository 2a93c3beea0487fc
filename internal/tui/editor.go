package tui

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"wafer-defects/internal/mutate"
	"wafer-defects/internal/stagedfile"
	"wafer-defects/internal/staging"

	"github.com/charmbracelet/bubbles/filepicker"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const labelWidth = 14

type fieldKind int

const (
	fieldName fieldKind = iota
	fieldPDF
	fieldModeName
	fieldModeDescription
	fieldModeImage
)

// field is one focusable editor row. mode is the mode position for the
// mode fields.
type field struct {
	kind fieldKind
	mode int
}

func (f field) isText() bool {
	return f.kind == fieldName || f.kind == fieldModeName || f.kind == fieldModeDescription
}

func (f field) isFile() bool { return f.kind == fieldPDF || f.kind == fieldModeImage }

// problemKey is the validation field name this row reports under.
func (f field) problemKey() string {
	switch f.kind {
	case fieldName:
		return "defect_name"
	case fieldPDF:
		return "pdf_file"
	case fieldModeName:
		return fmt.Sprintf("modes[%d].mode_name", f.mode)
	case fieldModeDescription:
		return fmt.Sprintf("modes[%d].description", f.mode)
	case fieldModeImage:
		return fmt.Sprintf("modes[%d].image_file", f.mode)
	}
	return ""
}

func (f field) label() string {
	switch f.kind {
	case fieldName:
		return "Name"
	case fieldPDF:
		return "PDF"
	case fieldModeName:
		return "Mode name"
	case fieldModeDescription:
		return "Description"
	case fieldModeImage:
		return "Image"
	}
	return ""
}

type editorState struct {
	focus int
	// showProblems is set by a rejected submit; problems then track edits live.
	showProblems bool
}

func editorFields(s staging.Session) []field {
	out := []field{{kind: fieldName}, {kind: fieldPDF}}
	for i := range s.Defect.Modes {
		out = append(out,
			field{kind: fieldModeName, mode: i},
			field{kind: fieldModeDescription, mode: i},
			field{kind: fieldModeImage, mode: i},
		)
	}
	return out
}

func fieldValue(s staging.Session, f field) string {
	switch f.kind {
	case fieldName:
		return s.Defect.DefectName
	case fieldModeName:
		if f.mode < len(s.Defect.Modes) {
			return s.Defect.Modes[f.mode].ModeName
		}
	case fieldModeDescription:
		if f.mode < len(s.Defect.Modes) {
			return s.Defect.Modes[f.mode].Description
		}
	}
	return ""
}

// setTextOp is the mutation for one keystroke in a text field.
func setTextOp(f field, value string) mutate.Op {
	return func(s staging.Session) (mutate.Result, error) {
		switch f.kind {
		case fieldName:
			return mutate.SetDefectName(s, value)
		case fieldModeName:
			return mutate.UpdateModeAt(s, f.mode, mutate.ModePatch{ModeName: &value})
		default:
			return mutate.UpdateModeAt(s, f.mode, mutate.ModePatch{Description: &value})
		}
	}
}

func (m *appModel) openEditor() {
	m.view = viewEditor
	m.editor = editorState{}
	m.syncInput()
}

func (m *appModel) closeEditor() {
	m.view = viewList
	m.editor = editorState{}
	m.input.Blur()
	m.input.SetValue("")
}

func (m appModel) focusedField() (field, bool) {
	s, ok := m.ctl.Session()
	if !ok {
		return field{}, false
	}
	fields := editorFields(s)
	if m.editor.focus < 0 || m.editor.focus >= len(fields) {
		return field{}, false
	}
	return fields[m.editor.focus], true
}

// syncInput loads the focused text field into the input and clamps focus.
func (m *appModel) syncInput() {
	s, ok := m.ctl.Session()
	if !ok {
		return
	}
	fields := editorFields(s)
	if m.editor.focus >= len(fields) {
		m.editor.focus = len(fields) - 1
	}
	if m.editor.focus < 0 {
		m.editor.focus = 0
	}
	f := fields[m.editor.focus]
	if !f.isText() {
		m.input.Blur()
		m.input.SetValue("")
		return
	}
	m.input.SetValue(fieldValue(s, f))
	m.input.CursorEnd()
	m.input.Focus()
}

func (m *appModel) moveFocus(delta int) {
	s, ok := m.ctl.Session()
	if !ok {
		return
	}
	n := len(editorFields(s))
	m.editor.focus = (m.editor.focus + delta + n) % n
	m.syncInput()
}

func (m *appModel) focusMode(i int) {
	// Name and PDF come first; each mode has three rows.
	m.editor.focus = 2 + i*3
	m.syncInput()
}

// applyOp runs op against the session. Misuse errors (bad positions) panic
// in debug mode; everything else goes to the minibuffer.
func (m *appModel) applyOp(op mutate.Op) (mutate.Result, tea.Cmd) {
	res, err := m.ctl.Apply(op)
	if err == nil {
		return res, nil
	}
	var ie mutate.IndexError
	if errors.As(err, &ie) {
		m.log.Error("mode position out of range", "op", ie.Op, "index", ie.Index, "len", ie.Len)
		if m.debug {
			panic(err)
		}
	}
	if errors.Is(err, mutate.ErrSessionBusy) {
		return res, m.showMinibuffer("Submitting… edits are disabled until it finishes.")
	}
	return res, m.showError(err.Error())
}

func (m appModel) updateEditorKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	s, ok := m.ctl.Session()
	if !ok {
		m.closeEditor()
		return m, nil
	}
	if s.Submitting() {
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, m.showMinibuffer("Submitting… edits are disabled until it finishes.")
	}

	switch msg.String() {
	case "ctrl+c":
		_ = m.ctl.Cancel()
		return m, tea.Quit
	case "esc":
		if s.Dirty {
			m.modal = modalConfirmDiscard
			return m, nil
		}
		_ = m.ctl.Cancel()
		m.closeEditor()
		return m, nil
	case "tab", "down":
		m.moveFocus(1)
		return m, nil
	case "shift+tab", "up":
		m.moveFocus(-1)
		return m, nil
	case "ctrl+s":
		return m.beginSubmit()
	case "ctrl+n":
		res, cmd := m.applyOp(mutate.AddMode)
		if res.Changed {
			m.focusMode(len(res.Session.Defect.Modes) - 1)
		}
		return m, cmd
	case "ctrl+d":
		f, ok := m.focusedField()
		if !ok || f.kind < fieldModeName {
			return m, m.showMinibuffer("Move to a mode to remove it.")
		}
		_, cmd := m.applyOp(func(s staging.Session) (mutate.Result, error) {
			return mutate.RemoveModeAt(s, f.mode)
		})
		m.syncInput()
		return m, cmd
	case "ctrl+x":
		f, ok := m.focusedField()
		if !ok || !f.isFile() {
			return m, nil
		}
		_, cmd := m.applyOp(unstageOp(f))
		return m, cmd
	case "ctrl+o", "enter":
		f, ok := m.focusedField()
		if ok && f.isFile() {
			return m.openPicker(f)
		}
		if msg.String() == "enter" {
			m.moveFocus(1)
		}
		return m, nil
	}

	f, ok := m.focusedField()
	if !ok || !f.isText() {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if v := m.input.Value(); v != fieldValue(s, f) {
		_, errCmd := m.applyOp(setTextOp(f, v))
		return m, tea.Batch(cmd, errCmd)
	}
	return m, cmd
}

func unstageOp(f field) mutate.Op {
	return func(s staging.Session) (mutate.Result, error) {
		if f.kind == fieldPDF {
			return mutate.SetPendingPDF(s, nil)
		}
		return mutate.ClearModeImage(s, f.mode)
	}
}

func (m appModel) beginSubmit() (tea.Model, tea.Cmd) {
	sub, err := m.ctl.BeginSubmit()
	if err != nil {
		var ve *staging.ValidationError
		if errors.As(err, &ve) {
			m.editor.showProblems = true
			return m, m.showError("Cannot submit: " + problemSummary(ve))
		}
		return m, m.showError(err.Error())
	}
	m.input.Blur()
	return m, tea.Batch(
		m.transmitCmd(sub),
		m.spinner.Tick,
		m.showMinibuffer("Submitting "+sub.Describe()+"…"),
	)
}

func problemSummary(ve *staging.ValidationError) string {
	parts := make([]string, 0, len(ve.Problems))
	for _, p := range ve.Problems {
		parts = append(parts, p.Field+" "+p.Message)
	}
	return strings.Join(parts, "; ")
}

func (m appModel) finishSubmit(msg submitDoneMsg) (tea.Model, tea.Cmd) {
	out := m.ctl.FinishSubmit(msg.sub, msg.err)
	if out.Cleared {
		m.closeEditor()
		return m, tea.Batch(
			m.searchCmd(m.listing.Query()),
			m.showMinibuffer("Saved."),
		)
	}
	m.syncInput()
	return m, m.showError("Submit failed: " + out.Message)
}

func (m appModel) openPicker(f field) (tea.Model, tea.Cmd) {
	fp := filepicker.New()
	if f.kind == fieldPDF {
		fp.AllowedTypes = []string{".pdf", ".PDF"}
	} else {
		fp.AllowedTypes = []string{".png", ".jpg", ".jpeg", ".PNG", ".JPG", ".JPEG"}
	}
	if wd, err := os.Getwd(); err == nil {
		fp.CurrentDirectory = wd
	}
	fp.ShowHidden = false
	fp.AutoHeight = false
	fp.Height = max(m.height-6, 5)
	m.picker = fp
	m.pickFor = f
	m.modal = modalPickFile
	m.input.Blur()
	return m, m.picker.Init()
}

func (m appModel) updatePicker(msg tea.Msg) (tea.Model, tea.Cmd) {
	if km, ok := msg.(tea.KeyMsg); ok {
		switch km.String() {
		case "esc", "ctrl+g":
			m.modal = modalNone
			m.syncInput()
			return m, nil
		case "ctrl+c":
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.picker, cmd = m.picker.Update(msg)
	if ok, path := m.picker.DidSelectFile(msg); ok {
		m.modal = modalNone
		m.syncInput()
		return m, m.stageFile(m.pickFor, path)
	}
	if ok, path := m.picker.DidSelectDisabledFile(msg); ok {
		return m, tea.Batch(cmd, m.showError(fmt.Sprintf("%s is not an allowed file type.", path)))
	}
	return m, cmd
}

// stageFile reads path into memory and stages it on f.
func (m *appModel) stageFile(f field, path string) tea.Cmd {
	kind := stagedfile.KindImage
	if f.kind == fieldPDF {
		kind = stagedfile.KindPDF
	}
	sf, err := stagedfile.Load(kind, path, m.maxSize)
	if err != nil {
		return m.showError(err.Error())
	}
	res, cmd := m.applyOp(func(s staging.Session) (mutate.Result, error) {
		if f.kind == fieldPDF {
			return mutate.SetPendingPDF(s, sf)
		}
		return mutate.UpdateModeAt(s, f.mode, mutate.ModePatch{PendingImage: sf})
	})
	if !res.Changed {
		sf.Release()
		return cmd
	}
	return m.showMinibuffer("Staged " + sf.Preview())
}

func (m appModel) viewEditor() string {
	s, ok := m.ctl.Session()
	if !ok {
		return ""
	}
	width := max(m.width, 40)
	var b strings.Builder

	title := "New defect"
	if id, ok := s.Defect.Identity.ID(); ok {
		title = fmt.Sprintf("Edit defect #%d", id)
	}
	header := styleTitle().Render(title)
	switch {
	case s.Submitting():
		header += "  " + styleBadge().Render(m.spinner.View()+" submitting")
	case s.Status == staging.StatusFailed:
		header += "  " + styleBadge().Background(colorError).Render("failed")
	}
	if s.Dirty {
		header += "  " + lipgloss.NewStyle().Foreground(colorDirty).Render("● modified")
	}
	b.WriteString(fitLine(header, width) + "\n")
	if s.Status == staging.StatusFailed && s.LastError != "" {
		b.WriteString(fitLine(styleError().Render(s.LastError), width) + "\n")
	}
	b.WriteString("\n")

	var problems *staging.ValidationError
	if m.editor.showProblems {
		if err := s.Validate(); err != nil {
			errors.As(err, &problems)
		}
	}

	for i, f := range editorFields(s) {
		if f.kind == fieldModeName {
			b.WriteString("\n")
			mode := s.Defect.Modes[f.mode]
			heading := fmt.Sprintf("Mode %d", f.mode+1)
			if id, ok := mode.Identity.ID(); ok {
				heading += styleMuted().Render(fmt.Sprintf("  #%d", id))
			} else {
				heading += styleMuted().Render("  new")
			}
			b.WriteString(styleTitle().Render(heading) + "\n")
		}
		focused := i == m.editor.focus && m.modal == modalNone && !s.Submitting()
		line := styleLabel(focused).Render(f.label()) + m.fieldView(s, f, focused)
		if problems != nil && problems.Has(f.problemKey()) {
			line += "  " + styleError().Render("required")
		}
		b.WriteString(fitLine(line, width) + "\n")
	}
	if problems != nil && problems.Has("modes") {
		b.WriteString("\n" + styleError().Render("Add at least one mode (ctrl+n).") + "\n")
	}
	return b.String()
}

func (m appModel) fieldView(s staging.Session, f field, focused bool) string {
	if f.isText() {
		if focused {
			return m.input.View()
		}
		v := fieldValue(s, f)
		if v == "" {
			return styleMuted().Render("(empty)")
		}
		return v
	}

	var current string
	var pending *stagedfile.File
	if f.kind == fieldPDF {
		current, pending = s.Defect.PDFFilename, s.Defect.PendingPDF
	} else {
		mode := s.Defect.Modes[f.mode]
		current, pending = mode.ImageFilename, mode.PendingImage
	}
	var out string
	switch {
	case pending != nil && current != "":
		out = current + " → " + pending.Preview()
	case pending != nil:
		out = pending.Preview()
	case current != "":
		out = current
	default:
		out = styleMuted().Render("(none)")
	}
	if focused {
		hint := "enter: choose file"
		if pending != nil {
			hint += "  ctrl+x: unstage"
		}
		out += "  " + styleMuted().Render(hint)
	}
	return out
}

func editorHelp() string {
	return "tab/↑↓: move  ctrl+n: add mode  ctrl+d: remove mode  enter: pick file  ctrl+s: submit  esc: cancel"
}
