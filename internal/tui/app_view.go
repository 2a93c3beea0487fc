package tui

import (
	"fmt"
	"strings"

	"wafer-defects/internal/docs"
	"wafer-defects/internal/listing"

	"github.com/charmbracelet/lipgloss"
)

func (m appModel) View() string {
	if m.width == 0 {
		return "Loading…"
	}

	var body string
	switch {
	case m.modal == modalPickFile:
		body = m.viewPicker()
	case m.view == viewEditor:
		body = m.viewEditor()
	default:
		body = m.viewList()
	}
	switch m.modal {
	case modalConfirmDelete:
		name := strings.TrimSpace(m.deleteName)
		if name == "" {
			name = "(unnamed)"
		}
		body = renderConfirm(m.width, "Delete defect",
			fmt.Sprintf("Delete %q (#%d) and all of its modes?", name, m.deleteID))
	case modalConfirmDiscard:
		body = renderConfirm(m.width, "Discard changes",
			"This defect has unsaved changes. Discard them?")
	case modalHelp:
		help, _ := docs.Get("tui")
		body = renderMarkdown(help, min(m.width-2, 100))
	}

	bodyH := max(m.height-1, 1)
	return fitPane(body, m.width, bodyH) + "\n" + m.footer()
}

func (m appModel) viewList() string {
	header := styleTitle().Render("Wafer defects")
	if m.baseURL != "" {
		header += styleMuted().Render("  " + m.baseURL)
	}
	lines := []string{header}

	search := m.search.View()
	if !m.searchActive {
		q := m.search.Value()
		if q == "" {
			search = styleMuted().Render("/ search")
		} else {
			search = styleMuted().Render("/ ") + q
		}
	}
	lines = append(lines, search, "")

	snap := m.listing.Snapshot()
	listW, bodyH := m.paneSizes()
	switch {
	case snap.State == listing.StateLoading && len(m.list.Items()) == 0:
		lines = append(lines, styleMuted().Render("Loading…"))
	case snap.State == listing.StateError:
		lines = append(lines,
			styleError().Render("Could not load defects: "+snap.Err),
			styleMuted().Render("r: retry"))
	case snap.Empty():
		lines = append(lines,
			styleMuted().Render(snap.EmptyMessage()),
			styleMuted().Render("n: new defect"))
	default:
		left := fitPane(m.list.View(), listW, bodyH)
		if listW >= m.width {
			lines = append(lines, left)
			break
		}
		detailW := m.width - listW - 2
		detail := ""
		if d, ok := m.selectedDefect(); ok {
			detail = renderMarkdown(defectMarkdown(d), detailW)
		}
		right := fitPane(detail, detailW, bodyH)
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right))
	}
	return strings.Join(lines, "\n")
}

func (m appModel) viewPicker() string {
	what := "image (png or jpeg)"
	if m.pickFor.kind == fieldPDF {
		what = "reference PDF"
	}
	return strings.Join([]string{
		styleTitle().Render("Choose " + what),
		styleMuted().Render(m.picker.CurrentDirectory),
		"",
		m.picker.View(),
	}, "\n")
}

func (m appModel) footer() string {
	if m.minibufferText != "" {
		st := lipgloss.NewStyle()
		if m.minibufferError {
			st = styleError()
		}
		return fitLine(st.Render(m.minibufferText), m.width)
	}
	var help string
	switch {
	case m.modal == modalPickFile:
		help = "↑↓: move  enter: choose  ←/backspace: up a directory  esc: close"
	case m.modal == modalHelp:
		help = "any key: close"
	case m.modal != modalNone:
		help = "y/enter: confirm  n/esc: cancel"
	case m.view == viewEditor:
		help = editorHelp()
	case m.searchActive:
		help = "enter: search  esc: done"
	default:
		help = "/: search  enter: edit  n: new  d: delete  r: reload  ?: help  q: quit"
	}
	return fitLine(styleMuted().Render(help), m.width)
}

func renderConfirm(width int, title, body string) string {
	boxW := min(max(width-4, 20), 72)
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorAccent).
		Padding(1, 2).
		Width(boxW)
	controls := styleBadge().Render("y  confirm") + "  " +
		lipgloss.NewStyle().Padding(0, 1).Background(colorControlBg).Render("n  cancel")
	content := strings.Join([]string{styleTitle().Render(title), "", body, "", controls}, "\n")
	return "\n" + lipgloss.PlaceHorizontal(width, lipgloss.Center, box.Render(content))
}
