package tui

import (
	"fmt"
	"io"
	"strings"

	"wafer-defects/internal/model"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type defectItem struct {
	defect model.Defect
	// busy marks a direct operation in flight on this defect.
	busy bool
}

func (i defectItem) FilterValue() string { return i.defect.DefectName }

func (i defectItem) Title() string {
	name := strings.TrimSpace(i.defect.DefectName)
	if name == "" {
		name = "(unnamed)"
	}
	return name
}

func (i defectItem) Meta() string {
	meta := fmt.Sprintf("#%d  %d mode", i.defect.ID, len(i.defect.Modes))
	if len(i.defect.Modes) != 1 {
		meta += "s"
	}
	if i.busy {
		meta += "  working…"
	}
	return meta
}

func defectItems(defects []model.Defect, busy func(id int) bool) []list.Item {
	items := make([]list.Item, 0, len(defects))
	for _, d := range defects {
		items = append(items, defectItem{defect: d, busy: busy(d.ID)})
	}
	return items
}

// defectDelegate renders one defect per line: name left, id and mode count
// right-aligned in muted text.
type defectDelegate struct{}

func (d defectDelegate) Height() int                             { return 1 }
func (d defectDelegate) Spacing() int                            { return 0 }
func (d defectDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d defectDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(defectItem)
	if !ok {
		return
	}
	width := m.Width()
	if width < 4 {
		return
	}

	meta := it.Meta()
	titleW := width - lipgloss.Width(meta) - 3
	if titleW < 1 {
		titleW = width - 2
		meta = ""
	}
	title := fitLine(it.Title(), titleW)

	selected := index == m.Index()
	base := lipgloss.NewStyle()
	marker := "  "
	if selected {
		base = base.Foreground(colorSelectedFg).Background(colorSelectedBg).Bold(true)
		marker = "▸ "
	}
	metaStyle := base.Foreground(colorMuted).Bold(false)

	line := base.Render(marker+title+" ") + metaStyle.Render(meta)
	if pad := width - lipgloss.Width(line); pad > 0 {
		line += base.Render(strings.Repeat(" ", pad))
	}
	fmt.Fprint(w, line)
}

func newDefectList() list.Model {
	l := list.New(nil, defectDelegate{}, 0, 0)
	l.SetShowTitle(false)
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowPagination(true)
	l.DisableQuitKeybindings()
	return l
}
