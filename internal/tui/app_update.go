package tui

import (
	"fmt"

	"wafer-defects/internal/editsync"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		if m.modal == modalPickFile {
			m.picker.Height = max(m.height-6, 5)
		}
		return m, nil

	case searchResultMsg:
		if !m.listing.Finish(msg.ticket, msg.defects, msg.err) {
			m.log.Debug("stale search response dropped", "query", msg.ticket.Query, "seq", msg.ticket.Seq)
			return m, nil
		}
		m.refreshList()
		return m, nil

	case defectLoadedMsg:
		if msg.err != nil {
			return m, m.showError(editsync.Message(msg.err))
		}
		if m.view == viewEditor {
			return m, nil
		}
		if _, err := m.ctl.Open(msg.defect); err != nil {
			return m, m.showError(err.Error())
		}
		m.openEditor()
		return m, nil

	case submitDoneMsg:
		return m.finishSubmit(msg)

	case deleteDoneMsg:
		if msg.err != nil {
			m.refreshList()
			return m, m.showError("Delete failed: " + editsync.Message(msg.err))
		}
		if m.ctl.ForgetDefect(msg.id) && m.view == viewEditor {
			m.closeEditor()
		}
		m.refreshList()
		return m, tea.Batch(
			m.searchCmd(m.listing.Query()),
			m.showMinibuffer(fmt.Sprintf("Deleted defect #%d.", msg.id)),
		)

	case minibufferClearMsg:
		if msg.setAt.Equal(m.minibufferSetAt) {
			m.minibufferText = ""
			m.minibufferError = false
		}
		return m, nil

	case spinner.TickMsg:
		if s, ok := m.ctl.Session(); !ok || !s.Submitting() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	switch m.modal {
	case modalPickFile:
		return m.updatePicker(msg)
	case modalConfirmDelete, modalConfirmDiscard:
		if km, ok := msg.(tea.KeyMsg); ok {
			return m.updateConfirm(km)
		}
		return m, nil
	case modalHelp:
		if km, ok := msg.(tea.KeyMsg); ok {
			if km.String() == "ctrl+c" {
				return m, tea.Quit
			}
			m.modal = modalNone
		}
		return m, nil
	}

	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	if m.view == viewEditor {
		return m.updateEditorKey(km)
	}
	return m.updateListKey(km)
}

func (m appModel) updateListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.searchActive {
		switch msg.String() {
		case "enter":
			m.searchActive = false
			m.search.Blur()
			return m, m.searchCmd(m.search.Value())
		case "esc":
			m.searchActive = false
			m.search.Blur()
			return m, nil
		case "ctrl+c":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.search, cmd = m.search.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "?":
		m.modal = modalHelp
		return m, nil
	case "/":
		m.searchActive = true
		return m, m.search.Focus()
	case "r":
		return m, m.searchCmd(m.listing.Query())
	case "n":
		if _, err := m.ctl.OpenNew(); err != nil {
			return m, m.showError(err.Error())
		}
		m.openEditor()
		return m, nil
	case "enter", "e":
		d, ok := m.selectedDefect()
		if !ok {
			return m, nil
		}
		return m, tea.Batch(m.loadDefectCmd(d.ID), m.showMinibuffer(fmt.Sprintf("Opening %s…", d.DefectName)))
	case "d", "delete":
		d, ok := m.selectedDefect()
		if !ok {
			return m, nil
		}
		if m.ctl.Busy(editsync.DefectKey(d.ID)) {
			return m, m.showMinibuffer("Already working on this defect.")
		}
		m.modal = modalConfirmDelete
		m.deleteID = d.ID
		m.deleteName = d.DefectName
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m appModel) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y", "enter":
	case "n", "N", "esc", "ctrl+g":
		m.modal = modalNone
		return m, nil
	default:
		return m, nil
	}

	kind := m.modal
	m.modal = modalNone
	switch kind {
	case modalConfirmDelete:
		id := m.deleteID
		m.deleteID, m.deleteName = 0, ""
		return m, tea.Batch(m.deleteCmd(id), m.showMinibuffer(fmt.Sprintf("Deleting defect #%d…", id)))
	case modalConfirmDiscard:
		if err := m.ctl.Cancel(); err != nil {
			return m, m.showError(err.Error())
		}
		m.closeEditor()
		return m, m.showMinibuffer("Changes discarded.")
	}
	return m, nil
}

func (m *appModel) resize() {
	w, h := m.paneSizes()
	m.list.SetSize(w, h)
	m.search.Width = max(m.width-4, 10)
	m.input.Width = max(m.width-labelWidth-4, 10)
}

// paneSizes returns the list pane's width and the body height.
func (m appModel) paneSizes() (int, int) {
	w := m.width * 2 / 5
	if w < 24 {
		w = m.width
	}
	// Header, search line, blank, footer.
	h := m.height - 4
	if h < 3 {
		h = 3
	}
	return w, h
}
