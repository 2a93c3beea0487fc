package tui

import (
	"context"
	"time"

	"wafer-defects/internal/api"
	"wafer-defects/internal/editsync"
	"wafer-defects/internal/listing"
	"wafer-defects/internal/logging"
	"wafer-defects/internal/model"
	"wafer-defects/internal/stagedfile"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

type Options struct {
	Client     *api.Client
	Listing    *listing.Listing
	Controller *editsync.Controller
	Logger     *logging.Logger
	BaseURL    string
	// MaxUploadBytes caps staged files; zero means stagedfile.DefaultMaxBytes.
	MaxUploadBytes int64
	// Debug turns misuse errors (bad mode positions) into panics.
	Debug bool
}

type view int

const (
	viewList view = iota
	viewEditor
)

type modalKind int

const (
	modalNone modalKind = iota
	modalConfirmDelete
	modalConfirmDiscard
	modalPickFile
	modalHelp
)

const minibufferAutoClearAfter = 4 * time.Second

// Messages delivered by commands. Network calls never touch the model; they
// report back through these.
type (
	searchResultMsg struct {
		ticket  listing.Ticket
		defects []model.Defect
		err     error
	}
	defectLoadedMsg struct {
		defect model.Defect
		err    error
	}
	submitDoneMsg struct {
		sub editsync.Submission
		err error
	}
	deleteDoneMsg struct {
		id  int
		err error
	}
	minibufferClearMsg struct {
		setAt time.Time
	}
)

type appModel struct {
	client  *api.Client
	listing *listing.Listing
	ctl     *editsync.Controller
	log     *logging.Logger
	baseURL string
	maxSize int64
	debug   bool
	ctx     context.Context

	width  int
	height int

	view  view
	modal modalKind

	search       textinput.Model
	searchActive bool
	list         list.Model

	editor  editorState
	input   textinput.Model
	spinner spinner.Model
	picker  filepicker.Model
	// pickFor is the editor field the open file picker stages into.
	pickFor field

	deleteID   int
	deleteName string

	minibufferText  string
	minibufferError bool
	minibufferSetAt time.Time
}

func newAppModel(opts Options) appModel {
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	maxSize := opts.MaxUploadBytes
	if maxSize <= 0 {
		maxSize = stagedfile.DefaultMaxBytes
	}

	search := textinput.New()
	search.Prompt = "/ "
	search.Placeholder = "search defects, modes, descriptions"
	search.CharLimit = 200

	input := textinput.New()
	input.Prompt = ""
	input.CharLimit = 2000

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return appModel{
		client:  opts.Client,
		listing: opts.Listing,
		ctl:     opts.Controller,
		log:     log,
		baseURL: opts.BaseURL,
		maxSize: maxSize,
		debug:   opts.Debug,
		ctx:     context.Background(),
		view:    viewList,
		search:  search,
		list:    newDefectList(),
		input:   input,
		spinner: sp,
	}
}

func (m appModel) Init() tea.Cmd {
	return m.searchCmd(m.listing.Query())
}

// searchCmd issues query. Only the newest ticket's response is applied.
func (m appModel) searchCmd(query string) tea.Cmd {
	t := m.listing.Begin(query)
	l := m.listing
	ctx := m.ctx
	return func() tea.Msg {
		defects, err := l.Fetch(ctx, t)
		return searchResultMsg{ticket: t, defects: defects, err: err}
	}
}

func (m appModel) loadDefectCmd(id int) tea.Cmd {
	c := m.client
	ctx := m.ctx
	return func() tea.Msg {
		d, err := c.GetDefect(ctx, id)
		return defectLoadedMsg{defect: d, err: err}
	}
}

func (m appModel) transmitCmd(sub editsync.Submission) tea.Cmd {
	ctl := m.ctl
	ctx := m.ctx
	return func() tea.Msg {
		return submitDoneMsg{sub: sub, err: ctl.Transmit(ctx, sub)}
	}
}

func (m appModel) deleteCmd(id int) tea.Cmd {
	ctl := m.ctl
	ctx := m.ctx
	// Only the request runs here; the session and listing are updated when
	// deleteDoneMsg arrives.
	return func() tea.Msg {
		return deleteDoneMsg{id: id, err: ctl.DeleteDefect(ctx, id)}
	}
}

func (m *appModel) showMinibuffer(text string) tea.Cmd {
	m.minibufferText = text
	m.minibufferError = false
	m.minibufferSetAt = time.Now()
	return m.minibufferClearCmd()
}

func (m *appModel) showError(text string) tea.Cmd {
	cmd := m.showMinibuffer(text)
	m.minibufferError = true
	return cmd
}

func (m appModel) minibufferClearCmd() tea.Cmd {
	setAt := m.minibufferSetAt
	return tea.Tick(minibufferAutoClearAfter, func(time.Time) tea.Msg {
		return minibufferClearMsg{setAt: setAt}
	})
}

// refreshList copies the listing snapshot into the list widget.
func (m *appModel) refreshList() {
	snap := m.listing.Snapshot()
	idx := m.list.Index()
	m.list.SetItems(defectItems(snap.Defects, func(id int) bool {
		return m.ctl.Busy(editsync.DefectKey(id))
	}))
	if n := len(snap.Defects); n > 0 {
		if idx >= n {
			idx = n - 1
		}
		m.list.Select(idx)
	}
}

func (m appModel) selectedDefect() (model.Defect, bool) {
	it, ok := m.list.SelectedItem().(defectItem)
	if !ok {
		return model.Defect{}, false
	}
	return it.defect, true
}
