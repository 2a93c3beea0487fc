// Package listing holds the search view state: the current query and the
// collection the backend returned for it.
package listing

import (
	"context"
	"errors"
	"sync"

	"wafer-defects/internal/api"
	"wafer-defects/internal/model"
)

type State string

const (
	StateLoading State = "loading"
	StateError   State = "error"
	StateReady   State = "ready"
)

type Searcher interface {
	Search(ctx context.Context, query string) ([]model.Defect, error)
}

// Ticket identifies one issued query. Only the newest ticket may update the
// list, so a slow response never overwrites a newer one.
type Ticket struct {
	Seq   uint64
	Query string
}

type Snapshot struct {
	State   State
	Query   string
	Defects []model.Defect
	Err     string
}

// Empty reports a ready listing with no rows.
func (s Snapshot) Empty() bool { return s.State == StateReady && len(s.Defects) == 0 }

func (s Snapshot) EmptyMessage() string {
	if s.Query == "" {
		return "No defects yet."
	}
	return "No defects match \"" + s.Query + "\"."
}

type Listing struct {
	searcher Searcher

	mu      sync.Mutex
	seq     uint64
	state   State
	query   string
	defects []model.Defect
	err     string
}

func New(s Searcher) *Listing {
	return &Listing{searcher: s, state: StateLoading}
}

// Begin marks a query as issued and returns its ticket.
func (l *Listing) Begin(query string) Ticket {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	l.query = query
	l.state = StateLoading
	return Ticket{Seq: l.seq, Query: query}
}

// Finish applies a response. It reports false and changes nothing when t is
// not the newest ticket.
func (l *Listing) Finish(t Ticket, defects []model.Defect, err error) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t.Seq != l.seq {
		return false
	}
	if err != nil {
		l.state = StateError
		l.err = message(err)
		l.defects = nil
		return true
	}
	if defects == nil {
		defects = []model.Defect{}
	}
	l.state = StateReady
	l.err = ""
	l.defects = defects
	return true
}

// Load issues query and waits for the response.
func (l *Listing) Load(ctx context.Context, query string) (Snapshot, error) {
	t := l.Begin(query)
	defects, err := l.searcher.Search(ctx, query)
	l.Finish(t, defects, err)
	return l.Snapshot(), err
}

// Reload reissues the last query.
func (l *Listing) Reload(ctx context.Context) error {
	_, err := l.Load(ctx, l.Query())
	return err
}

// Fetch runs the search for t without touching state, for callers that
// deliver the result to Finish themselves.
func (l *Listing) Fetch(ctx context.Context, t Ticket) ([]model.Defect, error) {
	return l.searcher.Search(ctx, t.Query)
}

func (l *Listing) Query() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.query
}

func (l *Listing) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	var defects []model.Defect
	if l.defects != nil {
		defects = make([]model.Defect, len(l.defects))
		copy(defects, l.defects)
	}
	return Snapshot{State: l.state, Query: l.query, Defects: defects, Err: l.err}
}

// Find returns the listed defect with id.
func (l *Listing) Find(id int) (model.Defect, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, d := range l.defects {
		if d.ID == id {
			return d.Clone(), true
		}
	}
	return model.Defect{}, false
}

func message(err error) string {
	var te *api.TransportError
	if errors.As(err, &te) {
		return te.UserMessage()
	}
	return err.Error()
}
