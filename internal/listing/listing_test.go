package listing

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"wafer-defects/internal/api"
	"wafer-defects/internal/api/apitest"
	"wafer-defects/internal/model"
)

type fakeSearcher struct {
	queries []string
	results []model.Defect
	err     error
}

func (f *fakeSearcher) Search(ctx context.Context, q string) ([]model.Defect, error) {
	f.queries = append(f.queries, q)
	return f.results, f.err
}

func TestLoad_States(t *testing.T) {
	fs := &fakeSearcher{results: []model.Defect{{ID: 1, DefectName: "Scratch"}}}
	l := New(fs)
	if l.Snapshot().State != StateLoading {
		t.Fatalf("initial state = %s", l.Snapshot().State)
	}

	snap, err := l.Load(context.Background(), "scr")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap.State != StateReady || len(snap.Defects) != 1 || snap.Query != "scr" {
		t.Fatalf("snapshot = %+v", snap)
	}

	fs.err = errors.New("boom")
	snap, _ = l.Load(context.Background(), "scr")
	if snap.State != StateError || snap.Err != "boom" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if len(snap.Defects) != 0 {
		t.Fatalf("error state must clear the previous list")
	}
}

func TestEmptyIsDistinctFromLoading(t *testing.T) {
	l := New(&fakeSearcher{})
	if l.Snapshot().Empty() {
		t.Fatalf("loading is not empty")
	}
	snap, _ := l.Load(context.Background(), "")
	if !snap.Empty() || snap.Defects == nil {
		t.Fatalf("expected ready and empty: %+v", snap)
	}
	if snap.EmptyMessage() != "No defects yet." {
		t.Fatalf("message = %q", snap.EmptyMessage())
	}
	snap, _ = l.Load(context.Background(), "pit")
	if snap.EmptyMessage() != `No defects match "pit".` {
		t.Fatalf("message = %q", snap.EmptyMessage())
	}
}

func TestFinish_DropsStaleResponses(t *testing.T) {
	l := New(&fakeSearcher{})
	first := l.Begin("a")
	second := l.Begin("ab")

	if !l.Finish(second, []model.Defect{{ID: 2}}, nil) {
		t.Fatalf("newest ticket must apply")
	}
	if l.Finish(first, []model.Defect{{ID: 1}}, nil) {
		t.Fatalf("stale ticket must be ignored")
	}
	snap := l.Snapshot()
	if len(snap.Defects) != 1 || snap.Defects[0].ID != 2 || snap.Query != "ab" {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestReload_ReissuesLastQuery(t *testing.T) {
	fs := &fakeSearcher{}
	l := New(fs)
	_, _ = l.Load(context.Background(), "pit")
	if err := l.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if len(fs.queries) != 2 || fs.queries[1] != "pit" {
		t.Fatalf("queries = %v", fs.queries)
	}
}

func TestLoad_AgainstBackend(t *testing.T) {
	b := apitest.New(t, model.Defect{ID: 7, DefectName: "Scratch"})
	c, err := api.New(b.URL())
	if err != nil {
		t.Fatalf("api.New: %v", err)
	}
	l := New(c)
	if _, err := l.Load(context.Background(), ""); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if d, ok := l.Find(7); !ok || d.DefectName != "Scratch" {
		t.Fatalf("Find(7) = %+v, %v", d, ok)
	}

	b.FailNext(http.StatusInternalServerError, "Database error")
	snap, err := l.Load(context.Background(), "")
	if err == nil || snap.State != StateError || snap.Err != "Database error" {
		t.Fatalf("snapshot = %+v err=%v", snap, err)
	}
}
