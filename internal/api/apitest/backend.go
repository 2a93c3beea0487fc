// Package apitest runs an in-memory defect service for tests. It parses the
// same multipart bodies the real backend does and records every request.
package apitest

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"wafer-defects/internal/model"
)

type File struct {
	Filename    string
	ContentType string
	Size        int
}

// Request is one recorded call.
type Request struct {
	Method    string
	Path      string
	Query     string
	RequestID string
	// Order lists multipart part names as they arrived.
	Order  []string
	Fields map[string]string
	Files  map[string]File
}

func (r Request) HasField(name string) bool {
	_, ok := r.Fields[name]
	return ok
}

type failure struct {
	status  int
	message string
}

type Backend struct {
	Server *httptest.Server

	// BareArray makes search answer with a JSON array instead of an envelope.
	BareArray bool

	mu       sync.Mutex
	defects  []model.Defect
	nextID   int
	nextMode int
	requests []Request
	failures []failure
}

// New starts a backend seeded with defects. Seed ids are kept.
func New(t testing.TB, seed ...model.Defect) *Backend {
	t.Helper()
	b := &Backend{nextID: 100, nextMode: 1000}
	for _, d := range seed {
		b.defects = append(b.defects, d.Clone())
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /defect/search", b.search)
	mux.HandleFunc("GET /defect/{id}", b.getDefect)
	mux.HandleFunc("POST /admin/upload", b.upload)
	mux.HandleFunc("PUT /defect/{id}", b.updateDefect)
	mux.HandleFunc("DELETE /defect/{id}", b.deleteDefect)
	mux.HandleFunc("POST /defect/mode/{id}", b.addMode)
	mux.HandleFunc("PUT /defect/mode/{id}", b.updateMode)
	mux.HandleFunc("DELETE /defect/mode/{id}", b.deleteMode)
	b.Server = httptest.NewServer(b.record(mux))
	t.Cleanup(b.Server.Close)
	return b
}

func (b *Backend) URL() string { return b.Server.URL }

// FailNext makes the next request fail with status and message.
func (b *Backend) FailNext(status int, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = append(b.failures, failure{status: status, message: message})
}

func (b *Backend) Requests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Request(nil), b.requests...)
}

// Calls counts requests with the given method whose path starts with prefix.
func (b *Backend) Calls(method, prefix string) int {
	n := 0
	for _, r := range b.Requests() {
		if r.Method == method && strings.HasPrefix(r.Path, prefix) {
			n++
		}
	}
	return n
}

func (b *Backend) Last() (Request, bool) {
	reqs := b.Requests()
	if len(reqs) == 0 {
		return Request{}, false
	}
	return reqs[len(reqs)-1], true
}

func (b *Backend) Defects() []model.Defect {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.Defect, 0, len(b.defects))
	for _, d := range b.defects {
		out = append(out, d.Clone())
	}
	return out
}

func (b *Backend) Defect(id int) (model.Defect, bool) {
	for _, d := range b.Defects() {
		if d.ID == id {
			return d, true
		}
	}
	return model.Defect{}, false
}

func (b *Backend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := Request{
			Method:    r.Method,
			Path:      r.URL.Path,
			Query:     r.URL.Query().Get("query"),
			RequestID: r.Header.Get("X-Request-ID"),
			Fields:    map[string]string{},
			Files:     map[string]File{},
		}
		if err := readMultipart(r, &rec); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		b.mu.Lock()
		b.requests = append(b.requests, rec)
		var fail *failure
		if len(b.failures) > 0 {
			f := b.failures[0]
			b.failures = b.failures[1:]
			fail = &f
		}
		b.mu.Unlock()
		if fail != nil {
			writeError(w, fail.status, fail.message)
			return
		}
		next.ServeHTTP(w, r.WithContext(withRequest(r.Context(), rec)))
	})
}

func readMultipart(r *http.Request, rec *Request) error {
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		return nil
	}
	mr := multipart.NewReader(r.Body, params["boundary"])
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read multipart: %w", err)
		}
		data, err := io.ReadAll(part)
		if err != nil {
			return fmt.Errorf("read part: %w", err)
		}
		name := part.FormName()
		rec.Order = append(rec.Order, name)
		if part.FileName() != "" {
			rec.Files[name] = File{Filename: part.FileName(), ContentType: part.Header.Get("Content-Type"), Size: len(data)}
			continue
		}
		rec.Fields[name] = string(data)
	}
}

func (b *Backend) search(w http.ResponseWriter, r *http.Request) {
	q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("query")))
	out := []model.Defect{}
	for _, d := range b.Defects() {
		if q == "" || matches(d, q) {
			out = append(out, d)
		}
	}
	if b.BareArray {
		writeJSON(w, http.StatusOK, out)
		return
	}
	writeJSON(w, http.StatusOK, model.SearchResponse{Defects: out})
}

func matches(d model.Defect, q string) bool {
	if strings.Contains(strings.ToLower(d.DefectName), q) {
		return true
	}
	for _, m := range d.Modes {
		if strings.Contains(strings.ToLower(m.ModeName), q) || strings.Contains(strings.ToLower(m.Description), q) {
			return true
		}
	}
	return false
}

func (b *Backend) getDefect(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	d, found := b.Defect(id)
	if !found {
		writeError(w, http.StatusNotFound, "Defect not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

var modeField = regexp.MustCompile(`^modes\[(\d+)\]\[(id|mode_name|description|image_file)\]$`)

type modeRow struct {
	id          string
	name        string
	description string
	image       string
}

func modeRows(rec Request) []modeRow {
	rows := map[int]*modeRow{}
	set := func(name, value string) {
		m := modeField.FindStringSubmatch(name)
		if m == nil {
			return
		}
		i, _ := strconv.Atoi(m[1])
		row := rows[i]
		if row == nil {
			row = &modeRow{}
			rows[i] = row
		}
		switch m[2] {
		case "id":
			row.id = value
		case "mode_name":
			row.name = value
		case "description":
			row.description = value
		case "image_file":
			row.image = value
		}
	}
	for name, v := range rec.Fields {
		set(name, v)
	}
	for name, f := range rec.Files {
		set(name, f.Filename)
	}
	idx := make([]int, 0, len(rows))
	for i := range rows {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	out := make([]modeRow, 0, len(idx))
	for _, i := range idx {
		out = append(out, *rows[i])
	}
	return out
}

func (b *Backend) upload(w http.ResponseWriter, r *http.Request) {
	rec := requestFrom(r.Context())
	name := strings.TrimSpace(rec.Fields["defect_name"])
	if name == "" {
		writeError(w, http.StatusBadRequest, "Defect name is required")
		return
	}
	pdf, ok := rec.Files["pdf_file"]
	if !ok {
		writeError(w, http.StatusBadRequest, "PDF file is required")
		return
	}
	rows := modeRows(rec)
	if len(rows) == 0 {
		writeError(w, http.StatusBadRequest, "At least one mode is required")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	d := model.Defect{ID: b.nextID, DefectName: name, PDFFilename: pdf.Filename}
	b.nextID++
	for _, row := range rows {
		d.Modes = append(d.Modes, model.Mode{ID: b.nextMode, ModeName: row.name, Description: row.description, ImageFilename: row.image})
		b.nextMode++
	}
	b.defects = append(b.defects, d)
	writeJSON(w, http.StatusCreated, map[string]any{"status": "success", "message": "Defect uploaded", "data": map[string]int{"id": d.ID}})
}

func (b *Backend) updateDefect(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rec := requestFrom(r.Context())

	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.indexOf(id)
	if i < 0 {
		writeError(w, http.StatusNotFound, "Defect not found")
		return
	}
	d := b.defects[i].Clone()
	if name, ok := rec.Fields["defect_name"]; ok {
		if strings.TrimSpace(name) == "" {
			writeError(w, http.StatusBadRequest, "Defect name cannot be empty")
			return
		}
		d.DefectName = strings.TrimSpace(name)
	}
	if pdf, ok := rec.Files["pdf_file"]; ok {
		d.PDFFilename = pdf.Filename
	}
	if rows := modeRows(rec); len(rows) > 0 {
		modes := make([]model.Mode, 0, len(rows))
		for _, row := range rows {
			var m model.Mode
			if row.id == "" {
				m = model.Mode{ID: b.nextMode}
				b.nextMode++
			} else {
				mid, err := strconv.Atoi(row.id)
				existing, found := d.FindMode(mid)
				if err != nil || !found {
					writeError(w, http.StatusBadRequest, "Unknown mode id "+row.id)
					return
				}
				m = existing
			}
			m.ModeName = row.name
			m.Description = row.description
			if row.image != "" {
				m.ImageFilename = row.image
			}
			modes = append(modes, m)
		}
		d.Modes = modes
	}
	b.defects[i] = d
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Defect updated"})
}

func (b *Backend) deleteDefect(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.indexOf(id)
	if i < 0 {
		writeError(w, http.StatusNotFound, "Defect not found")
		return
	}
	b.defects = append(b.defects[:i], b.defects[i+1:]...)
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Defect deleted"})
}

func (b *Backend) addMode(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rec := requestFrom(r.Context())
	name := strings.TrimSpace(rec.Fields["mode"])
	desc := strings.TrimSpace(rec.Fields["description"])
	if name == "" || desc == "" {
		writeError(w, http.StatusBadRequest, "Mode and description are required")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.indexOf(id)
	if i < 0 {
		writeError(w, http.StatusNotFound, "Defect not found")
		return
	}
	m := model.Mode{ID: b.nextMode, ModeName: name, Description: desc, ImageFilename: rec.Files["image"].Filename}
	b.nextMode++
	b.defects[i].Modes = append(b.defects[i].Modes, m)
	writeJSON(w, http.StatusCreated, map[string]any{"status": "success", "message": "Mode added", "data": map[string]int{"id": m.ID}})
}

func (b *Backend) updateMode(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rec := requestFrom(r.Context())
	b.mu.Lock()
	defer b.mu.Unlock()
	di, mi := b.modeIndex(id)
	if di < 0 {
		writeError(w, http.StatusNotFound, "Mode not found")
		return
	}
	m := &b.defects[di].Modes[mi]
	if v, ok := rec.Fields["mode"]; ok {
		m.ModeName = strings.TrimSpace(v)
	}
	if v, ok := rec.Fields["description"]; ok {
		m.Description = strings.TrimSpace(v)
	}
	if f, ok := rec.Files["image"]; ok {
		m.ImageFilename = f.Filename
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Mode updated"})
}

func (b *Backend) deleteMode(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	di, mi := b.modeIndex(id)
	if di < 0 {
		writeError(w, http.StatusNotFound, "Mode not found")
		return
	}
	modes := b.defects[di].Modes
	b.defects[di].Modes = append(modes[:mi:mi], modes[mi+1:]...)
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Mode deleted"})
}

func (b *Backend) indexOf(id int) int {
	for i, d := range b.defects {
		if d.ID == id {
			return i
		}
	}
	return -1
}

func (b *Backend) modeIndex(id int) (int, int) {
	for di, d := range b.defects {
		for mi, m := range d.Modes {
			if m.ID == id {
				return di, mi
			}
		}
	}
	return -1, -1
}

func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Not found")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "message": message})
}
