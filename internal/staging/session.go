// Package staging holds the value edited by one edit or upload session.
//
// A Session is treated as immutable: the mutate package returns new
// snapshots and never writes through a shared one. Staged files are shared
// between snapshots as read-only pointers.
package staging

import (
	"wafer-defects/internal/model"
	"wafer-defects/internal/stagedfile"

	"github.com/google/uuid"
)

type Flow string

const (
	// FlowEdit updates a persisted defect with PUT /defect/{id}.
	FlowEdit Flow = "edit"
	// FlowUpload creates a defect with POST /admin/upload.
	FlowUpload Flow = "upload"
)

type Status string

const (
	StatusIdle       Status = "idle"
	StatusSubmitting Status = "submitting"
	StatusFailed     Status = "failed"
)

type Mode struct {
	Identity      Identity
	ModeName      string
	Description   string
	ImageFilename string
	PendingImage  *stagedfile.File
}

type Defect struct {
	Identity    Identity
	DefectName  string
	PDFFilename string
	PendingPDF  *stagedfile.File
	Modes       []Mode
}

type Session struct {
	// ID correlates log lines for one session. It never reaches the backend.
	ID     string
	Flow   Flow
	Defect Defect
	Dirty  bool
	Status Status
	// LastError is the message of the last failed submission.
	LastError string
}

// InitFromPersisted seeds an edit session from a listed defect. The listed
// record is copied so later mutations never alias it.
func InitFromPersisted(d model.Defect) Session {
	modes := make([]Mode, 0, len(d.Modes))
	for _, m := range d.Modes {
		modes = append(modes, Mode{
			Identity:      Persisted(m.ID),
			ModeName:      m.ModeName,
			Description:   m.Description,
			ImageFilename: m.ImageFilename,
		})
	}
	return Session{
		ID:   uuid.NewString(),
		Flow: FlowEdit,
		Defect: Defect{
			Identity:    Persisted(d.ID),
			DefectName:  d.DefectName,
			PDFFilename: d.PDFFilename,
			Modes:       modes,
		},
		Status: StatusIdle,
	}
}

// InitEmpty starts an upload session with no name and zero modes.
func InitEmpty() Session {
	return Session{
		ID:     uuid.NewString(),
		Flow:   FlowUpload,
		Defect: Defect{Identity: New(), Modes: []Mode{}},
		Status: StatusIdle,
	}
}

// Clone returns a snapshot whose modes slice can be modified freely.
func (s Session) Clone() Session {
	out := s
	out.Defect.Modes = append([]Mode(nil), s.Defect.Modes...)
	if out.Defect.Modes == nil {
		out.Defect.Modes = []Mode{}
	}
	return out
}

func (s Session) Submitting() bool { return s.Status == StatusSubmitting }

// Files lists every staged file the session references.
func (s Session) Files() []*stagedfile.File {
	var out []*stagedfile.File
	if s.Defect.PendingPDF != nil {
		out = append(out, s.Defect.PendingPDF)
	}
	for _, m := range s.Defect.Modes {
		if m.PendingImage != nil {
			out = append(out, m.PendingImage)
		}
	}
	return out
}

// Superseded returns the files referenced by prev but not by next.
func Superseded(prev, next Session) []*stagedfile.File {
	keep := map[*stagedfile.File]bool{}
	for _, f := range next.Files() {
		keep[f] = true
	}
	var out []*stagedfile.File
	for _, f := range prev.Files() {
		if !keep[f] {
			out = append(out, f)
		}
	}
	return out
}

// Release drops every staged file of the session.
func (s Session) Release() {
	for _, f := range s.Files() {
		f.Release()
	}
}
