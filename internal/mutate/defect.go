// Package mutate holds the edit operations of a staging session. Every
// operation takes a snapshot and returns a new one; the input is never
// modified. Validation is deferred to submission.
package mutate

import (
	"wafer-defects/internal/staging"
	"wafer-defects/internal/stagedfile"
)

type Result struct {
	Session staging.Session
	Changed bool
}

// Field names a scalar defect field, keyed by its wire name.
type Field string

const FieldDefectName Field = "defect_name"

// Op is one edit, as applied by the sync controller.
type Op func(staging.Session) (Result, error)

// SetField replaces a scalar field. Any text is accepted, including blanks.
func SetField(s staging.Session, key Field, value string) (Result, error) {
	if s.Submitting() {
		return Result{Session: s}, ErrSessionBusy
	}
	switch key {
	case FieldDefectName:
		if s.Defect.DefectName == value {
			return Result{Session: s}, nil
		}
		next := s.Clone()
		next.Defect.DefectName = value
		return changed(next), nil
	default:
		return Result{Session: s}, UnknownFieldError{Field: key}
	}
}

func SetDefectName(s staging.Session, name string) (Result, error) {
	return SetField(s, FieldDefectName, name)
}

// SetPendingPDF stages a PDF replacing the current reference on submit.
// A nil file unstages the pending one; the persisted reference is kept.
func SetPendingPDF(s staging.Session, f *stagedfile.File) (Result, error) {
	if s.Submitting() {
		return Result{Session: s}, ErrSessionBusy
	}
	if s.Defect.PendingPDF == f {
		return Result{Session: s}, nil
	}
	next := s.Clone()
	next.Defect.PendingPDF = f
	return changed(next), nil
}

func changed(s staging.Session) Result {
	s.Dirty = true
	return Result{Session: s, Changed: true}
}
