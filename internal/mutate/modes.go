package mutate

import (
	"wafer-defects/internal/staging"
	"wafer-defects/internal/stagedfile"
)

// ModePatch holds the fields to merge into a mode. Nil fields are left alone.
type ModePatch struct {
	ModeName     *string
	Description  *string
	PendingImage *stagedfile.File
}

func (p ModePatch) empty() bool {
	return p.ModeName == nil && p.Description == nil && p.PendingImage == nil
}

// AddMode appends an empty mode with a New identity.
func AddMode(s staging.Session) (Result, error) {
	if s.Submitting() {
		return Result{Session: s}, ErrSessionBusy
	}
	next := s.Clone()
	next.Defect.Modes = append(next.Defect.Modes, staging.Mode{Identity: staging.New()})
	return changed(next), nil
}

// UpdateModeAt merges patch into the mode currently at index.
func UpdateModeAt(s staging.Session, index int, patch ModePatch) (Result, error) {
	if s.Submitting() {
		return Result{Session: s}, ErrSessionBusy
	}
	if index < 0 || index >= len(s.Defect.Modes) {
		return Result{Session: s}, IndexError{Op: "update mode", Index: index, Len: len(s.Defect.Modes)}
	}
	if patch.empty() {
		return Result{Session: s}, nil
	}

	cur := s.Defect.Modes[index]
	m := cur
	if patch.ModeName != nil {
		m.ModeName = *patch.ModeName
	}
	if patch.Description != nil {
		m.Description = *patch.Description
	}
	if patch.PendingImage != nil {
		m.PendingImage = patch.PendingImage
	}
	if m == cur {
		return Result{Session: s}, nil
	}
	next := s.Clone()
	next.Defect.Modes[index] = m
	return changed(next), nil
}

// ClearModeImage unstages the pending image at index; the persisted
// reference is kept.
func ClearModeImage(s staging.Session, index int) (Result, error) {
	if s.Submitting() {
		return Result{Session: s}, ErrSessionBusy
	}
	if index < 0 || index >= len(s.Defect.Modes) {
		return Result{Session: s}, IndexError{Op: "clear mode image", Index: index, Len: len(s.Defect.Modes)}
	}
	if s.Defect.Modes[index].PendingImage == nil {
		return Result{Session: s}, nil
	}
	next := s.Clone()
	next.Defect.Modes[index].PendingImage = nil
	return changed(next), nil
}

// RemoveModeAt drops the mode at index. Later modes shift down by one; a
// removed persisted mode is deleted by its absence from the next submission.
func RemoveModeAt(s staging.Session, index int) (Result, error) {
	if s.Submitting() {
		return Result{Session: s}, ErrSessionBusy
	}
	n := len(s.Defect.Modes)
	if index < 0 || index >= n {
		return Result{Session: s}, IndexError{Op: "remove mode", Index: index, Len: n}
	}
	next := s
	modes := make([]staging.Mode, 0, n-1)
	modes = append(modes, s.Defect.Modes[:index]...)
	modes = append(modes, s.Defect.Modes[index+1:]...)
	next.Defect.Modes = modes
	return changed(next), nil
}
