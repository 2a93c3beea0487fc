package encode

import (
	"fmt"

	"wafer-defects/internal/staging"
	"wafer-defects/internal/stagedfile"
)

// MalformedError reports a session that cannot be encoded. Validation runs
// first, so this only happens for files released behind the caller's back.
type MalformedError struct {
	Field  string
	Reason string
}

func (e MalformedError) Error() string {
	return fmt.Sprintf("cannot encode %s: %s", e.Field, e.Reason)
}

// EncodeDefect builds the full-defect body shared by PUT /defect/{id} and
// POST /admin/upload. It performs no I/O.
func EncodeDefect(s staging.Session) (Payload, error) {
	var p Payload
	d := s.Defect
	p.text("defect_name", d.DefectName)
	if d.PendingPDF != nil {
		if err := usable("pdf_file", d.PendingPDF); err != nil {
			return Payload{}, err
		}
		p.file("pdf_file", d.PendingPDF)
	}
	for i, m := range d.Modes {
		prefix := fmt.Sprintf("modes[%d]", i)
		p.text(prefix+"[id]", m.Identity.WireValue())
		p.text(prefix+"[mode_name]", m.ModeName)
		p.text(prefix+"[description]", m.Description)
		if m.PendingImage != nil {
			if err := usable(prefix+"[image_file]", m.PendingImage); err != nil {
				return Payload{}, err
			}
			p.file(prefix+"[image_file]", m.PendingImage)
		}
	}
	return p, nil
}

// EncodeRename builds the minimal PUT /defect/{id} body that only renames.
func EncodeRename(name string) Payload {
	var p Payload
	p.text("defect_name", name)
	return p
}

// ModeChange is the body of the standalone mode endpoints. Nil fields are
// not sent.
type ModeChange struct {
	ModeName    *string
	Description *string
	Image       *stagedfile.File
}

func (c ModeChange) Empty() bool {
	return c.ModeName == nil && c.Description == nil && c.Image == nil
}

// EncodeModeChange builds the body of POST /defect/mode/{defectId} and
// PUT /defect/mode/{id}.
func EncodeModeChange(c ModeChange) (Payload, error) {
	var p Payload
	if c.ModeName != nil {
		p.text("mode", *c.ModeName)
	}
	if c.Description != nil {
		p.text("description", *c.Description)
	}
	if c.Image != nil {
		if err := usable("image", c.Image); err != nil {
			return Payload{}, err
		}
		p.file("image", c.Image)
	}
	return p, nil
}

func usable(field string, f *stagedfile.File) error {
	if f.Released() {
		return MalformedError{Field: field, Reason: "staged file " + f.Name() + " was released"}
	}
	return nil
}
