package model

import "encoding/json"

// Defect is a catalog record as the backend returns it.
type Defect struct {
	ID          int    `json:"id"`
	DefectName  string `json:"defect_name"`
	PDFFilename string `json:"pdf_filename,omitempty"`
	Modes       []Mode `json:"modes"`
}

// Mode is one observation of a defect. ImageFilename is an opaque reference
// resolved by the backend; the client only forwards it.
type Mode struct {
	ID            int    `json:"id"`
	ModeName      string `json:"mode_name"`
	Description   string `json:"description"`
	ImageFilename string `json:"image_filename,omitempty"`
}

// UnmarshalJSON also accepts the legacy search payload, which names fields
// name and pdf_url. The url is kept as the opaque PDF reference.
func (d *Defect) UnmarshalJSON(b []byte) error {
	type plain Defect
	var v struct {
		plain
		Name   string `json:"name"`
		PDFURL string `json:"pdf_url"`
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*d = Defect(v.plain)
	if d.DefectName == "" {
		d.DefectName = v.Name
	}
	if d.PDFFilename == "" {
		d.PDFFilename = v.PDFURL
	}
	return nil
}

// UnmarshalJSON also accepts the legacy mode and image_url keys.
func (m *Mode) UnmarshalJSON(b []byte) error {
	type plain Mode
	var v struct {
		plain
		Mode     string `json:"mode"`
		ImageURL string `json:"image_url"`
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*m = Mode(v.plain)
	if m.ModeName == "" {
		m.ModeName = v.Mode
	}
	if m.ImageFilename == "" {
		m.ImageFilename = v.ImageURL
	}
	return nil
}

type SearchResponse struct {
	Defects []Defect `json:"defects"`
}

// Clone returns a copy that shares no slices with d.
func (d Defect) Clone() Defect {
	out := d
	if d.Modes != nil {
		out.Modes = make([]Mode, len(d.Modes))
		copy(out.Modes, d.Modes)
	}
	return out
}

// FindMode returns the mode with the given persisted id.
func (d Defect) FindMode(id int) (Mode, bool) {
	for _, m := range d.Modes {
		if m.ID == id {
			return m, true
		}
	}
	return Mode{}, false
}
