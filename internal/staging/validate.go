package staging

import (
	"fmt"
	"strings"
)

type Problem struct {
	Field   string
	Message string
}

// ValidationError lists every reason a session cannot be submitted yet.
type ValidationError struct {
	Problems []Problem
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("invalid defect: %s %s", e.Problems[0].Field, e.Problems[0].Message)
	}
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, p.Field+" "+p.Message)
	}
	return fmt.Sprintf("invalid defect (%d problems): %s", len(e.Problems), strings.Join(parts, "; "))
}

// Has reports whether field is among the problems.
func (e *ValidationError) Has(field string) bool {
	for _, p := range e.Problems {
		if p.Field == field {
			return true
		}
	}
	return false
}

// Validate checks the rules a submission must satisfy. Editing never calls it.
func (s Session) Validate() error {
	var problems []Problem
	add := func(field, msg string) {
		problems = append(problems, Problem{Field: field, Message: msg})
	}

	d := s.Defect
	if strings.TrimSpace(d.DefectName) == "" {
		add("defect_name", "is required")
	}
	if s.Flow == FlowUpload && d.PendingPDF == nil {
		add("pdf_file", "is required")
	}
	if len(d.Modes) == 0 {
		add("modes", "needs at least one mode")
	}
	for i, m := range d.Modes {
		prefix := fmt.Sprintf("modes[%d]", i)
		if strings.TrimSpace(m.ModeName) == "" {
			add(prefix+".mode_name", "is required")
		}
		if strings.TrimSpace(m.Description) == "" {
			add(prefix+".description", "is required")
		}
		// Edits keep the prior image when none is picked.
		if s.Flow == FlowUpload && m.PendingImage == nil {
			add(prefix+".image_file", "is required")
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: problems}
}
