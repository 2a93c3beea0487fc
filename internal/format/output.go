// Package format renders command results for scripts: json or edn on
// stdout, and spreadsheet exports.
package format

import (
	"encoding/json"
	"fmt"
	"io"
)

// Envelope wraps every command result. Hints suggest follow-up commands.
type Envelope struct {
	Data  any      `json:"data"`
	Hints []string `json:"_hints,omitempty"`
}

// Write writes v as json (the default) or edn.
func Write(w io.Writer, v any, format string, pretty bool) error {
	switch format {
	case "", "json":
		return WriteJSON(w, v, pretty)
	case "edn":
		return WriteEDN(w, v, pretty)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

func WriteJSON(w io.Writer, v any, pretty bool) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
