// Package encode turns staged edits into multipart request bodies.
//
// The backend parses fields by name, so the names below are a wire contract:
//
//	defect_name             text
//	pdf_file                file, only when a new PDF is staged
//	modes[i][id]            text, "" for a mode created in this session
//	modes[i][mode_name]     text
//	modes[i][description]   text
//	modes[i][image_file]    file, only when a new image is staged
//
// i is the mode's position at encode time. Omitting a file part keeps the
// stored file; omitting a persisted mode deletes it.
package encode

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"

	"wafer-defects/internal/stagedfile"

	"github.com/dustin/go-humanize"
)

// Part is one multipart field. File is nil for text fields.
type Part struct {
	Name  string
	Value string
	File  *stagedfile.File
}

func (p Part) IsFile() bool { return p.File != nil }

// Payload is an ordered list of parts.
type Payload struct {
	Parts []Part
}

func (p *Payload) text(name, value string) {
	p.Parts = append(p.Parts, Part{Name: name, Value: value})
}

func (p *Payload) file(name string, f *stagedfile.File) {
	p.Parts = append(p.Parts, Part{Name: name, File: f})
}

// Get returns the value of the first text field called name.
func (p Payload) Get(name string) (string, bool) {
	for _, part := range p.Parts {
		if part.Name == name && !part.IsFile() {
			return part.Value, true
		}
	}
	return "", false
}

func (p Payload) HasFile(name string) bool {
	for _, part := range p.Parts {
		if part.Name == name && part.IsFile() {
			return true
		}
	}
	return false
}

// Names lists part names in order.
func (p Payload) Names() []string {
	out := make([]string, 0, len(p.Parts))
	for _, part := range p.Parts {
		out = append(out, part.Name)
	}
	return out
}

// WriteMultipart streams the payload to w and returns the Content-Type
// header value, boundary included.
func (p Payload) WriteMultipart(w io.Writer) (string, error) {
	mw := multipart.NewWriter(w)
	for _, part := range p.Parts {
		if !part.IsFile() {
			if err := mw.WriteField(part.Name, part.Value); err != nil {
				return "", fmt.Errorf("write field %s: %w", part.Name, err)
			}
			continue
		}
		data, err := part.File.Bytes()
		if err != nil {
			return "", fmt.Errorf("part %s: %w", part.Name, err)
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			escapeQuotes(part.Name), escapeQuotes(part.File.Name())))
		h.Set("Content-Type", part.File.ContentType())
		fw, err := mw.CreatePart(h)
		if err != nil {
			return "", fmt.Errorf("create part %s: %w", part.Name, err)
		}
		if _, err := fw.Write(data); err != nil {
			return "", fmt.Errorf("write part %s: %w", part.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", err
	}
	return mw.FormDataContentType(), nil
}

// Body buffers the multipart encoding, for clients that need a length.
func (p Payload) Body() (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	ct, err := p.WriteMultipart(&buf)
	if err != nil {
		return nil, "", err
	}
	return &buf, ct, nil
}

// Describe lists the parts one per line. Files show name and size only.
func (p Payload) Describe() string {
	var b strings.Builder
	for _, part := range p.Parts {
		if part.IsFile() {
			fmt.Fprintf(&b, "%s = <file %s, %s, %s>\n", part.Name, part.File.Name(),
				part.File.ContentType(), humanize.Bytes(uint64(part.File.Size())))
			continue
		}
		fmt.Fprintf(&b, "%s = %q\n", part.Name, part.Value)
	}
	return b.String()
}

// Summary maps part names to printable values, for structured output.
func (p Payload) Summary() []map[string]any {
	out := make([]map[string]any, 0, len(p.Parts))
	for _, part := range p.Parts {
		if part.IsFile() {
			out = append(out, map[string]any{
				"name":         part.Name,
				"file":         part.File.Name(),
				"content_type": part.File.ContentType(),
				"size":         part.File.Size(),
			})
			continue
		}
		out = append(out, map[string]any{"name": part.Name, "value": part.Value})
	}
	return out
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string { return quoteEscaper.Replace(s) }
