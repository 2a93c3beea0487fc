// Package stagedfile holds binary payloads a user picked locally but has not
// uploaded yet. Bytes live in memory only and are dropped by Release.
package stagedfile

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	pdf "github.com/ledongthuc/pdf"
)

type Kind string

const (
	KindPDF   Kind = "pdf"
	KindImage Kind = "image"
)

// DefaultMaxBytes matches the backend's request size limit.
const DefaultMaxBytes int64 = 16 << 20

var (
	ErrReleased        = errors.New("staged file released")
	ErrEmpty           = errors.New("empty file")
	ErrTooLarge        = errors.New("file exceeds limit")
	ErrUnsupportedType = errors.New("unsupported file type")
)

var allowed = map[Kind]struct {
	exts  []string
	mimes []string
}{
	KindPDF:   {exts: []string{".pdf"}, mimes: []string{"application/pdf"}},
	KindImage: {exts: []string{".png", ".jpg", ".jpeg"}, mimes: []string{"image/png", "image/jpeg"}},
}

// File is an immutable staged payload. The only state change is Release.
type File struct {
	name        string
	kind        Kind
	contentType string
	size        int
	pages       int
	width       int
	height      int

	mu       sync.Mutex
	data     []byte
	preview  string
	released bool
}

// Load reads path into memory and validates it for kind.
func Load(kind Kind, path string, maxBytes int64) (*File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("missing file path")
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if st.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if st.Size() > maxBytes {
		return nil, fmt.Errorf("%s: %w (%s > %s)", filepath.Base(path), ErrTooLarge,
			humanize.Bytes(uint64(st.Size())), humanize.Bytes(uint64(maxBytes)))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return New(kind, filepath.Base(path), data)
}

// New validates data as a file of the given kind. The slice is retained.
func New(kind Kind, name string, data []byte) (*File, error) {
	rules, ok := allowed[kind]
	if !ok {
		return nil, fmt.Errorf("unknown file kind %q", kind)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("missing file name")
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrEmpty)
	}
	ext := strings.ToLower(filepath.Ext(name))
	if !contains(rules.exts, ext) {
		return nil, fmt.Errorf("%s: %w: expected %s", name, ErrUnsupportedType, strings.Join(rules.exts, ", "))
	}
	mt := mimetype.Detect(data)
	contentType := ""
	for _, m := range rules.mimes {
		if mt.Is(m) {
			contentType = m
			break
		}
	}
	if contentType == "" {
		return nil, fmt.Errorf("%s: %w: content looks like %s", name, ErrUnsupportedType, mt.String())
	}

	f := &File{
		name:        name,
		kind:        kind,
		contentType: contentType,
		size:        len(data),
		data:        data,
	}
	switch kind {
	case KindPDF:
		f.pages = countPages(data)
	case KindImage:
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			f.width, f.height = cfg.Width, cfg.Height
		}
	}
	return f, nil
}

// countPages is best effort; the PDF parser panics on some malformed inputs.
func countPages(data []byte) (n int) {
	defer func() {
		if recover() != nil {
			n = 0
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0
	}
	return r.NumPage()
}

func (f *File) Name() string        { return f.name }
func (f *File) Kind() Kind          { return f.kind }
func (f *File) ContentType() string { return f.contentType }
func (f *File) Size() int           { return f.size }

// Pages is the PDF page count, or 0 when unknown.
func (f *File) Pages() int { return f.pages }

// Dimensions returns the image size in pixels, or zeros when unknown.
func (f *File) Dimensions() (int, int) { return f.width, f.height }

// Bytes returns the payload. The caller must not modify it.
func (f *File) Bytes() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released {
		return nil, fmt.Errorf("%s: %w", f.name, ErrReleased)
	}
	return f.data, nil
}

// Open returns a reader over the payload.
func (f *File) Open() (io.Reader, error) {
	b, err := f.Bytes()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(b), nil
}

// Preview returns a one-line description, rendered once and cached until
// Release.
func (f *File) Preview() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released {
		return f.name + " (released)"
	}
	if f.preview == "" {
		f.preview = f.describe()
	}
	return f.preview
}

func (f *File) describe() string {
	parts := []string{f.name}
	switch f.kind {
	case KindPDF:
		if f.pages == 1 {
			parts = append(parts, "PDF, 1 page")
		} else if f.pages > 1 {
			parts = append(parts, fmt.Sprintf("PDF, %d pages", f.pages))
		} else {
			parts = append(parts, "PDF")
		}
	case KindImage:
		format := strings.ToUpper(strings.TrimPrefix(f.contentType, "image/"))
		if f.width > 0 && f.height > 0 {
			format += fmt.Sprintf(" %dx%d", f.width, f.height)
		}
		parts = append(parts, format)
	}
	parts = append(parts, humanize.Bytes(uint64(f.size)))
	return strings.Join(parts, ", ")
}

// Release drops the payload and any cached preview. Safe to call twice.
func (f *File) Release() {
	if f == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = true
	f.data = nil
	f.preview = ""
}

func (f *File) Released() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
