package stagedfile

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// onePagePDF builds the smallest document the PDF reader accepts.
func onePagePDF() []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>",
	}
	offsets := make([]int, 0, len(objs))
	for i, o := range objs {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objs)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func TestNew_Image(t *testing.T) {
	f, err := New(KindImage, "pit.png", pngBytes(t, 4, 3))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if f.ContentType() != "image/png" {
		t.Fatalf("content type = %q", f.ContentType())
	}
	if w, h := f.Dimensions(); w != 4 || h != 3 {
		t.Fatalf("dimensions = %dx%d", w, h)
	}
	if got := f.Preview(); !strings.HasPrefix(got, "pit.png, PNG 4x3, ") {
		t.Fatalf("preview = %q", got)
	}
}

func TestNew_PDFPageCount(t *testing.T) {
	f, err := New(KindPDF, "scratch.pdf", onePagePDF())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if f.ContentType() != "application/pdf" {
		t.Fatalf("content type = %q", f.ContentType())
	}
	if f.Pages() != 1 {
		t.Fatalf("pages = %d, want 1", f.Pages())
	}
	if !strings.Contains(f.Preview(), "PDF, 1 page") {
		t.Fatalf("preview = %q", f.Preview())
	}
}

func TestNew_UnreadablePDFStillStages(t *testing.T) {
	f, err := New(KindPDF, "broken.pdf", []byte("%PDF-1.4\nnot really\n"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if f.Pages() != 0 {
		t.Fatalf("pages = %d, want 0", f.Pages())
	}
}

func TestNew_Rejects(t *testing.T) {
	img := pngBytes(t, 1, 1)
	cases := []struct {
		name string
		kind Kind
		file string
		data []byte
		want error
	}{
		{"empty", KindImage, "a.png", nil, ErrEmpty},
		{"wrong extension", KindImage, "a.gif", img, ErrUnsupportedType},
		{"pdf bytes as image", KindImage, "a.png", onePagePDF(), ErrUnsupportedType},
		{"image bytes as pdf", KindPDF, "a.pdf", img, ErrUnsupportedType},
		{"text as pdf", KindPDF, "a.pdf", []byte("hello"), ErrUnsupportedType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.kind, tc.file, tc.data)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestNew_ExtensionIsCaseInsensitive(t *testing.T) {
	if _, err := New(KindImage, "PIT.PNG", pngBytes(t, 1, 1)); err != nil {
		t.Fatalf("New: %v", err)
	}
}

func TestLoad_SizeLimit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.png")
	data := pngBytes(t, 16, 16)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(KindImage, path, int64(len(data)-1)); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
	f, err := Load(KindImage, path, 0)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.Name() != "big.png" || f.Size() != len(data) {
		t.Fatalf("got name=%q size=%d", f.Name(), f.Size())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(KindPDF, filepath.Join(t.TempDir(), "nope.pdf"), 0); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRelease(t *testing.T) {
	f, err := New(KindImage, "a.png", pngBytes(t, 1, 1))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_ = f.Preview()
	f.Release()
	f.Release()
	if !f.Released() {
		t.Fatalf("expected released")
	}
	if _, err := f.Bytes(); !errors.Is(err, ErrReleased) {
		t.Fatalf("Bytes err = %v", err)
	}
	if _, err := f.Open(); !errors.Is(err, ErrReleased) {
		t.Fatalf("Open err = %v", err)
	}
	if got := f.Preview(); got != "a.png (released)" {
		t.Fatalf("preview = %q", got)
	}
	var nilFile *File
	nilFile.Release()
}
