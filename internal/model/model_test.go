package model

import (
	"encoding/json"
	"testing"
)

func TestDefectClone_DoesNotAliasModes(t *testing.T) {
	d := Defect{ID: 7, DefectName: "Scratch", Modes: []Mode{{ID: 3, ModeName: "Surface"}}}
	c := d.Clone()
	c.Modes[0].ModeName = "Edited"

	if d.Modes[0].ModeName != "Surface" {
		t.Fatalf("expected original mode untouched, got %q", d.Modes[0].ModeName)
	}
}

func TestDefect_DecodesWireNames(t *testing.T) {
	raw := `{"id":7,"defect_name":"Scratch","pdf_filename":"s.pdf","modes":[{"id":3,"mode_name":"Surface","description":"linear mark","image_filename":"s.png"}]}`
	var d Defect
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.ID != 7 || d.DefectName != "Scratch" || d.PDFFilename != "s.pdf" {
		t.Fatalf("unexpected defect: %#v", d)
	}
	m, ok := d.FindMode(3)
	if !ok {
		t.Fatalf("expected mode 3")
	}
	if m.ModeName != "Surface" || m.Description != "linear mark" || m.ImageFilename != "s.png" {
		t.Fatalf("unexpected mode: %#v", m)
	}
	if _, ok := d.FindMode(99); ok {
		t.Fatalf("expected mode 99 to be missing")
	}
}

func TestDefect_DecodesLegacyNames(t *testing.T) {
	raw := `{"id":7,"name":"Scratch","pdf_url":"/pdfs/s.pdf","modes":[{"id":3,"mode":"Surface","description":"linear mark","image_url":"/images/s.png"},{"id":4,"mode":"Pit","description":"small pit","image_url":null}]}`
	var d Defect
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.DefectName != "Scratch" || d.PDFFilename != "/pdfs/s.pdf" || len(d.Modes) != 2 {
		t.Fatalf("unexpected defect: %#v", d)
	}
	if m := d.Modes[0]; m.ModeName != "Surface" || m.Description != "linear mark" || m.ImageFilename != "/images/s.png" {
		t.Fatalf("unexpected mode: %#v", m)
	}
	if m := d.Modes[1]; m.ModeName != "Pit" || m.ImageFilename != "" {
		t.Fatalf("unexpected mode: %#v", m)
	}
}

func TestDefect_CurrentNamesWin(t *testing.T) {
	raw := `{"id":7,"defect_name":"Scratch","name":"Old","modes":[{"id":3,"mode_name":"Surface","mode":"Old","description":"d"}]}`
	var d Defect
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.DefectName != "Scratch" || d.Modes[0].ModeName != "Surface" {
		t.Fatalf("unexpected defect: %#v", d)
	}
}
