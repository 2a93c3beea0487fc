package mutate

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"math/rand"
	"testing"

	"wafer-defects/internal/model"
	"wafer-defects/internal/staging"
	"wafer-defects/internal/stagedfile"
)

func strPtr(s string) *string { return &s }

func stagedPNG(t *testing.T, name string) *stagedfile.File {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 1, 1))); err != nil {
		t.Fatalf("encode: %v", err)
	}
	f, err := stagedfile.New(stagedfile.KindImage, name, buf.Bytes())
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	return f
}

func scratchSession() staging.Session {
	return staging.InitFromPersisted(model.Defect{
		ID:         7,
		DefectName: "Scratch",
		Modes: []model.Mode{
			{ID: 3, ModeName: "Surface", Description: "linear mark", ImageFilename: "s.png"},
		},
	})
}

func TestAddMode(t *testing.T) {
	s := scratchSession()
	res, err := AddMode(s)
	if err != nil {
		t.Fatalf("AddMode error: %v", err)
	}
	if !res.Changed || !res.Session.Dirty {
		t.Fatalf("expected changed and dirty")
	}
	modes := res.Session.Defect.Modes
	if len(modes) != 2 {
		t.Fatalf("len = %d, want 2", len(modes))
	}
	if !modes[1].Identity.IsNew() || modes[1].ModeName != "" || modes[1].PendingImage != nil {
		t.Fatalf("new mode not empty: %+v", modes[1])
	}
	if len(s.Defect.Modes) != 1 || s.Dirty {
		t.Fatalf("input snapshot was modified")
	}
}

func TestAddRemoveSequences_KeepContiguousPositions(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for run := 0; run < 50; run++ {
		s := staging.InitEmpty()
		adds, removes := 0, 0
		for step := 0; step < 40; step++ {
			n := len(s.Defect.Modes)
			if n == 0 || rng.Intn(3) > 0 {
				res, err := AddMode(s)
				if err != nil {
					t.Fatalf("AddMode: %v", err)
				}
				s = res.Session
				adds++
				// Tag the mode so its position can be tracked.
				tag := string(rune('a' + step%26))
				res, err = UpdateModeAt(s, len(s.Defect.Modes)-1, ModePatch{ModeName: &tag})
				if err != nil {
					t.Fatalf("UpdateModeAt: %v", err)
				}
				s = res.Session
				continue
			}
			i := rng.Intn(n)
			before := append([]staging.Mode(nil), s.Defect.Modes...)
			res, err := RemoveModeAt(s, i)
			if err != nil {
				t.Fatalf("RemoveModeAt(%d): %v", i, err)
			}
			s = res.Session
			removes++
			for j, m := range s.Defect.Modes {
				want := before[j]
				if j >= i {
					want = before[j+1]
				}
				if m != want {
					t.Fatalf("position %d after removing %d = %+v, want %+v", j, i, m, want)
				}
			}
		}
		if got := len(s.Defect.Modes); got != adds-removes {
			t.Fatalf("len = %d, want %d", got, adds-removes)
		}
		for i := range s.Defect.Modes {
			if _, err := UpdateModeAt(s, i, ModePatch{Description: strPtr("d")}); err != nil {
				t.Fatalf("position %d unreachable: %v", i, err)
			}
		}
	}
}

func TestRemoveModeAt_Reindexes(t *testing.T) {
	s := scratchSession()
	res, _ := AddMode(s)
	res, _ = UpdateModeAt(res.Session, 1, ModePatch{ModeName: strPtr("Pit")})
	res, err := RemoveModeAt(res.Session, 0)
	if err != nil {
		t.Fatalf("RemoveModeAt error: %v", err)
	}
	modes := res.Session.Defect.Modes
	if len(modes) != 1 || modes[0].ModeName != "Pit" {
		t.Fatalf("modes = %+v", modes)
	}
}

func TestUpdateModeAt_Merges(t *testing.T) {
	s := scratchSession()
	img := stagedPNG(t, "new.png")

	res, err := UpdateModeAt(s, 0, ModePatch{Description: strPtr("deep mark"), PendingImage: img})
	if err != nil {
		t.Fatalf("UpdateModeAt error: %v", err)
	}
	m := res.Session.Defect.Modes[0]
	if m.ModeName != "Surface" || m.Description != "deep mark" || m.PendingImage != img || m.ImageFilename != "s.png" {
		t.Fatalf("merged mode = %+v", m)
	}
	if id, _ := m.Identity.ID(); id != 3 {
		t.Fatalf("identity lost")
	}
	if s.Defect.Modes[0].Description != "linear mark" {
		t.Fatalf("input snapshot was modified")
	}

	// Same values again: no-op.
	res2, err := UpdateModeAt(res.Session, 0, ModePatch{Description: strPtr("deep mark")})
	if err != nil {
		t.Fatalf("no-op error: %v", err)
	}
	if res2.Changed {
		t.Fatalf("expected changed=false")
	}
}

func TestIndexErrors(t *testing.T) {
	s := scratchSession()
	ops := map[string]func() (Result, error){
		"update -1": func() (Result, error) { return UpdateModeAt(s, -1, ModePatch{}) },
		"update 1":  func() (Result, error) { return UpdateModeAt(s, 1, ModePatch{ModeName: strPtr("x")}) },
		"remove 1":  func() (Result, error) { return RemoveModeAt(s, 1) },
		"clear 5":   func() (Result, error) { return ClearModeImage(s, 5) },
	}
	for name, op := range ops {
		_, err := op()
		var ie IndexError
		if !errors.As(err, &ie) {
			t.Fatalf("%s: err = %v, want IndexError", name, err)
		}
		if ie.Len != 1 {
			t.Fatalf("%s: len = %d", name, ie.Len)
		}
	}
}

func TestSetField(t *testing.T) {
	s := scratchSession()
	res, err := SetField(s, FieldDefectName, "")
	if err != nil {
		t.Fatalf("blank names are allowed while editing: %v", err)
	}
	if !res.Changed || res.Session.Defect.DefectName != "" {
		t.Fatalf("unexpected result: %+v", res)
	}
	res, err = SetDefectName(s, "Scratch")
	if err != nil || res.Changed {
		t.Fatalf("expected no-op, got changed=%v err=%v", res.Changed, err)
	}
	if _, err := SetField(s, Field("pdf_filename"), "x"); !errors.As(err, new(UnknownFieldError)) {
		t.Fatalf("err = %v, want UnknownFieldError", err)
	}
}

func TestSetPendingPDF(t *testing.T) {
	s := scratchSession()
	pdf, err := stagedfile.New(stagedfile.KindPDF, "s2.pdf", []byte("%PDF-1.4\n%%EOF\n"))
	if err != nil {
		t.Fatalf("stage pdf: %v", err)
	}
	res, err := SetPendingPDF(s, pdf)
	if err != nil || !res.Changed || res.Session.Defect.PendingPDF != pdf {
		t.Fatalf("SetPendingPDF: changed=%v err=%v", res.Changed, err)
	}
	res, _ = SetPendingPDF(res.Session, nil)
	if res.Session.Defect.PendingPDF != nil {
		t.Fatalf("expected pdf unstaged")
	}
}

func TestClearModeImage(t *testing.T) {
	s := scratchSession()
	res, _ := UpdateModeAt(s, 0, ModePatch{PendingImage: stagedPNG(t, "a.png")})
	res, err := ClearModeImage(res.Session, 0)
	if err != nil || !res.Changed {
		t.Fatalf("ClearModeImage: changed=%v err=%v", res.Changed, err)
	}
	if m := res.Session.Defect.Modes[0]; m.PendingImage != nil || m.ImageFilename != "s.png" {
		t.Fatalf("mode = %+v", m)
	}
}

func TestSubmittingSessionRejectsEdits(t *testing.T) {
	s := scratchSession()
	s.Status = staging.StatusSubmitting
	ops := []func() (Result, error){
		func() (Result, error) { return SetDefectName(s, "x") },
		func() (Result, error) { return SetPendingPDF(s, nil) },
		func() (Result, error) { return AddMode(s) },
		func() (Result, error) { return UpdateModeAt(s, 0, ModePatch{ModeName: strPtr("x")}) },
		func() (Result, error) { return RemoveModeAt(s, 0) },
		func() (Result, error) { return ClearModeImage(s, 0) },
	}
	for i, op := range ops {
		res, err := op()
		if !errors.Is(err, ErrSessionBusy) {
			t.Fatalf("op %d: err = %v, want ErrSessionBusy", i, err)
		}
		if res.Changed || len(res.Session.Defect.Modes) != 1 {
			t.Fatalf("op %d changed the session", i)
		}
	}
}
