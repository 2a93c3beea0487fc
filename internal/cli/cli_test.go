package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"wafer-defects/internal/api/apitest"
	"wafer-defects/internal/editsync"
	"wafer-defects/internal/model"
	"wafer-defects/internal/mutate"
	"wafer-defects/internal/staging"
	"wafer-defects/internal/stagedfile"

	"github.com/xuri/excelize/v2"
)

func scratch() model.Defect {
	return model.Defect{
		ID:          7,
		DefectName:  "Scratch",
		PDFFilename: "s.pdf",
		Modes: []model.Mode{
			{ID: 3, ModeName: "Surface", Description: "linear mark", ImageFilename: "s.png"},
		},
	}
}

// isolateEnv keeps the user's config and DEFECTS_* variables out of tests.
func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DEFECTS_CONFIG_DIR", t.TempDir())
	for _, k := range []string{"DEFECTS_BASE_URL", "DEFECTS_TIMEOUT", "DEFECTS_MAX_UPLOAD_BYTES", "DEFECTS_LOG_FILE", "DEFECTS_LOG_LEVEL", "DEFECTS_LOG_MODE", "DEFECTS_FORMAT"} {
		t.Setenv(k, "")
	}
	t.Setenv("DEFECTS_LOG_LEVEL", "error")
}

func runCLI(t *testing.T, args []string) (stdout []byte, stderr []byte, err error) {
	t.Helper()

	cmd := NewRootCmd()

	var outBuf bytes.Buffer
	var errBuf bytes.Buffer
	cmd.SetOut(&outBuf)
	cmd.SetErr(&errBuf)
	cmd.SetArgs(args)

	e := cmd.Execute()
	return outBuf.Bytes(), errBuf.Bytes(), e
}

func decodeEnvelope(t *testing.T, out []byte) map[string]any {
	t.Helper()
	var env map[string]any
	if err := json.Unmarshal(out, &env); err != nil {
		t.Fatalf("unmarshal output: %v\nstdout:\n%s", err, string(out))
	}
	if _, ok := env["data"]; !ok {
		t.Fatalf("missing data key: %s", string(out))
	}
	return env
}

func writePNG(t *testing.T, dir, name string) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 3, 2))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func writePDF(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("%PDF-1.4\n%%EOF\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func lastRequest(b *apitest.Backend, method string) (apitest.Request, bool) {
	reqs := b.Requests()
	for i := len(reqs) - 1; i >= 0; i-- {
		if reqs[i].Method == method {
			return reqs[i], true
		}
	}
	return apitest.Request{}, false
}

func TestSearch(t *testing.T) {
	isolateEnv(t)
	b := apitest.New(t, scratch(), model.Defect{ID: 8, DefectName: "Particle"})

	out, stderr, err := runCLI(t, []string{"--base-url", b.URL(), "search", "scr"})
	if err != nil {
		t.Fatalf("search error: %v\nstderr:\n%s", err, stderr)
	}
	env := decodeEnvelope(t, out)
	data := env["data"].([]any)
	if len(data) != 1 || data[0].(map[string]any)["defect_name"] != "Scratch" {
		t.Fatalf("data = %v", data)
	}
	hints := env["_hints"].([]any)
	if hints[0] != "defects show 7" {
		t.Fatalf("hints = %v", hints)
	}

	out, _, err = runCLI(t, []string{"--base-url", b.URL(), "search", "nothing"})
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	env = decodeEnvelope(t, out)
	if len(env["data"].([]any)) != 0 || env["_hints"].([]any)[0] != `No defects match "nothing".` {
		t.Fatalf("empty search output: %s", out)
	}
}

func TestShow_EDN(t *testing.T) {
	isolateEnv(t)
	b := apitest.New(t, scratch())
	out, stderr, err := runCLI(t, []string{"--base-url", b.URL(), "--format", "edn", "show", "7"})
	if err != nil {
		t.Fatalf("show error: %v\nstderr:\n%s", err, stderr)
	}
	if !strings.HasPrefix(string(out), `{:data {:defect-name "Scratch" :id 7 :modes [{:description "linear mark"`) {
		t.Fatalf("edn output = %s", out)
	}
}

func TestShow_NotFound(t *testing.T) {
	isolateEnv(t)
	b := apitest.New(t)
	_, stderr, err := runCLI(t, []string{"--base-url", b.URL(), "show", "9"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(string(stderr), "Defect not found") {
		t.Fatalf("stderr = %s", stderr)
	}
}

func TestEdit_AddModeWithImage(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	b := apitest.New(t, scratch())
	img := writePNG(t, dir, "pit.png")

	out, stderr, err := runCLI(t, []string{
		"--base-url", b.URL(), "edit", "7",
		"--add-mode-name", "Pit", "--add-mode-description", "small pit", "--add-mode-image", img,
	})
	if err != nil {
		t.Fatalf("edit error: %v\nstderr:\n%s", err, stderr)
	}
	decodeEnvelope(t, out)

	put, ok := lastRequest(b, http.MethodPut)
	if !ok {
		t.Fatalf("no PUT sent")
	}
	want := []string{
		"defect_name",
		"modes[0][id]", "modes[0][mode_name]", "modes[0][description]",
		"modes[1][id]", "modes[1][mode_name]", "modes[1][description]", "modes[1][image_file]",
	}
	if strings.Join(put.Order, ",") != strings.Join(want, ",") {
		t.Fatalf("parts = %v", put.Order)
	}
	if put.Fields["modes[0][id]"] != "3" || put.Fields["modes[1][id]"] != "" || put.Files["modes[1][image_file]"].Filename != "pit.png" {
		t.Fatalf("unexpected PUT: %+v", put)
	}
	d, _ := b.Defect(7)
	if len(d.Modes) != 2 || d.Modes[1].ModeName != "Pit" {
		t.Fatalf("backend defect = %+v", d)
	}
}

func TestEdit_SetAndRemoveModes(t *testing.T) {
	isolateEnv(t)
	seed := scratch()
	seed.Modes = append(seed.Modes, model.Mode{ID: 4, ModeName: "Edge", Description: "edge chip"})
	b := apitest.New(t, seed)

	_, stderr, err := runCLI(t, []string{
		"--base-url", b.URL(), "edit", "7",
		"--set-mode", "1:description=chipped edge",
		"--remove-mode", "0",
	})
	if err != nil {
		t.Fatalf("edit error: %v\nstderr:\n%s", err, stderr)
	}
	d, _ := b.Defect(7)
	if len(d.Modes) != 1 || d.Modes[0].ID != 4 || d.Modes[0].Description != "chipped edge" {
		t.Fatalf("backend defect = %+v", d)
	}
	if n := b.Calls(http.MethodDelete, "/defect/mode/"); n != 0 {
		t.Fatalf("edit must not call mode delete, got %d", n)
	}
}

func TestEdit_BadPosition(t *testing.T) {
	isolateEnv(t)
	b := apitest.New(t, scratch())
	_, stderr, err := runCLI(t, []string{"--base-url", b.URL(), "edit", "7", "--remove-mode", "3"})
	if err == nil || !strings.Contains(string(stderr), "no mode at position 3") {
		t.Fatalf("err = %v stderr = %s", err, stderr)
	}
	if _, ok := lastRequest(b, http.MethodPut); ok {
		t.Fatalf("nothing should be sent")
	}
}

func TestEdit_DryRun(t *testing.T) {
	isolateEnv(t)
	b := apitest.New(t, scratch())
	out, stderr, err := runCLI(t, []string{"--base-url", b.URL(), "edit", "7", "--name", "Scratch 2", "--dry-run"})
	if err != nil {
		t.Fatalf("edit error: %v\nstderr:\n%s", err, stderr)
	}
	if _, ok := lastRequest(b, http.MethodPut); ok {
		t.Fatalf("dry run sent a PUT")
	}
	env := decodeEnvelope(t, out)
	data := env["data"].(map[string]any)
	if data["target"] != "PUT /defect/7" || len(data["parts"].([]any)) != 4 {
		t.Fatalf("data = %v", data)
	}
	if !strings.Contains(string(stderr), `defect_name = "Scratch 2"`) {
		t.Fatalf("stderr = %s", stderr)
	}
}

func TestEdit_EmptyNameRejectedLocally(t *testing.T) {
	isolateEnv(t)
	b := apitest.New(t, scratch())
	_, stderr, err := runCLI(t, []string{"--base-url", b.URL(), "edit", "7", "--name", ""})
	if err == nil || !strings.Contains(string(stderr), "defect_name is required") {
		t.Fatalf("err = %v stderr = %s", err, stderr)
	}
	if _, ok := lastRequest(b, http.MethodPut); ok {
		t.Fatalf("nothing should be sent")
	}
}

func TestRename_BackendFailure(t *testing.T) {
	isolateEnv(t)
	b := apitest.New(t, scratch())
	b.FailNext(http.StatusBadRequest, "Defect name must be at least 3 characters")
	_, stderr, err := runCLI(t, []string{"--base-url", b.URL(), "rename", "7", "ab"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(string(stderr), "Defect name must be at least 3 characters") {
		t.Fatalf("stderr = %s", stderr)
	}
	d, _ := b.Defect(7)
	if d.DefectName != "Scratch" {
		t.Fatalf("defect changed: %+v", d)
	}
}

func TestUpload(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	b := apitest.New(t)
	pdf := writePDF(t, dir, "pit.pdf")
	img := writePNG(t, dir, "small.png")

	_, stderr, err := runCLI(t, []string{
		"--base-url", b.URL(), "upload", "--name", "Pit",
		"--mode-name", "Small", "--mode-description", "small pit", "--mode-image", img,
	})
	if err == nil || !strings.Contains(string(stderr), "pdf_file is required") {
		t.Fatalf("upload without pdf: err = %v stderr = %s", err, stderr)
	}

	out, stderr, err := runCLI(t, []string{
		"--base-url", b.URL(), "upload", "--name", "Pit", "--pdf", pdf,
		"--mode-name", "Small", "--mode-description", "small pit", "--mode-image", img,
	})
	if err != nil {
		t.Fatalf("upload error: %v\nstderr:\n%s", err, stderr)
	}
	env := decodeEnvelope(t, out)
	if env["data"].(map[string]any)["target"] != "POST /admin/upload" {
		t.Fatalf("output = %s", out)
	}
	post, ok := lastRequest(b, http.MethodPost)
	if !ok || post.Path != "/admin/upload" || post.Files["pdf_file"].Filename != "pit.pdf" {
		t.Fatalf("post = %+v", post)
	}
	if len(b.Defects()) != 1 {
		t.Fatalf("defects = %+v", b.Defects())
	}
}

func TestUpload_MismatchedModeFlags(t *testing.T) {
	isolateEnv(t)
	b := apitest.New(t)
	_, stderr, err := runCLI(t, []string{"--base-url", b.URL(), "upload", "--name", "Pit", "--mode-name", "A", "--mode-name", "B", "--mode-description", "only one"})
	if err == nil || !strings.Contains(string(stderr), "2 mode names but 1 descriptions") {
		t.Fatalf("err = %v stderr = %s", err, stderr)
	}
}

func TestUpload_RejectsWrongFileType(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	b := apitest.New(t)
	notPDF := writePNG(t, dir, "fake.pdf")
	_, stderr, err := runCLI(t, []string{"--base-url", b.URL(), "upload", "--name", "Pit", "--pdf", notPDF})
	if err == nil || !strings.Contains(string(stderr), "unsupported file type") {
		t.Fatalf("err = %v stderr = %s", err, stderr)
	}
}

func TestRenameDeleteAndModes(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	b := apitest.New(t, scratch())
	base := []string{"--base-url", b.URL()}
	run := func(args ...string) []byte {
		t.Helper()
		out, stderr, err := runCLI(t, append(append([]string{}, base...), args...))
		if err != nil {
			t.Fatalf("%v error: %v\nstderr:\n%s", args, err, stderr)
		}
		return out
	}

	run("rename", "7", "Scratch B")
	put, _ := lastRequest(b, http.MethodPut)
	if strings.Join(put.Order, ",") != "defect_name" {
		t.Fatalf("rename body = %v", put.Order)
	}

	run("modes", "add", "7", "--name", "Pit", "--description", "small pit", "--image", writePNG(t, dir, "pit.png"))
	d, _ := b.Defect(7)
	if len(d.Modes) != 2 || d.Modes[1].ImageFilename != "pit.png" {
		t.Fatalf("after add: %+v", d)
	}

	run("modes", "update", "3", "--description", "long linear mark")
	post, _ := lastRequest(b, http.MethodPut)
	if strings.Join(post.Order, ",") != "description" {
		t.Fatalf("update body = %v", post.Order)
	}

	run("modes", "delete", "3")
	run("delete", "7")
	if len(b.Defects()) != 0 {
		t.Fatalf("defects = %+v", b.Defects())
	}
	if n := b.Calls(http.MethodGet, "/defect/search"); n != 0 {
		t.Fatalf("writes issued %d searches; nothing renders them", n)
	}
}

func TestApplyStaged_ReleasesOnFailure(t *testing.T) {
	img, err := stagedfile.New(stagedfile.KindImage, "a.png", pngBytes(t))
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	ctl := editsync.New(nil)
	err = applyStaged(ctl, img, func(s staging.Session) (mutate.Result, error) {
		return mutate.UpdateModeAt(s, 0, mutate.ModePatch{PendingImage: img})
	})
	if !errors.Is(err, editsync.ErrNoSession) {
		t.Fatalf("err = %v, want ErrNoSession", err)
	}
	if !img.Released() {
		t.Fatalf("image staged for a failed mutation was not released")
	}

	kept, err := stagedfile.New(stagedfile.KindImage, "b.png", pngBytes(t))
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	if _, err := ctl.Open(scratch()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := applyStaged(ctl, kept, func(s staging.Session) (mutate.Result, error) {
		return mutate.UpdateModeAt(s, 0, mutate.ModePatch{PendingImage: kept})
	}); err != nil {
		t.Fatalf("applyStaged: %v", err)
	}
	if kept.Released() {
		t.Fatalf("image the session holds was released")
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 1, 1))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestExport(t *testing.T) {
	isolateEnv(t)
	b := apitest.New(t, scratch())
	path := filepath.Join(t.TempDir(), "defects.xlsx")

	out, stderr, err := runCLI(t, []string{"--base-url", b.URL(), "export", path})
	if err != nil {
		t.Fatalf("export error: %v\nstderr:\n%s", err, stderr)
	}
	data := decodeEnvelope(t, out)["data"].(map[string]any)
	if data["defects"].(float64) != 1 || data["modes"].(float64) != 1 {
		t.Fatalf("data = %v", data)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()
	if v, _ := f.GetCellValue("Modes", "D2"); v != "Surface" {
		t.Fatalf("Modes!D2 = %q", v)
	}

	_, _, err = runCLI(t, []string{"--base-url", b.URL(), "export", "defects.csv"})
	if err == nil {
		t.Fatalf("expected error for non-xlsx path")
	}
}

func TestConfig_FlagsOverride(t *testing.T) {
	isolateEnv(t)
	t.Setenv("DEFECTS_BASE_URL", "http://env-host:5000")

	out, _, err := runCLI(t, []string{"config", "show"})
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if decodeEnvelope(t, out)["data"].(map[string]any)["base_url"] != "http://env-host:5000" {
		t.Fatalf("env not applied: %s", out)
	}

	out, _, err = runCLI(t, []string{"--base-url", "http://flag-host:1", "--timeout", "3s", "config", "show"})
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	data := decodeEnvelope(t, out)["data"].(map[string]any)
	if data["base_url"] != "http://flag-host:1" || data["timeout"] != "3s" {
		t.Fatalf("flags not applied: %v", data)
	}
}

func TestConfig_Init(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	out, stderr, err := runCLI(t, []string{"--config", path, "--base-url", "http://saved:9", "config", "init"})
	if err != nil {
		t.Fatalf("config init: %v\nstderr:\n%s", err, stderr)
	}
	if decodeEnvelope(t, out)["data"].(map[string]any)["path"] != path {
		t.Fatalf("output = %s", out)
	}
	out, _, err = runCLI(t, []string{"--config", path, "config", "show"})
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if decodeEnvelope(t, out)["data"].(map[string]any)["base_url"] != "http://saved:9" {
		t.Fatalf("saved config not loaded: %s", out)
	}
}

func TestInvalidFormat(t *testing.T) {
	isolateEnv(t)
	_, stderr, err := runCLI(t, []string{"--format", "xml", "config", "show"})
	if err == nil || !strings.Contains(string(stderr), "unsupported format") {
		t.Fatalf("err = %v stderr = %s", err, stderr)
	}
}

func TestDocs(t *testing.T) {
	isolateEnv(t)
	out, _, err := runCLI(t, []string{"docs"})
	if err != nil {
		t.Fatalf("docs: %v", err)
	}
	topics := decodeEnvelope(t, out)["data"].(map[string]any)["topics"].([]any)
	if len(topics) != 4 {
		t.Fatalf("topics = %v", topics)
	}

	out, _, err = runCLI(t, []string{"docs", "upload", "--raw"})
	if err != nil {
		t.Fatalf("docs upload: %v", err)
	}
	if !strings.HasPrefix(string(out), "# Creating a defect") {
		t.Fatalf("raw docs = %s", out)
	}

	_, stderr, err := runCLI(t, []string{"docs", "nope"})
	if err == nil || !strings.Contains(string(stderr), "unknown docs topic") {
		t.Fatalf("err = %v stderr = %s", err, stderr)
	}
}
