package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "defects.log")
	l, err := New(Options{Mode: "prod", Level: "debug", File: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.With("session", "s-1").Info("submit", "payload", []byte("secret bytes"), "auth_token", "abc", "parts", 3)
	l.Sync()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(b)
	for _, want := range []string{`"session":"s-1"`, `"payload":"<12 bytes>"`, `"auth_token":"[REDACTED]"`, `"parts":3`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log missing %s:\n%s", want, out)
		}
	}
	if strings.Contains(out, "secret bytes") {
		t.Fatalf("payload leaked into log")
	}
}

func TestNew_RejectsBadLevel(t *testing.T) {
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSanitizeKVs_OddLength(t *testing.T) {
	got := sanitizeKVs([]interface{}{"a", 1, "dangling"})
	if len(got) != 3 || got[2] != "dangling" {
		t.Fatalf("got %v", got)
	}
	Nop().Info("ignored", "k", "v")
}
