package msgcat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEmbeddedDefaults(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, key := range []string{
		"side.white", "side.black",
		"phase.disconnected", "phase.idle", "phase.awaiting_opponent", "phase.in_progress", "phase.game_over",
		"clock.line", "move.line", "move.pending",
		"result.white_wins", "result.black_wins", "result.draw", "result.with_method",
		"method.timeout", "method.checkmate",
	} {
		if !c.Has(key) {
			t.Fatalf("missing default key %s", key)
		}
	}
	got, err := c.Render("move.line", map[string]any{"No": 1, "From": "e2", "To": "e4"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "1. e2 to e4" {
		t.Fatalf("move.line = %q", got)
	}
}

func TestRenderErrors(t *testing.T) {
	c := MustDefault()
	if _, err := c.Render("no.such.key", nil); err == nil {
		t.Fatalf("missing key rendered")
	}
	if _, err := c.Render("move.line", map[string]any{"No": 1}); err == nil {
		t.Fatalf("missing data field rendered")
	}
	if got := c.Text("no.such.key", nil, "fallback"); got != "fallback" {
		t.Fatalf("Text fallback = %q", got)
	}
	var nilCat *Catalog
	if got := nilCat.Text("side.white", nil, "W"); got != "W" {
		t.Fatalf("nil catalog Text = %q", got)
	}
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "a.yaml", "side:\n  white: \"White\"\n")
	write(t, dir, "b.yml", "move:\n  line: \"{{.No}}) {{.From}}-{{.To}}\"\n")
	write(t, dir, "ignored.txt", "side:\n  black: \"nope\"\n")

	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.Text("side.white", nil, ""); got != "White" {
		t.Fatalf("override not applied: %q", got)
	}
	if got := c.Text("side.black", nil, ""); got == "nope" {
		t.Fatalf("non-yaml file applied")
	}
	got, _ := c.Render("move.line", map[string]any{"No": 3, "From": "g1", "To": "f3"})
	if got != "3) g1-f3" {
		t.Fatalf("move.line = %q", got)
	}
}

func TestOverrideDuplicateKeys(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "a.yaml", "side:\n  white: \"A\"\n")
	write(t, dir, "b.yaml", "side:\n  white: \"B\"\n")
	_, err := New(dir)
	if err == nil || !strings.Contains(err.Error(), "duplicate override key") {
		t.Fatalf("expected duplicate key error, got %v", err)
	}
}

func TestOverrideRejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "a.yaml", "side:\n  white: 3\n")
	if _, err := New(dir); err == nil {
		t.Fatalf("non-string leaf accepted")
	}

	dir = t.TempDir()
	write(t, dir, "a.yaml", "side:\n  white: \"{{.Broken\"\n")
	if _, err := New(dir); err == nil {
		t.Fatalf("broken template accepted")
	}
}

func write(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}
