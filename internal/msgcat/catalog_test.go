package msgcat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEmbeddedRejectTexts(t *testing.T) {
	c := MustDefault()
	for _, code := range []string{"occupied", "out_of_bounds", "suicide", "not_your_turn", "game_not_playing",
		"game_finished", "malformed_message", "unknown_session_key", "stale_message", "no_draw_offer", "already_expired"} {
		if _, err := c.Render("reject."+code, nil); err != nil {
			t.Fatalf("missing text for %s: %v", code, err)
		}
	}
}

func TestEmbeddedCatalogLoadsWithoutPanic(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got, want := c.Text("reject.occupied", nil, ""), MustDefault().Text("reject.occupied", nil, ""); got == "" || got != want {
		t.Fatalf("embedded text %q, MustDefault %q", got, want)
	}
}

func TestOutcome(t *testing.T) {
	c := MustDefault()
	if got := c.Outcome("black", "timeout"); got != "흑 승 (시간패)" {
		t.Fatalf("unexpected outcome %q", got)
	}
	if got := c.Outcome("draw", "double_pass"); got != "무승부 (연속 패스)" {
		t.Fatalf("unexpected draw outcome %q", got)
	}
	if got := c.Outcome("white", "mystery"); !strings.Contains(got, "mystery") {
		t.Fatalf("unknown reason must fall back to its code, got %q", got)
	}
}

func TestScoreTemplate(t *testing.T) {
	got, err := MustDefault().Render("result.score", map[string]any{"Black": 10.0, "White": 7.5})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "흑 10.0 : 백 7.5" {
		t.Fatalf("unexpected score %q", got)
	}
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "en.yaml"), []byte("reject:\n  occupied: \"occupied\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.Text("reject.occupied", nil, ""); got != "occupied" {
		t.Fatalf("override not applied, got %q", got)
	}
	if got := c.Text("reject.suicide", nil, ""); got == "" {
		t.Fatalf("embedded default lost after override")
	}
}

func TestDuplicateOverrideKeys(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"a.yaml", "b.yml"} {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("reject:\n  occupied: x\n"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if _, err := New(dir); err == nil {
		t.Fatalf("expected duplicate key error")
	}
}

func TestMissingKeyFallsBack(t *testing.T) {
	var nilCat *Catalog
	if got := nilCat.Text("reject.occupied", nil, "fb"); got != "fb" {
		t.Fatalf("nil catalog must return fallback")
	}
	if got := MustDefault().Text("no.such.key", nil, "fb"); got != "fb" {
		t.Fatalf("missing key must return fallback")
	}
}
