package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/park285/baduk-omok-server/internal/board"
	"github.com/park285/baduk-omok-server/internal/clock"
	"github.com/park285/baduk-omok-server/internal/rules"
)

func TestDefaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.MaxConcurrentGames != 200 || cfg.DefaultBoardSize != 19 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Rules != rules.KindGo || cfg.Suicide != board.SuicideAllow {
		t.Fatalf("rules=%s suicide=%v", cfg.Rules, cfg.Suicide)
	}
	if cfg.TickInterval != 200*time.Millisecond || cfg.DisconnectGrace != 30*time.Second {
		t.Fatalf("durations %v %v", cfg.TickInterval, cfg.DisconnectGrace)
	}
	want := clock.TimeControl{MainTime: 30 * time.Minute, PeriodTime: 30 * time.Second, Periods: 5}
	if cfg.Clock != want {
		t.Fatalf("clock = %+v want %+v", cfg.Clock, want)
	}
}

func TestOverrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"HTTP_ADDR":            "127.0.0.1:9000",
		"REDIS_URL":            " redis://localhost:6379/1 ",
		"MAX_CONCURRENT_GAMES": "3",
		"DEFAULT_BOARD_SIZE":   "15",
		"DEFAULT_RULES":        "omok",
		"SUICIDE_RULE":         "forbid",
		"TIME_CONTROL":         "blitz",
		"TICK_INTERVAL":        "1s",
		"DISCONNECT_GRACE":     "0s",
	})
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.RedisURL != "redis://localhost:6379/1" {
		t.Fatalf("redis url not trimmed: %q", cfg.RedisURL)
	}
	if cfg.Rules != rules.KindOmok || cfg.Suicide != board.SuicideForbid || cfg.DefaultBoardSize != 15 {
		t.Fatalf("unexpected %+v", cfg)
	}
	if cfg.Clock.MainTime != 5*time.Minute || cfg.DisconnectGrace != 0 {
		t.Fatalf("unexpected clock %+v grace %v", cfg.Clock, cfg.DisconnectGrace)
	}
}

func TestInlineTimeControl(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{"TIME_CONTROL": "10m/30s/3"})
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	want := clock.TimeControl{MainTime: 10 * time.Minute, PeriodTime: 30 * time.Second, Periods: 3}
	if cfg.Clock != want {
		t.Fatalf("clock = %+v", cfg.Clock)
	}
}

func TestInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"size":         {"DEFAULT_BOARD_SIZE": "10"},
		"rules":        {"DEFAULT_RULES": "chess"},
		"suicide":      {"SUICIDE_RULE": "maybe"},
		"preset":       {"TIME_CONTROL": "lightning"},
		"inline":       {"TIME_CONTROL": "10m/x/3"},
		"negative":     {"MAX_CONCURRENT_GAMES": "-1"},
		"not a number": {"MAX_CONCURRENT_GAMES": "many"},
		"tick":         {"TICK_INTERVAL": "-1s"},
	}
	for name, vars := range cases {
		if _, err := LoadFrom(vars); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestPresetsFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "presets.yaml")
	body := "presets:\n  club:\n    main_time: 20m\n    period_time: 15s\n    periods: 2\n  blitz:\n    main_time: 1m\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	p, err := LoadPresets(path)
	if err != nil {
		t.Fatalf("LoadPresets: %v", err)
	}
	if p["club"].Periods != 2 || p["blitz"].MainTime != time.Minute {
		t.Fatalf("overrides not applied: %+v", p)
	}
	if _, ok := p["standard"]; !ok {
		t.Fatalf("embedded presets should remain")
	}
	if got := strings.Join(p.Names(), ","); !strings.HasPrefix(got, "blitz,byoyomi,club") {
		t.Fatalf("names = %s", got)
	}

	cfg, err := LoadFrom(map[string]string{"TIME_PRESETS_FILE": path, "TIME_CONTROL": "club"})
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Clock.MainTime != 20*time.Minute {
		t.Fatalf("clock = %+v", cfg.Clock)
	}

	if _, err := LoadPresets(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestBotConfig(t *testing.T) {
	cfg, err := LoadBotFrom(map[string]string{
		"BOT_SESSION_KEY": " key-1 ",
		"BOT_COLOR":       "w",
		"BOT_RULES":       "gomoku",
		"BOT_SEED":        "42",
	})
	if err != nil {
		t.Fatalf("LoadBotFrom: %v", err)
	}
	if cfg.SessionKey != "key-1" || cfg.Color != board.White || cfg.Rules != rules.KindOmok || cfg.Seed != 42 {
		t.Fatalf("unexpected %+v", cfg)
	}
	if cfg.ServerURL != "ws://localhost:8080/ws" || !cfg.AutoStart || cfg.AcceptDraws || cfg.Strategy != "heuristic" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}

	bad := []map[string]string{
		{"BOT_COLOR": "black"},
		{"BOT_SESSION_KEY": "k"},
		{"BOT_SESSION_KEY": "k", "BOT_COLOR": "red"},
		{"BOT_SESSION_KEY": "k", "BOT_COLOR": "black", "BOT_STRATEGY": "remote"},
		{"BOT_SESSION_KEY": "k", "BOT_COLOR": "black", "BOT_STRATEGY": "minimax"},
	}
	for i, vars := range bad {
		if _, err := LoadBotFrom(vars); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}
