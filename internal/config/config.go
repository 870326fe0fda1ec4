package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/park285/baduk-omok-server/internal/board"
	"github.com/park285/baduk-omok-server/internal/clock"
	"github.com/park285/baduk-omok-server/internal/rules"
)

type AppConfig struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	RedisURL string `env:"REDIS_URL"`

	MaxConcurrentGames int    `env:"MAX_CONCURRENT_GAMES" envDefault:"200"`
	DefaultBoardSize   int    `env:"DEFAULT_BOARD_SIZE" envDefault:"19"`
	DefaultRules       string `env:"DEFAULT_RULES" envDefault:"go"`
	SuicideRule        string `env:"SUICIDE_RULE" envDefault:"allow"`

	// TIME_CONTROL is a preset name or an inline "main/period/periods" triple
	// such as "10m/30s/3".
	TimeControl     string `env:"TIME_CONTROL" envDefault:"standard"`
	TimePresetsFile string `env:"TIME_PRESETS_FILE"`

	TickInterval    time.Duration `env:"TICK_INTERVAL" envDefault:"200ms"`
	DisconnectGrace time.Duration `env:"DISCONNECT_GRACE" envDefault:"30s"`
	FinishedLinger  time.Duration `env:"FINISHED_LINGER" envDefault:"5m"`

	OpponentURL string `env:"OPPONENT_URL"`
	MessagesDir string `env:"MESSAGES_DIR"`

	// Resolved from the raw values above by Load.
	Rules   rules.Kind          `env:"-"`
	Suicide board.SuicidePolicy `env:"-"`
	Clock   clock.TimeControl   `env:"-"`
	Presets Presets             `env:"-"`
}

// Load reads the process environment.
func Load() (*AppConfig, error) {
	cfg, err := env.ParseAs[AppConfig]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return finish(&cfg)
}

// LoadFrom reads vars instead of the process environment.
func LoadFrom(vars map[string]string) (*AppConfig, error) {
	cfg, err := env.ParseAsWithOptions[AppConfig](env.Options{Environment: vars})
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return finish(&cfg)
}

func finish(cfg *AppConfig) (*AppConfig, error) {
	cfg.RedisURL = strings.TrimSpace(cfg.RedisURL)
	cfg.OpponentURL = strings.TrimSpace(cfg.OpponentURL)
	cfg.MessagesDir = strings.TrimSpace(cfg.MessagesDir)

	if cfg.MaxConcurrentGames < 0 {
		return nil, errors.New("MAX_CONCURRENT_GAMES must not be negative")
	}
	if !board.ValidSize(cfg.DefaultBoardSize) {
		return nil, fmt.Errorf("DEFAULT_BOARD_SIZE %d is not one of 9, 13, 15, 19", cfg.DefaultBoardSize)
	}
	kind, err := rules.ParseKind(cfg.DefaultRules)
	if err != nil {
		return nil, fmt.Errorf("DEFAULT_RULES: %w", err)
	}
	cfg.Rules = kind

	switch s := strings.ToLower(strings.TrimSpace(cfg.SuicideRule)); s {
	case "allow", "forbid", "reject":
		cfg.Suicide = board.ParseSuicidePolicy(s)
	default:
		return nil, fmt.Errorf("SUICIDE_RULE %q: want allow or forbid", cfg.SuicideRule)
	}

	if cfg.TickInterval < 0 || cfg.DisconnectGrace < 0 || cfg.FinishedLinger < 0 {
		return nil, errors.New("durations must not be negative")
	}

	presets, err := LoadPresets(cfg.TimePresetsFile)
	if err != nil {
		return nil, err
	}
	cfg.Presets = presets
	tc, err := presets.Resolve(cfg.TimeControl)
	if err != nil {
		return nil, fmt.Errorf("TIME_CONTROL: %w", err)
	}
	cfg.Clock = tc
	return cfg, nil
}
