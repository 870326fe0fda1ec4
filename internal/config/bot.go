package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/park285/baduk-omok-server/internal/board"
	"github.com/park285/baduk-omok-server/internal/rules"
)

// BotConfig drives cmd/baduk-bot.
type BotConfig struct {
	ServerURL   string `env:"BOT_SERVER_URL" envDefault:"ws://localhost:8080/ws"`
	SessionKey  string `env:"BOT_SESSION_KEY,required"`
	ColorName   string `env:"BOT_COLOR,required"`
	RulesName   string `env:"BOT_RULES" envDefault:"go"`
	Strategy    string `env:"BOT_STRATEGY" envDefault:"heuristic"`
	Seed        int64  `env:"BOT_SEED"`
	AutoStart   bool   `env:"BOT_AUTOSTART" envDefault:"true"`
	AcceptDraws bool   `env:"BOT_ACCEPT_DRAWS" envDefault:"false"`
	OpponentURL string `env:"OPPONENT_URL"`
	MessagesDir string `env:"MESSAGES_DIR"`

	Color board.Cell `env:"-"`
	Rules rules.Kind `env:"-"`
}

func LoadBot() (*BotConfig, error) {
	cfg, err := env.ParseAs[BotConfig]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return finishBot(&cfg)
}

func LoadBotFrom(vars map[string]string) (*BotConfig, error) {
	cfg, err := env.ParseAsWithOptions[BotConfig](env.Options{Environment: vars})
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return finishBot(&cfg)
}

func finishBot(cfg *BotConfig) (*BotConfig, error) {
	cfg.SessionKey = strings.TrimSpace(cfg.SessionKey)
	if cfg.SessionKey == "" {
		return nil, errors.New("BOT_SESSION_KEY is required")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.ColorName)) {
	case "black", "b":
		cfg.Color = board.Black
	case "white", "w":
		cfg.Color = board.White
	default:
		return nil, fmt.Errorf("BOT_COLOR %q: want black or white", cfg.ColorName)
	}
	kind, err := rules.ParseKind(cfg.RulesName)
	if err != nil {
		return nil, fmt.Errorf("BOT_RULES: %w", err)
	}
	cfg.Rules = kind

	cfg.Strategy = strings.ToLower(strings.TrimSpace(cfg.Strategy))
	switch cfg.Strategy {
	case "heuristic":
	case "remote":
		if strings.TrimSpace(cfg.OpponentURL) == "" {
			return nil, errors.New("BOT_STRATEGY=remote needs OPPONENT_URL")
		}
	default:
		return nil, fmt.Errorf("BOT_STRATEGY %q: want heuristic or remote", cfg.Strategy)
	}
	return cfg, nil
}
