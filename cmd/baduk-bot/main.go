package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/park285/baduk-omok-server/internal/bot"
	"github.com/park285/baduk-omok-server/internal/codec"
	appcfg "github.com/park285/baduk-omok-server/internal/config"
	"github.com/park285/baduk-omok-server/internal/msgcat"
	"github.com/park285/baduk-omok-server/internal/obslog"
	"github.com/park285/baduk-omok-server/internal/opponent"
	"github.com/park285/baduk-omok-server/internal/transport"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := appcfg.LoadBot()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := obslog.InitFromEnv(filepath.Join("logs", "baduk-bot.log")); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer obslog.Sync()
	log := obslog.L()

	texts, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return fmt.Errorf("loading messages: %w", err)
	}

	var strategy opponent.Strategy
	switch cfg.Strategy {
	case "remote":
		strategy = opponent.NewRemote(cfg.OpponentURL)
	default:
		seed := cfg.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		strategy = opponent.NewHeuristic(seed)
	}

	client, err := transport.Dial(ctx, cfg.ServerURL, cfg.SessionKey)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", cfg.ServerURL, err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = client.Close(closeCtx)
	}()
	log.Info("bot_connected",
		zap.String("url", cfg.ServerURL),
		zap.String("color", cfg.Color.String()),
		zap.String("rules", string(cfg.Rules)),
		zap.String("strategy", cfg.Strategy))

	p := &bot.Player{
		Conn:        client,
		Strategy:    strategy,
		Color:       cfg.Color,
		Rules:       cfg.Rules,
		AutoStart:   cfg.AutoStart,
		AcceptDraws: cfg.AcceptDraws,
	}
	end, err := p.Play(ctx)
	if err != nil {
		return fmt.Errorf("playing: %w", err)
	}

	winner := end.Winner.String()
	if end.Winner == codec.ColorFree {
		winner = "draw"
	}
	fmt.Println(texts.Outcome(winner, end.Reason))
	return nil
}
