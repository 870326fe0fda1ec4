package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	appcfg "github.com/park285/baduk-omok-server/internal/config"
	"github.com/park285/baduk-omok-server/internal/fanout"
	"github.com/park285/baduk-omok-server/internal/msgcat"
	"github.com/park285/baduk-omok-server/internal/obslog"
	"github.com/park285/baduk-omok-server/internal/opponent"
	"github.com/park285/baduk-omok-server/internal/room"
	"github.com/park285/baduk-omok-server/internal/session"
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
	cfg, err := appcfg.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := obslog.InitFromEnv(filepath.Join("logs", "baduk.log")); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer obslog.Sync()
	log := obslog.L()

	texts, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return fmt.Errorf("loading messages: %w", err)
	}

	roomOpts := room.Options{
		MaxRooms:       cfg.MaxConcurrentGames,
		TickInterval:   cfg.TickInterval,
		FinishedLinger: cfg.FinishedLinger,
		Messages:       texts,
	}
	handlerOpts := transport.Options{
		Texts: texts,
		Defaults: session.Config{
			Size:        cfg.DefaultBoardSize,
			Rules:       cfg.Rules,
			TimeControl: cfg.Clock,
			Suicide:     cfg.Suicide,
		},
		TimeControls:    cfg.Presets,
		DisconnectGrace: cfg.DisconnectGrace,
		Checks:          map[string]transport.Checker{},
	}

	// --- Redis ---
	if cfg.RedisURL != "" {
		fan, err := fanout.NewFromURL(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer fan.Close()
		roomOpts.Publisher = fan
		handlerOpts.Spectator = fan
		handlerOpts.Checks["redis"] = transport.CheckFunc(fan.Ping)
		log.Info("redis_connected")
	}

	// --- Opponent ---
	var remote opponent.Strategy
	if cfg.OpponentURL != "" {
		remote = opponent.NewRemote(cfg.OpponentURL)
		log.Info("remote_opponent", zap.String("url", cfg.OpponentURL))
	}
	handlerOpts.Opponents = transport.Opponents(remote)

	rooms := room.NewManager(roomOpts)
	defer rooms.Shutdown()
	handlerOpts.Rooms = rooms

	srv := transport.NewServer(cfg.HTTPAddr, transport.NewHandler(handlerOpts).Routes())

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server_start",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("rules", string(cfg.Rules)),
			zap.Int("size", cfg.DefaultBoardSize),
			zap.Int("max_rooms", cfg.MaxConcurrentGames))
		return srv.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("server_shutdown")
		return srv.Shutdown(context.Background())
	})
	return g.Wait()
}
