package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"treadmill-relay/internal/auth"
	"treadmill-relay/internal/config"
	"treadmill-relay/internal/db"
	"treadmill-relay/internal/ftms"
	"treadmill-relay/internal/history"
	"treadmill-relay/internal/link"
	"treadmill-relay/internal/network"
	"treadmill-relay/internal/relay"
	"treadmill-relay/internal/server"
	"treadmill-relay/internal/session"
	"treadmill-relay/internal/status"
	"treadmill-relay/internal/stream"
	"treadmill-relay/internal/supervisor"
	"treadmill-relay/internal/upload"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"tinygo.org/x/bluetooth"
)

var mainDepsProvider = defaultDeps
var mainRunner = realMain

func main() {
	mainRunner(mainDepsProvider())
}

type mainDeps struct {
	loadConfig      func() config.Config
	connectPostgres func(config.Config) (*pgxpool.Pool, error)
	connectRedis    func(config.Config) *redis.Client
	notify          func(chan<- os.Signal, ...os.Signal)
	run             func(context.Context, config.Config, *pgxpool.Pool, *redis.Client, <-chan os.Signal, ListenFunc) error
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig:      config.Load,
		connectPostgres: db.ConnectPostgres,
		connectRedis:    db.ConnectRedis,
		notify:          signal.Notify,
		run:             Run,
	}
}

func realMain(deps mainDeps) {
	cfg := deps.loadConfig()

	var pg *pgxpool.Pool
	if cfg.UploadMode == "postgres" {
		var err error
		pg, err = deps.connectPostgres(cfg)
		if err != nil {
			slog.Error("postgres connection failed", "err", err)
		}
	}

	rdb := deps.connectRedis(cfg)

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := deps.run(context.Background(), cfg, pg, rdb, signals, nil); err != nil {
		slog.Error("relay exited with error", "err", err)
	}
}

type ListenFunc func(app *fiber.App, addr string) error

var defaultListen ListenFunc = func(app *fiber.App, addr string) error {
	return app.Listen(addr)
}

var shutdownFn = func(app *fiber.App, ctx context.Context) error {
	return app.ShutdownWithContext(ctx)
}

// newLink picks the treadmill source. LINK_MODE=sim replays a scripted
// workout instead of touching the radio.
var newLink = func(cfg config.Config, logger *slog.Logger) link.Source {
	if cfg.LinkMode == "sim" {
		return link.NewSimulator(link.DefaultProfile, time.Second)
	}
	return link.NewTreadmill(bluetooth.DefaultAdapter, cfg.TreadmillMAC, logger)
}

// Run wires the relay, starts the status server and waits for termination
// signals.
func Run(ctx context.Context, cfg config.Config, pg *pgxpool.Pool, rdb *redis.Client, signals <-chan os.Signal, listen ListenFunc) error {
	logger := slog.Default()
	checkBackendKey(cfg, logger)

	hub := stream.NewHub(rdb)
	board := status.NewBoard(cfg.DeviceName, hub, logger)
	src := newLink(cfg, logger)

	sender, probe := buildSender(ctx, cfg, pg, logger)
	prober := network.NewProber(probe, cfg.UploadTimeout, logger)
	free := upload.HeapHeadroom(cfg.MemoryBudget)
	pipe := upload.New(pipelineOptions(cfg), sender, prober, free, logger)
	pipe.OnResult(func(upload.Outcome) {
		board.Update(func(s *status.Snapshot) { s.Upload = pipe.Stats() })
	})

	machine := session.NewMachine(sessionOptions(cfg, logger), pipe, logger)
	rel := relay.New(decoder(cfg), machine, board, relay.Deps{
		Link:    src,
		Network: prober,
		Uploads: pipe,
		Memory:  free,
	}, logger)
	sup := supervisor.New(supervisor.Options{
		TickInterval:   cfg.SupervisorInterval,
		HealthInterval: cfg.HealthInterval,
	}, src, prober, machine.ClockValid, logger)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		pipe.Run(runCtx)
	}()
	go func() {
		defer wg.Done()
		sup.Run(runCtx)
	}()
	go func() {
		defer wg.Done()
		rel.Run(runCtx, src.Frames(), sup.Ticks())
	}()

	var hist *history.Service
	if pg != nil {
		hist = history.NewService(pg)
	}
	srv := server.NewServer(cfg, board, pipe, hub, hist)

	if listen == nil {
		listen = defaultListen
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- listen(srv.App, cfg.ServerPort)
	}()

	var runErr error
	select {
	case <-signals:
	case <-ctx.Done():
	case err := <-errCh:
		runErr = err
	}

	cancel()
	wg.Wait()
	src.Disconnect()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()

	if err := shutdownFn(srv.App, shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	if pg != nil {
		pg.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	return runErr
}

func buildSender(ctx context.Context, cfg config.Config, pg *pgxpool.Pool, logger *slog.Logger) (upload.Sender, network.ProbeFunc) {
	if cfg.UploadMode == "postgres" {
		if pg == nil {
			logger.Warn("postgres upload mode without a database, sessions will not be delivered")
			return upload.NewPostgresSender(nil), nil
		}
		if err := db.EnsureSchema(ctx, pg); err != nil {
			logger.Warn("ensure schema failed", "err", err)
		}
		return upload.NewPostgresSender(pg), pg.Ping
	}
	if cfg.BackendURL == "" {
		logger.Warn("BACKEND_URL not set, uploads will fail")
	}
	sender := upload.NewHTTPSender(cfg.BackendURL, cfg.BackendAPIKey, cfg.UploadTimeout)
	logger.Info("uploading sessions over http", "url", sender.URL())
	return sender, network.DialProbe(cfg.BackendURL)
}

func checkBackendKey(cfg config.Config, logger *slog.Logger) {
	exp, ok := auth.KeyExpiry(cfg.BackendAPIKey)
	if !ok {
		return
	}
	if time.Now().After(exp) {
		logger.Warn("backend api key expired, uploads will be rejected", "expired_at", exp)
		return
	}
	logger.Info("backend api key valid", "expires_at", exp)
}

func sessionOptions(cfg config.Config, logger *slog.Logger) session.Options {
	def := session.DefaultOptions()
	opts := session.Options{
		MinWorkoutSpeed:     cfg.MinWorkoutSpeed,
		NoiseFloor:          cfg.NoiseFloor,
		StabilizationWindow: cfg.StabilizationWindow,
		SettleDelay:         cfg.SettleDelay,
		Cooldown:            cfg.Cooldown,
		InactivityTimeout:   cfg.InactivityTimeout,
		MinDuration:         cfg.MinSessionDuration,
		MaxDuration:         cfg.MaxSessionDuration,
		ClockValidFrom:      parseClock(cfg.ClockValidFrom, def.ClockValidFrom, "CLOCK_VALID_FROM", logger),
		ClockValidUntil:     parseClock(cfg.ClockValidUntil, def.ClockValidUntil, "CLOCK_VALID_UNTIL", logger),
		BufferCapacity:      cfg.BufferCapacity,
	}
	if opts.BufferCapacity <= 0 {
		opts.BufferCapacity = def.BufferCapacity
	}
	return opts
}

func parseClock(value string, fallback time.Time, key string, logger *slog.Logger) time.Time {
	if value == "" {
		return fallback
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t, err = time.Parse(time.DateOnly, value)
	}
	if err != nil {
		logger.Warn("invalid clock bound, using default", "key", key, "value", value, "default", fallback)
		return fallback
	}
	return t
}

func pipelineOptions(cfg config.Config) upload.Options {
	return upload.Options{
		QueueDepth:  cfg.QueueDepth,
		MemoryFloor: cfg.MemoryFloor,
		Attempts:    cfg.UploadAttempts,
		Backoff:     cfg.UploadBackoff,
		IdleTimeout: cfg.WorkerIdle,
		DeviceName:  cfg.DeviceName,
		NoiseFloor:  cfg.NoiseFloor,
	}
}

func decoder(cfg config.Config) ftms.Decoder {
	return ftms.Decoder{SpeedCeiling: cfg.SpeedCeiling}
}
