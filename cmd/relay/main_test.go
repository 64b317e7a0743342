package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"syscall"
	"testing"
	"time"

	"treadmill-relay/internal/config"
	"treadmill-relay/internal/link"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

var errListen = context.Canceled

// testConfig keeps Run off the radio and the network.
func testConfig() config.Config {
	return config.Config{
		ServerPort: ":0",
		DeviceName: "treadmill-test",
		LinkMode:   "sim",
		UploadMode: "http",
		BackendURL: "http://127.0.0.1:1",
	}
}

func TestMain(m *testing.M) {
	newLink = func(config.Config, *slog.Logger) link.Source {
		return link.NewSimulator(nil, time.Hour)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

func TestRunHandlesSignal(t *testing.T) {
	signals := make(chan os.Signal, 1)

	listenCalled := make(chan struct{})
	listen := func(_ *fiber.App, _ string) error {
		close(listenCalled)
		return nil
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		signals <- syscall.SIGINT
	}()

	if err := Run(context.Background(), testConfig(), nil, nil, signals, listen); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	select {
	case <-listenCalled:
	default:
		t.Fatalf("expected listen to be called")
	}
}

func TestRunContextCancel(t *testing.T) {
	signals := make(chan os.Signal, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := Run(ctx, testConfig(), nil, nil, signals, func(_ *fiber.App, _ string) error { return nil }); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
}

func TestRunListenError(t *testing.T) {
	signals := make(chan os.Signal, 1)

	err := Run(context.Background(), testConfig(), nil, nil, signals, func(_ *fiber.App, _ string) error {
		return errListen
	})
	if !errors.Is(err, errListen) {
		t.Fatalf("expected listen error, got %v", err)
	}
}

func TestRunDefaultListen(t *testing.T) {
	signals := make(chan os.Signal, 1)

	oldListen := defaultListen
	defaultListen = func(_ *fiber.App, _ string) error { return nil }
	defer func() { defaultListen = oldListen }()

	go func() {
		signals <- syscall.SIGINT
	}()

	if err := Run(context.Background(), testConfig(), nil, nil, signals, nil); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
}

func TestRealMainHandlesErrors(t *testing.T) {
	calledNotify := false
	calledRun := false
	calledPostgres := false
	deps := mainDeps{
		loadConfig: func() config.Config {
			cfg := testConfig()
			cfg.UploadMode = "postgres"
			return cfg
		},
		connectPostgres: func(config.Config) (*pgxpool.Pool, error) {
			calledPostgres = true
			return nil, errListen
		},
		connectRedis: func(config.Config) *redis.Client { return nil },
		notify: func(ch chan<- os.Signal, _ ...os.Signal) {
			calledNotify = true
			close(ch)
		},
		run: func(context.Context, config.Config, *pgxpool.Pool, *redis.Client, <-chan os.Signal, ListenFunc) error {
			calledRun = true
			return errListen
		},
	}

	realMain(deps)
	if !calledNotify || !calledRun || !calledPostgres {
		t.Fatalf("expected notify, postgres and run to be called")
	}
}

func TestRealMainSkipsPostgresInHTTPMode(t *testing.T) {
	deps := defaultDeps()
	deps.loadConfig = testConfig
	deps.connectPostgres = func(config.Config) (*pgxpool.Pool, error) {
		t.Fatalf("postgres dialed in http mode")
		return nil, nil
	}
	deps.notify = func(chan<- os.Signal, ...os.Signal) {}
	deps.run = func(context.Context, config.Config, *pgxpool.Pool, *redis.Client, <-chan os.Signal, ListenFunc) error {
		return nil
	}
	realMain(deps)
}

func TestDefaultDeps(t *testing.T) {
	deps := defaultDeps()
	if deps.loadConfig == nil || deps.connectPostgres == nil || deps.connectRedis == nil || deps.notify == nil || deps.run == nil {
		t.Fatalf("expected default deps to be set")
	}
}

func TestMainUsesOverrides(t *testing.T) {
	oldProvider := mainDepsProvider
	oldRunner := mainRunner
	defer func() {
		mainDepsProvider = oldProvider
		mainRunner = oldRunner
	}()

	called := false
	mainDepsProvider = func() mainDeps { return mainDeps{} }
	mainRunner = func(mainDeps) { called = true }

	main()
	if !called {
		t.Fatalf("expected main runner to be called")
	}
}

func TestRunClosesResources(t *testing.T) {
	signals := make(chan os.Signal, 1)

	redisServer := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: redisServer.Addr()})

	listen := func(_ *fiber.App, _ string) error {
		signals <- syscall.SIGINT
		return nil
	}

	if err := Run(context.Background(), testConfig(), nil, client, signals, listen); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if err := client.Ping(context.Background()).Err(); err == nil {
		t.Fatalf("expected redis client closed")
	}
}

func TestRunShutdownError(t *testing.T) {
	signals := make(chan os.Signal, 1)

	oldShutdown := shutdownFn
	shutdownFn = func(_ *fiber.App, _ context.Context) error { return errListen }
	defer func() { shutdownFn = oldShutdown }()

	go func() {
		signals <- syscall.SIGINT
	}()

	if err := Run(context.Background(), testConfig(), nil, nil, signals, func(_ *fiber.App, _ string) error { return nil }); err == nil {
		t.Fatalf("expected shutdown error")
	}
}

func TestRunPostgresModeWithoutDatabase(t *testing.T) {
	cfg := testConfig()
	cfg.UploadMode = "postgres"
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Run(ctx, cfg, nil, nil, make(chan os.Signal), func(*fiber.App, string) error { return nil }); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
}

func TestSessionOptionsProjection(t *testing.T) {
	cfg := testConfig()
	cfg.MinWorkoutSpeed = 1.5
	cfg.Cooldown = 45 * time.Second
	cfg.ClockValidFrom = "2025-06-01"
	cfg.ClockValidUntil = "not-a-date"

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := sessionOptions(cfg, logger)
	if opts.MinWorkoutSpeed != 1.5 || opts.Cooldown != 45*time.Second {
		t.Fatalf("unexpected options %+v", opts)
	}
	if !opts.ClockValidFrom.Equal(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected clock start %v", opts.ClockValidFrom)
	}
	if opts.ClockValidUntil.Year() != 2034 {
		t.Fatalf("expected default clock end, got %v", opts.ClockValidUntil)
	}
	if opts.BufferCapacity != 200 {
		t.Fatalf("expected default buffer capacity")
	}
}

func TestPipelineOptionsAndDecoder(t *testing.T) {
	cfg := testConfig()
	cfg.QueueDepth = 5
	cfg.UploadBackoff = 3 * time.Second
	cfg.SpeedCeiling = 25

	opts := pipelineOptions(cfg)
	if opts.QueueDepth != 5 || opts.Backoff != 3*time.Second || opts.DeviceName != "treadmill-test" {
		t.Fatalf("unexpected options %+v", opts)
	}
	if decoder(cfg).SpeedCeiling != 25 {
		t.Fatalf("unexpected decoder ceiling")
	}
}

func TestCheckBackendKeyIgnoresOpaqueKey(t *testing.T) {
	cfg := testConfig()
	cfg.BackendAPIKey = "opaque"
	checkBackendKey(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}
