package server

import (
	"treadmill-relay/internal/auth"
	"treadmill-relay/internal/config"
	"treadmill-relay/internal/history"
	"treadmill-relay/internal/status"
	"treadmill-relay/internal/stream"
	"treadmill-relay/internal/upload"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// UploadReporter is the view of the upload worker served on /status/uploads.
type UploadReporter interface {
	Stats() upload.Stats
	Recent() []upload.Outcome
}

type Server struct {
	App     *fiber.App
	Cfg     config.Config
	Board   *status.Board
	Uploads UploadReporter
	Stream  *stream.Hub
	History *history.Service
}

// NewServer builds the status surface. hist is nil unless sessions are
// delivered to postgres.
func NewServer(cfg config.Config, board *status.Board, uploads UploadReporter, hub *stream.Hub, hist *history.Service) *Server {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:     app,
		Cfg:     cfg,
		Board:   board,
		Uploads: uploads,
		Stream:  hub,
		History: hist,
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	guard := func(c *fiber.Ctx) error { return c.Next() }
	if s.Cfg.StatusJWTSecret != "" {
		guard = auth.JWTMiddleware(s.Cfg.StatusJWTSecret)
	}

	statusRoutes := s.App.Group("/status", guard)

	statusRoutes.Get("/", func(c *fiber.Ctx) error {
		if s.Board == nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "relay not running")
		}
		return c.JSON(s.Board.Snapshot())
	})

	statusRoutes.Get("/uploads", func(c *fiber.Ctx) error {
		if s.Uploads == nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "upload worker not running")
		}
		return c.JSON(fiber.Map{
			"stats":  s.Uploads.Stats(),
			"recent": s.Uploads.Recent(),
		})
	})

	if s.History != nil {
		history.RegisterRoutes(s.App.Group("/history"), s.History, s.Cfg.DeviceName, guard)
	}

	if s.Stream != nil {
		stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
	}
}
