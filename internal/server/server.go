package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/Chengenchong/PayLentine-Backend/internal/config"
	"github.com/Chengenchong/PayLentine-Backend/internal/httpx"
	"github.com/Chengenchong/PayLentine-Backend/internal/routes"
)

// Server wraps the Fiber application and the background expiry sweeper.
type Server struct {
	app       *fiber.App
	cfg       config.Config
	container *routes.Container
	logger    *slog.Logger
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(cfg config.Config, db *pgxpool.Pool, cache *redis.Client, logger *slog.Logger) (*Server, error) {
	deps := routes.Deps{Cfg: cfg, DB: db, Cache: cache, Logger: logger}
	container, err := routes.NewContainer(deps)
	if err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{
		AppName:               cfg.AppName,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		ErrorHandler:          httpx.ErrorHandler(logger),
		DisableStartupMessage: !cfg.IsDev(),
	})
	routes.Setup(app, deps, container)

	return &Server{app: app, cfg: cfg, container: container, logger: logger}, nil
}

// App exposes the Fiber application, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// RunSweeper expires overdue pending transactions until ctx is cancelled.
func (s *Server) RunSweeper(ctx context.Context) {
	s.container.Sweeper.Run(ctx)
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
