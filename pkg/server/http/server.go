package httpfiber

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gofiber/contrib/fiberzap/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zama-ai/token-faucet/pkg/config"
	"github.com/zama-ai/token-faucet/pkg/faucet"
	"github.com/zama-ai/token-faucet/pkg/identity"
	"github.com/zama-ai/token-faucet/pkg/logger"

	"go.uber.org/zap"
)

type Server struct {
	app      *fiber.App
	cfg      *config.Schema
	faucet   *faucet.Faucet
	verifier *identity.Verifier

	registry  *prometheus.Registry
	readiness func(ctx context.Context) error
}

type Option func(*Server)

// NewServer builds the faucet API. Mutating routes authenticate callers with verifier.
func NewServer(cfg *config.Schema, f *faucet.Faucet, verifier *identity.Verifier, opts ...Option) (*Server, error) {
	app := fiber.New(fiber.Config{
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	srv := &Server{
		app:      app,
		cfg:      cfg,
		faucet:   f,
		verifier: verifier,
	}
	for _, opt := range opts {
		opt(srv)
	}

	if cfg.Global.Environment == "production" {
		// parse log level
		level, err := zap.ParseAtomicLevel(cfg.Global.LogLevel)
		if err != nil {
			return nil, err
		}
		zapLogger, err := logger.NewZapLogger(logger.WithLevel(level.Level()))
		if err != nil {
			return nil, err
		}
		app.Use(fiberzap.New(fiberzap.Config{
			Logger: zapLogger.Logger,
		}))
	}
	app.Use(requestid.New())
	app.Use(withRequestContext)

	if err := srv.MapRoutes(); err != nil {
		return nil, err
	}
	return srv, nil
}

func WithRegistry(registry *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = registry
	}
}

// WithReadinessCheck makes /readiness report the error returned by check.
func WithReadinessCheck(check func(ctx context.Context) error) Option {
	return func(s *Server) {
		s.readiness = check
	}
}

// App exposes the underlying fiber app, mostly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Run() error {
	logger.Infof("listening on %s", s.cfg.Global.ListenAddr)
	return s.app.Listen(s.cfg.Global.ListenAddr)
}

func (s *Server) Stop() {
	logger.Infof("Stopping HTTP server...")
	if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil {
		logger.Debugf("HTTP server shutdown: %v", err)
	}
	logger.Infof("HTTP server stopped")
}

func (s *Server) MapRoutes() error {
	s.app.Get("/readiness", s.handleReadiness)
	if s.registry != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
			ErrorLog:      log.New(os.Stderr, log.Prefix(), log.Flags()),
			ErrorHandling: promhttp.ContinueOnError,
		})))
	}

	v1 := s.app.Group("/api/v1")
	v1.Get("/owner", s.handleOwner)
	v1.Get("/assets", s.handleAssets)
	v1.Get("/assets/:asset/balance", s.handleBalance)
	v1.Get("/eligibility/:account/:asset", s.handleEligibility)
	v1.Get("/events", s.handleEvents)

	v1.Post("/request", s.handleRequest)

	admin := v1.Group("/admin")
	admin.Post("/deposit", s.handleDeposit)
	admin.Post("/withdraw", s.handleWithdraw)
	admin.Post("/whitelist/remove", s.handleRemoveFromWhitelist)
	return nil
}

func (s *Server) handleReadiness(c *fiber.Ctx) error {
	if s.readiness != nil {
		if err := s.readiness(c.UserContext()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unavailable",
				"error":  err.Error(),
			})
		}
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "ok",
	})
}

type ctxKey int

const (
	requestIDKey ctxKey = iota
	callerKey
)

func withRequestContext(c *fiber.Ctx) error {
	id, _ := c.Locals(requestid.ConfigDefault.ContextKey).(string)
	c.SetUserContext(context.WithValue(c.UserContext(), requestIDKey, id))
	return c.Next()
}

// RequestAttrs returns the request attributes carried by ctx, for the slog bridge.
func RequestAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	if id, ok := ctx.Value(requestIDKey).(string); ok && id != "" {
		attrs = append(attrs, slog.String("requestId", id))
	}
	if caller, ok := ctx.Value(callerKey).(string); ok {
		attrs = append(attrs, slog.String("caller", caller))
	}
	return attrs
}
