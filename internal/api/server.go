package api

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"pacotes-bot/internal/packages"
	"pacotes-bot/internal/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const defaultHistoryLimit = 50

// Service is the package store as seen by the API.
type Service interface {
	Create(ctx context.Context, req packages.CreateRequest) (packages.Subscription, error)
	ListActive(groupID string) []packages.Subscription
	Stats() packages.Stats
	Validity(phone string) []packages.Validity
	Cancel(phone, reference string) (packages.Subscription, error)
	History(limit int) []packages.HistoryEntry
}

// TickRunner runs a renewal pass on demand.
type TickRunner interface {
	RunOnce(ctx context.Context) (packages.TickResult, bool)
}

type Server struct {
	app    *fiber.App
	svc    Service
	ticker TickRunner
	allow  *utils.AllowList
}

func NewServer(svc Service, ticker TickRunner, allow *utils.AllowList) *Server {
	s := &Server{
		app: fiber.New(fiber.Config{
			AppName:               "pacotes-bot",
			ReadTimeout:           30 * time.Second,
			WriteTimeout:          2 * time.Minute,
			BodyLimit:             1 * 1024 * 1024,
			DisableStartupMessage: true,
			JSONEncoder:           json.Marshal,
			JSONDecoder:           json.Unmarshal,
		}),
		svc:    svc,
		ticker: ticker,
		allow:  allow,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Use(requestLogger)
	s.app.Get("/health", s.health)

	s.app.Use(s.allowList)
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	g := s.app.Group("/packages")
	g.Post("/", s.create)
	g.Get("/", s.list)
	g.Get("/stats", s.stats)
	g.Get("/history", s.history)
	g.Get("/phone/:phone", s.validity)
	g.Post("/tick", s.tick)
	g.Delete("/:phone/:reference", s.cancel)
}

// App exposes the router, mostly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	log.Info().Str("addr", addr).Msg("HTTP API listening")
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	log.Debug().
		Str("method", c.Method()).
		Str("path", c.Path()).
		Str("ip", c.IP()).
		Int("status", c.Response().StatusCode()).
		Dur("elapsed", time.Since(start)).
		Msg("HTTP request")
	return err
}

func (s *Server) allowList(c *fiber.Ctx) error {
	if s.allow.Allows(c.IP()) {
		return c.Next()
	}
	log.Warn().Str("ip", c.IP()).Str("path", c.Path()).Msg("Rejected request from address outside the allow-list")
	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
		"success": false,
		"error":   "forbidden",
		"message": "address not allowed",
	})
}

// writeError maps store errors to status codes.
func writeError(c *fiber.Ctx, err error) error {
	status, code := fiber.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, packages.ErrDuplicateReference):
		status, code = fiber.StatusConflict, "duplicate_reference"
	case errors.Is(err, packages.ErrInvalidPlanKind):
		status, code = fiber.StatusBadRequest, "invalid_plan"
	case errors.Is(err, packages.ErrInvalidRequest):
		status, code = fiber.StatusBadRequest, "invalid_request"
	case errors.Is(err, packages.ErrSubmissionFailure):
		status, code = fiber.StatusBadGateway, "submission_failed"
	case errors.Is(err, packages.ErrNotFound):
		status, code = fiber.StatusNotFound, "not_found"
	}
	if status >= fiber.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Path()).Msg("Request failed")
	}
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   code,
		"message": err.Error(),
	})
}
