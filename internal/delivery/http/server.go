package http

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	fiberSwagger "github.com/swaggo/fiber-swagger"
	"go.uber.org/zap"

	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/config"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/delivery/http/handler"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/delivery/http/middleware"
	pkgerrors "github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/pkg/errors"
	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/pkg/utils"
)

// Server - the query API on fiber
type Server struct {
	app    *fiber.App
	config *config.Config
	logger *zap.Logger

	dataHandler   *handler.DataHandler
	jobHandler    *handler.JobHandler
	healthHandler *handler.HealthHandler
	gatherer      prometheus.Gatherer
}

func NewServer(
	cfg *config.Config,
	logger *zap.Logger,
	dataHandler *handler.DataHandler,
	jobHandler *handler.JobHandler,
	healthHandler *handler.HealthHandler,
	gatherer prometheus.Gatherer,
) *Server {
	app := fiber.New(fiber.Config{
		AppName:      "Climate Risk Map API",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
		ErrorHandler: customErrorHandler(logger),
	})

	s := &Server{
		app:           app,
		config:        cfg,
		logger:        logger,
		dataHandler:   dataHandler,
		jobHandler:    jobHandler,
		healthHandler: healthHandler,
		gatherer:      gatherer,
	}

	s.setupMiddlewares()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddlewares() {
	s.app.Use(middleware.Recovery(s.logger))
	s.app.Use(middleware.Logger(s.logger))
	s.app.Use(middleware.CORS(s.config.Server.AllowOrigins))
	s.app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))
}

func (s *Server) setupRoutes() {
	s.app.Get("/swagger/*", fiberSwagger.WrapHandler)

	if s.gatherer != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	api := s.app.Group("/api/v1")

	api.Get("/health", s.healthHandler.Health)

	api.Get("/data/:format/:category", s.dataHandler.GetData)
	api.Get("/climate-metadata/:variable/:ssp", s.dataHandler.GetClimateMetadata)

	// Jobs are accepted only when a worker process consumes the streams
	if s.jobHandler != nil {
		jobs := api.Group("/jobs")
		jobs.Post("/etl", s.jobHandler.EnqueueETL)
		jobs.Post("/refresh", s.jobHandler.EnqueueRefresh)
	}
}

// App exposes the fiber app for in-process tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Start() error {
	addr := s.config.GetServerAddr()
	s.logger.Info("Starting HTTP server", zap.String("address", addr))
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.app.ShutdownWithContext(ctx)
}

// customErrorHandler renders errors that escape handlers, such as unknown routes, in the
// AppError envelope.
func customErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if stderrors.As(err, &fe) {
			appErr := pkgerrors.New("HTTP_ERROR", fe.Message, fe.Code)
			if fe.Code == fiber.StatusNotFound {
				appErr = pkgerrors.New("NOT_FOUND", "Route not found", fe.Code)
			}
			return utils.SendError(c, appErr)
		}

		logger.Error("HTTP Error",
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return utils.SendError(c, err)
	}
}
