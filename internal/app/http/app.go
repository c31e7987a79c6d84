package httpapp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"inspirations/internal/lib/logger/sl"
	mw "inspirations/internal/middleware"
	httprouters "inspirations/internal/transport/http"

	"github.com/arl/statsviz"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxBodySize = "32M"

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

// HealthChecker is a dependency reported by /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type Server struct {
	m               *http.ServeMux
	log             *slog.Logger
	e               *echo.Echo
	routers         *httprouters.Routers
	host            string
	port            string
	shutdownTimeout time.Duration
	checks          map[string]HealthChecker
}

func New(log *slog.Logger, sessionSecret, host, port string, shutdownTimeout time.Duration, routers *httprouters.Routers, checks map[string]HealthChecker) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Validator = &CustomValidator{validator: validator.New()}

	store := sessions.NewCookieStore([]byte(sessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	e.Use(session.Middleware(store))

	e.Use(middleware.CORS())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(maxBodySize))
	e.Use(mw.PrometheusMetrics)

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("request",
				slog.String("method", v.Method),
				slog.String("URI", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote ip", v.RemoteIP),
			)

			return nil
		},
	}))

	mux := http.NewServeMux()
	err := statsviz.Register(mux)
	if err != nil {
		log.Info("Statsviz start with error", sl.Err(err))
	}

	return &Server{
		m:               mux,
		log:             log,
		e:               e,
		routers:         routers,
		host:            host,
		port:            port,
		shutdownTimeout: shutdownTimeout,
		checks:          checks,
	}
}

func (s *Server) MustRun() {
	const op = "http.Server.MustRun"

	s.log.Info(op, slog.String("Start", "server"), slog.String("addr", s.addr()))

	if err := s.Start(); err != nil {
		panic(err)
	}
}

func (s *Server) Start() error {
	const op = "http.Server.Start"

	if err := s.e.Start(s.addr()); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("%s server stopped: %w", op, err)
	}

	return nil
}

func (s *Server) Stop() error {
	const op = "http.Server.Stop"

	timeout := s.shutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	optCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.log.Info("stopping", slog.String("op", op))

	if err := s.e.Shutdown(optCtx); err != nil {
		return fmt.Errorf("%s could not shutdown server gracefuly: %w", op, err)
	}

	return nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.e
}

func (s *Server) addr() string {
	return net.JoinHostPort(s.host, s.port)
}

func (s *Server) health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	report := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check.HealthCheck(ctx); err != nil {
			s.log.Warn("health check failed", slog.String("dependency", name), sl.Err(err))
			report[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		report[name] = "ok"
	}

	return c.JSON(status, report)
}

func (s *Server) BuildRouters() {
	s.e.GET("/health", s.health)
	s.e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	debug := s.e.Group("/debug")
	{
		debug.GET("/statsviz/", echo.WrapHandler(s.m))
		debug.GET("/statsviz/*", echo.WrapHandler(s.m))
	}

	media := s.e.Group("/media")
	{
		media.PUT("/*", s.routers.UploadLocalMedia)
		media.GET("/*", s.routers.ServeLocalMedia)
	}

	api := s.e.Group("/api/v1")
	{
		api.GET("/collections", s.routers.ListCollections)
		api.POST("/uploads", s.routers.PresignUpload)
		api.GET("/media/objects", s.routers.ListObjects)

		collectionGroup := api.Group("/collections/:slug/items")
		{
			collectionGroup.GET("", s.routers.ListItems)
			collectionGroup.POST("/image", s.routers.AddImage)
			collectionGroup.POST("/tweet", s.routers.AddTweet)
			collectionGroup.POST("/link", s.routers.AddLink)
		}

		itemGroup := api.Group("/items/:id")
		{
			itemGroup.PATCH("", s.routers.UpdateItem)
			itemGroup.DELETE("", s.routers.DeleteItem)
			itemGroup.POST("/collections", s.routers.AddItemCollection)
			itemGroup.DELETE("/collections/:name", s.routers.RemoveItemCollection)
		}

		viewGroup := api.Group("/views")
		{
			viewGroup.POST("", s.routers.OpenView)
			viewGroup.GET("/:view_id", s.routers.GetView)
			viewGroup.DELETE("/:view_id", s.routers.CloseView)
			viewGroup.POST("/:view_id/events", s.routers.ViewEvent)
		}
	}
}
