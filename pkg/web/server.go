// Package web serves the focus monitor over HTTP and WebSocket.
package web

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-focus/pkg/camera"
	"github.com/teslashibe/go-focus/pkg/hub"
	"github.com/teslashibe/go-focus/pkg/metrics"
	"github.com/teslashibe/go-focus/pkg/session"
)

// Version is reported by the service info endpoint.
const Version = "1.0.0"

// bodyLimit bounds uploaded frames.
const bodyLimit = 16 * 1024 * 1024

// Webcam produces annotated JPEG frames for the MJPEG stream.
type Webcam interface {
	Stream(ctx context.Context, fn func(jpeg []byte) error) error
}

// Options configures a Server. Sessions is required.
type Options struct {
	Addr        string
	CORSOrigins string

	Sessions *session.Manager
	Results  *hub.Hub
	Metrics  *metrics.Collector
	Cameras  *camera.Manager
	Webcam   Webcam
	Logger   *slog.Logger
}

// Server is the focus monitoring HTTP server
type Server struct {
	app  *fiber.App
	addr string
	log  *slog.Logger

	sessions *session.Manager
	results  *hub.Hub
	metrics  *metrics.Collector
	cameras  *camera.Manager
	webcam   Webcam

	// ctx ends long-lived streams on shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates the server and registers its routes
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		addr:     opts.Addr,
		log:      logger,
		sessions: opts.Sessions,
		results:  opts.Results,
		metrics:  opts.Metrics,
		cameras:  opts.Cameras,
		webcam:   opts.Webcam,
		ctx:      ctx,
		cancel:   cancel,
	}

	app := fiber.New(fiber.Config{
		AppName:               "Focus Monitor",
		DisableStartupMessage: true,
		BodyLimit:             bodyLimit,
	})

	app.Use(recover.New())
	if opts.CORSOrigins != "" {
		app.Use(cors.New(cors.Config{AllowOrigins: opts.CORSOrigins}))
	} else {
		app.Use(cors.New())
	}

	app.Get("/", s.handleRoot)
	app.Get("/health", s.handleHealth)
	app.Get("/stats", s.handleStats)
	app.Post("/analyze-frame", s.handleAnalyzeFrame)
	app.Get("/webcam/stream", s.handleWebcamStream)

	sessions := app.Group("/sessions")
	sessions.Get("/", s.handleListSessions)
	sessions.Post("/", s.handleCreateSession)
	sessions.Get("/:id/stats", s.handleSessionStats)
	sessions.Delete("/:id", s.handleDeleteSession)

	if s.cameras != nil {
		app.Get("/camera/config", s.handleGetCameraConfig)
		app.Post("/camera/config", s.handleSetCameraConfig)
	}
	if s.metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))
	}

	// WebSocket upgrade middleware
	upgrade := func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
	app.Get("/analyze", upgrade, websocket.New(s.handleAnalyzeWS, websocket.Config{ReadBufferSize: 64 * 1024}))
	if s.results != nil {
		app.Get("/ws/results", upgrade, websocket.New(s.handleResultsWS))
	}

	s.app = app
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start runs the result hub and listens until the server is shut down
func (s *Server) Start() error {
	s.log.Info("focus monitor listening", "addr", s.addr)
	if s.results != nil && !s.results.IsRunning() {
		go s.results.Run(s.ctx)
	}
	return s.app.Listen(s.addr)
}

// StartAsync starts the server in a goroutine
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.log.Error("web server error", "error", err)
		}
	}()
}

// Shutdown ends open streams and gracefully stops the server
func (s *Server) Shutdown() error {
	s.cancel()
	return s.app.Shutdown()
}
