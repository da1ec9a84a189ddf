package server

import (
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"os"

	"github.com/atikulmunna/sitekeeper/internal/accesslog"
	"github.com/atikulmunna/sitekeeper/internal/render"
	"github.com/gin-gonic/gin"
)

// DefaultPort is the port the site listens on when none is configured.
const DefaultPort = 3000

// Config holds the knobs the site exposes.
type Config struct {
	Port        int
	Public      string // static asset directory
	Maintenance bool   // maintenance stage claims every unmatched request
}

// DefaultConfig returns the stock site: port 3000, assets under ./public,
// maintenance on.
func DefaultConfig() Config {
	return Config{
		Port:        DefaultPort,
		Public:      "public",
		Maintenance: true,
	}
}

// Server holds the Gin engine and dependencies for the site.
type Server struct {
	engine   *gin.Engine
	renderer *render.Renderer
	access   *accesslog.Logger
	public   fs.FS
	cfg      Config
	stdout   io.Writer
}

// New creates the site server. The renderer and access logger are owned by
// the caller and shared read-only across requests.
func New(cfg Config, renderer *render.Renderer, access *accesslog.Logger) *Server {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.HTMLRender = renderer

	// Disable automatic redirects so every unmatched path reaches the stages.
	engine.RedirectTrailingSlash = false
	engine.RedirectFixedPath = false

	s := &Server{
		engine:   engine,
		renderer: renderer,
		access:   access,
		cfg:      cfg,
		stdout:   os.Stdout,
	}
	if cfg.Public != "" {
		s.public = os.DirFS(cfg.Public)
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware installs the chain every request passes through, access log last
// so it runs immediately before routing.
func (s *Server) setupMiddleware() {
	s.engine.Use(gin.Recovery())
	s.engine.Use(reportErrors())
	s.engine.Use(tracing(nextRequestID))
	if s.access != nil {
		s.engine.Use(s.access.Middleware())
	}
}

func (s *Server) setupRoutes() {
	s.engine.GET("/", s.home)
	s.engine.GET("/about", s.about)
	s.engine.GET("/bad", s.bad)

	s.engine.NoRoute(runStages(s.Stages()))
}

// Handler exposes the engine for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Addr returns the listen address derived from the configured port.
func (s *Server) Addr() string {
	return fmt.Sprintf(":%d", s.cfg.Port)
}

// ListenAndServe binds the port, announces it, and serves until the listener fails.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.Addr(), err)
	}
	return s.Serve(ln)
}

// Serve announces startup and serves on an existing listener. Blocks.
func (s *Server) Serve(ln net.Listener) error {
	fmt.Fprintf(s.stdout, "Server is up on Port %d.\n", s.cfg.Port)
	return s.engine.RunListener(ln)
}
