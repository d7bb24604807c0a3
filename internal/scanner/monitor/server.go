// Package monitor serves debug views of the visual targets a scan session
// publishes to: a JSON status endpoint and a top-down scatter chart.
package monitor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/banshee-data/lidarscan/internal/httputil"
	"github.com/banshee-data/lidarscan/internal/monitoring"
	"github.com/banshee-data/lidarscan/internal/scanner"
	"github.com/banshee-data/lidarscan/internal/scanner/vfx"
	"github.com/banshee-data/lidarscan/internal/version"
)

// DefaultAssetsHost serves the echarts javascript for rendered charts.
const DefaultAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// TargetSource exposes published targets. vfx.Pool implements it.
type TargetSource interface {
	Snapshot() []vfx.Target
	Get(h scanner.TargetHandle) (vfx.Target, bool)
}

// Config configures a Server.
type Config struct {
	Address    string
	Targets    TargetSource
	AssetsHost string // defaults to DefaultAssetsHost
}

// Server is the debug HTTP server.
type Server struct {
	address    string
	targets    TargetSource
	assetsHost string
	started    time.Time
	server     *http.Server
}

// NewServer creates a server; call Start to serve.
func NewServer(cfg Config) *Server {
	s := &Server{
		address:    cfg.Address,
		targets:    cfg.Targets,
		assetsHost: cfg.AssetsHost,
		started:    time.Now(),
	}
	if s.assetsHost == "" {
		s.assetsHost = DefaultAssetsHost
	}
	s.server = &http.Server{
		Addr:              s.address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the route multiplexer.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/debug/scan/status", s.handleStatus)
	mux.HandleFunc("/debug/scan/targets/{handle}", s.handleTarget)
	mux.HandleFunc("/debug/scan/chart", s.handleChart)
	return mux
}

// Start serves until ctx is done, then shuts down gracefully. It returns
// early if the listener fails.
func (s *Server) Start(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		monitoring.Logf("[Monitor] listening on %s", s.address)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("[Monitor] shutdown error: %v", err)
		if err := s.server.Close(); err != nil {
			monitoring.Logf("[Monitor] force close error: %v", err)
		}
	}
	monitoring.Logf("[Monitor] stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) {
		return
	}
	httputil.WriteJSONOK(w, map[string]string{
		"status":  "ok",
		"version": version.Version,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	})
}
