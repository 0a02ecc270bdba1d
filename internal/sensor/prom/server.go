package prom

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes a registry over HTTP for Prometheus scraping. It
// serves the /metrics endpoint for whatever gatherer the Monitor was
// registered with.
type Server struct {
	mu        sync.RWMutex
	addr      string
	boundAddr string
	server    *http.Server
	gatherer  prometheus.Gatherer
}

// NewServer creates a metrics server for the given gatherer listening
// on addr. Use addr ":9090" for the default metrics port. A nil
// gatherer serves the default Prometheus registry.
func NewServer(addr string, gatherer prometheus.Gatherer) *Server {
	return &Server{
		addr:     addr,
		gatherer: gatherer,
	}
}

// Start binds the listener and begins serving in the background.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	} else {
		mux.Handle("/metrics", promhttp.Handler())
	}

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.boundAddr = ln.Addr().String()
	s.mu.Unlock()

	go func() {
		// Scraping is best-effort; serve errors surface on Close.
		_ = s.server.Serve(ln)
	}()

	return nil
}

// Addr returns the actual bound address of the server. Returns the
// configured address if the server hasn't started yet.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.boundAddr != "" {
		return s.boundAddr
	}
	return s.addr
}

// Close shuts down the metrics server.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
