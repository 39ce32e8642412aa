package telemetry

import (
	"net"
	"net/http"
	"sync"
	"time"

	"codeberg.org/mutker/sensorsd/internal/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server serves a registry on path and a liveness probe on /health.
type Server struct {
	address  string
	path     string
	registry *prometheus.Registry
	server   *http.Server
	listener net.Listener
	mu       sync.Mutex
}

func NewServer(address, path string, registry *prometheus.Registry) *Server {
	if path == "" {
		path = defaultPath
	}
	if address == "" {
		address = defaultAddress
	}

	return &Server{
		address:  address,
		path:     path,
		registry: registry,
	}
}

// Start binds the listener and serves in the background. Bind errors are
// returned; serve errors after that are not.
func (s *Server) Start() error {
	errFactory := errors.New()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return errFactory.New(ErrServerRunning)
	}

	mux := http.NewServeMux()
	mux.Handle(s.path, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return errFactory.Wrap(ErrListenFailed, err)
	}

	s.listener = listener
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func(srv *http.Server) {
		_ = srv.Serve(listener)
	}(s.server)

	return nil
}

// Stop closes the server. It is safe to call on a stopped server.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return nil
	}

	err := s.server.Close()
	s.server = nil
	s.listener = nil

	return err
}

// Address returns the URL of the metrics endpoint.
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	host := s.address
	if s.listener != nil {
		host = s.listener.Addr().String()
	}

	return "http://" + host + s.path
}
