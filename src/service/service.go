package service

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/tablenet/src/node"
)

const shutdownTimeout = 5 * time.Second

// Service exposes the state of a node over HTTP.
type Service struct {
	sync.Mutex

	bindAddress string
	node        *node.Node
	logger      *logrus.Entry
	mux         *http.ServeMux
}

// NewService ...
func NewService(bindAddress string, n *node.Node, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		node:        n,
		logger:      logger,
		mux:         http.NewServeMux(),
	}

	service.registerHandlers()

	return &service
}

func (s *Service) registerHandlers() {
	s.logger.Debug("Registering tablenet API handlers")
	s.mux.HandleFunc("/stats", s.makeHandler(s.GetStats))
	s.mux.HandleFunc("/roster", s.makeHandler(s.GetRoster))
	s.mux.HandleFunc("/table", s.makeHandler(s.GetTable))
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Handler returns the handler of the API, to mount it on another server.
func (s *Service) Handler() http.Handler {
	return s.mux
}

// Serve listens on the bind address and serves the API until ctx is done.
func (s *Service) Serve(ctx context.Context) error {
	l, err := net.Listen("tcp", s.bindAddress)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, l)
}

// ServeListener serves the API on l until ctx is done.
func (s *Service) ServeListener(ctx context.Context, l net.Listener) error {
	s.logger.WithField("bind_address", l.Addr().String()).Debug("Serving tablenet API")

	server := &http.Server{Handler: s.mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(l)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != http.ErrServerClosed {
		return err
	}
	return nil
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := s.node.GetStats()

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(stats)
}

// GetRoster ...
func (s *Service) GetRoster(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(s.node.Roster())
}

// GetTable returns a snapshot of the local table.
func (s *Service) GetTable(w http.ResponseWriter, r *http.Request) {
	snapshot := s.node.Snapshot()
	if snapshot == nil {
		http.Error(w, "no table", http.StatusServiceUnavailable)
		return
	}

	data, err := snapshot.Marshal()
	if err != nil {
		s.logger.WithError(err).Error("Encoding table snapshot")

		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")

	w.Write(data)
}
