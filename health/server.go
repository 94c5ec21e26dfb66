package health

import (
	"Painty/lib/sl"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server exposes a minimal status endpoint so the process can sit
// behind conventional liveness checks.
type Server struct {
	srv   *http.Server
	store Pinger
	log   *slog.Logger
}

type Pinger interface {
	Ping(ctx context.Context) error
}

func NewServer(port string, store Pinger, log *slog.Logger) *Server {
	s := &Server{
		store: store,
		log:   log.With(sl.Module("health")),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", s.handleHealth)

	s.srv = &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	if err := s.store.Ping(ctx); err != nil {
		s.log.Error("storage ping failed", sl.Err(err))
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
