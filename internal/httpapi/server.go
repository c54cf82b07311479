// Package httpapi is the admin surface: fleet and store status, and the
// manual clear-and-resync maintenance operation. It is an operator tool,
// not a device-facing endpoint; terminals only ever talk to their driver.
package httpapi

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/jmichalek/punchsync/internal/punch/service"
)

type Dependencies struct {
	Logger       *log.Logger
	Addr         string
	Orchestrator *service.Orchestrator
}

type Server struct {
	httpServer *http.Server
	logger     *log.Logger
	orch       *service.Orchestrator
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()

	s := &Server{
		logger: d.Logger,
		orch:   d.Orchestrator,
	}

	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("POST /v1/resync", s.handleResync)

	handler := loggingMiddleware(d.Logger, mux)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.Status())
}

// resyncTimeout bounds a clear-and-resync run once it is detached from the
// operator's connection.
const resyncTimeout = 5 * time.Minute

// handleResync drains every store and replays the full device backlog.
// Destructive and slow; the handler runs it synchronously so the operator's
// curl does not return until the replay finished. The operation itself runs
// detached from the request context: once the stores are wiped, a dropped
// client connection must not abort the replay halfway.
func (s *Server) handleResync(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), resyncTimeout)
	defer cancel()

	report, err := s.orch.Resync(ctx)
	if err != nil {
		s.logger.Printf("resync error: %v", err)
		writeError(w, http.StatusInternalServerError, "resync_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}
