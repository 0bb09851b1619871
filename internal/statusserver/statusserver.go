// Package statusserver runs the out-of-core HTTP endpoint the engine
// exposes next to the replication data plane: liveness/readiness probes,
// a JSON snapshot of every worker's counters, and Prometheus metrics.
// It never touches the supervisor's workers directly, only their
// already-synchronized Stats snapshots, so a slow or wedged scrape can
// never stall replication.
package statusserver

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	httppprof "net/http/pprof"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/user/myreplicate/pkg/supervisor"
)

// Reporter is the subset of *supervisor.Supervisor this package depends
// on, so a status server can be unit-tested against a stub without
// constructing a real worker fleet.
type Reporter interface {
	Report() supervisor.Report
}

// Server serves /healthz, /readyz, /livez, /status and /metrics on its
// own address, independent of the replication data plane.
type Server struct {
	addr     string
	reporter Reporter
	log      zerolog.Logger
}

// New constructs a Server bound to addr (":9090" style); it does not
// start listening until Run is called.
func New(addr string, reporter Reporter, log zerolog.Logger) *Server {
	return &Server{addr: addr, reporter: reporter, log: log.With().Str("component", "statusserver").Logger()}
}

// Run starts the HTTP listener and blocks until ctx is cancelled, at
// which point it shuts the server down with a bounded grace period.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.addr,
		Handler: s.routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("status server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("GET /livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.Handle("/metrics", promhttp.Handler())

	if os.Getenv("MYREPLICATE_PPROF") == "true" {
		mux.HandleFunc("/debug/pprof/", httppprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", httppprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", httppprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", httppprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", httppprof.Trace)
	}

	return mux
}

// handleReadyz reports not-ready while every source is still paused for
// init snapshots to finish, so a load balancer or orchestrator won't
// treat the process as serving traffic before it actually streams.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	report := s.reporter.Report()
	if report.SourcesPaused {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready: waiting on init snapshots"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	report := s.reporter.Report()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(report); err != nil {
		s.log.Error().Err(err).Msg("failed to encode status report")
	}
}
