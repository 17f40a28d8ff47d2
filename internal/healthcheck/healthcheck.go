package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

type Server struct {
	port    int
	metrics http.Handler
	logger  *slog.Logger
}

// NewServer serves /health-check and, when metrics is not nil, /metrics.
func NewServer(port int, metrics http.Handler) *Server {
	return &Server{
		port:    port,
		metrics: metrics,
		logger:  slog.With("component", "healthcheck"),
	}
}

func (hs *Server) handle(w http.ResponseWriter, r *http.Request) {
	select {
	case <-r.Context().Done():
		w.WriteHeader(http.StatusServiceUnavailable)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func (hs *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health-check", hs.handle)
	if hs.metrics != nil {
		mux.Handle("/metrics", hs.metrics)
	}
	return mux
}

// ListenAndServe blocks until ctx is done, then shuts the server down gracefully.
func (hs *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", hs.port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", hs.port, err)
	}

	return hs.Serve(ctx, ln)
}

func (hs *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
		Handler:           hs.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		hs.logger.Info(fmt.Sprintf("listening on %s", ln.Addr()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			hs.logger.Error(fmt.Sprintf("server stopped, error: %s", err))
		}
	}()

	<-ctx.Done()

	ctxShutDown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutDown); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	return nil
}
