package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pkt.systems/pslog"
)

const shutdownTimeout = 5 * time.Second

// Serve exposes the sink's registry on addr under /metrics, along with any
// extra routes, until ctx is done. ready, when non-nil, receives the bound
// address once the listener is up.
func (s *Sink) Serve(ctx context.Context, addr string, ready chan<- net.Addr, routes ...func(chi.Router)) error {
	logger := pslog.Ctx(ctx).With("addr", addr)
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Method(http.MethodGet, "/metrics", s.Handler())
	for _, route := range routes {
		route(router)
	}
	server := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          pslog.LogLoggerWithLevel(logger, pslog.ErrorLevel),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	logger.Info("metrics listening", "bound", ln.Addr().String())
	if ready != nil {
		ready <- ln.Addr()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		logger.Debug("metrics stopped")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
