package cli

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/juju/errors"
	"github.com/peer-calls/meetings/client/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsShutdownTimeout = 5 * time.Second

// newMetricsHandler serves prometheus metrics to requests carrying the
// access token, either as a bearer token or as the access_token parameter.
// Metrics are never served when accessToken is empty.
func newMetricsHandler(accessToken string) http.Handler {
	handler := chi.NewRouter()

	handler.Get("/probes/liveness", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
	})

	handler.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("Authorization")
		if strings.HasPrefix(token, "Bearer ") {
			token = token[len("Bearer "):]
		} else {
			token = r.FormValue("access_token")
		}

		if token == "" || token != accessToken {
			w.WriteHeader(http.StatusUnauthorized)

			return
		}

		promhttp.Handler().ServeHTTP(w, r)
	})

	return handler
}

// serveMetrics serves the metrics handler on listener until ctx is done.
func serveMetrics(ctx context.Context, log logger.Logger, listener net.Listener, accessToken string) error {
	server := &http.Server{
		Handler:           newMetricsHandler(accessToken),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info("Serving metrics", logger.Ctx{
		"local_addr": listener.Addr(),
	})

	errCh := make(chan error, 1)

	go func() {
		errCh <- server.Serve(listener)
	}()

	select {
	case err := <-errCh:
		return errors.Annotate(err, "serve metrics")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return errors.Annotate(err, "shutdown metrics")
	}

	<-errCh

	return nil
}
