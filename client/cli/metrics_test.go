package cli

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/peer-calls/meetings/client/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandler(t *testing.T) {
	type testCase struct {
		name          string
		accessToken   string
		path          string
		authorization string
		wantStatus    int
	}

	testCases := []testCase{
		{"liveness", "", "/probes/liveness", "", http.StatusOK},
		{"no token configured", "", "/metrics", "Bearer ", http.StatusUnauthorized},
		{"missing token", "secret", "/metrics", "", http.StatusUnauthorized},
		{"wrong token", "secret", "/metrics", "Bearer other", http.StatusUnauthorized},
		{"bearer token", "secret", "/metrics", "Bearer secret", http.StatusOK},
		{"query token", "secret", "/metrics?access_token=secret", "", http.StatusOK},
		{"unknown route", "secret", "/other", "", http.StatusNotFound},
	}

	for _, tc := range testCases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.authorization != "" {
				r.Header.Set("Authorization", tc.authorization)
			}

			w := httptest.NewRecorder()

			newMetricsHandler(tc.accessToken).ServeHTTP(w, r)

			assert.Equal(t, tc.wantStatus, w.Code)
		})
	}
}

func TestServeMetrics(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)

	go func() {
		errCh <- serveMetrics(ctx, test.NewLogger(), listener, "secret")
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+listener.Addr().String()+"/metrics", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret")

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, res.Header.Get("Content-Type"), "text/plain")

	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		require.Fail(t, "timed out")
	}
}
