package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/peer-calls/meetings/client"
	"github.com/peer-calls/meetings/client/cli"
	"github.com/peer-calls/meetings/client/meetingsapi"
	"github.com/peer-calls/meetings/client/multierr"
	"github.com/peer-calls/meetings/client/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	filename := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(filename, []byte(content), 0o600))

	return filename
}

func exec(ctx context.Context, args ...string) (string, error) {
	var stdout bytes.Buffer

	err := cli.Exec(ctx, cli.Props{
		Log:     test.NewLogger(),
		Version: "v1.2.3",
		Args:    args,
		Stdout:  &stdout,
	})

	return stdout.String(), err
}

func TestVersion(t *testing.T) {
	out, err := exec(context.Background(), "version")
	require.NoError(t, err)
	assert.Equal(t, "meetings v1.2.3\n", out)
}

func TestDevices(t *testing.T) {
	defer test.UnsetEnvPrefix(client.EnvPrefix)

	config := writeConfig(t, `
devices:
- id: cam0
  label: Camera
  kind: videoinput
  url: rtp://127.0.0.1:50000
  mime_type: video/VP8
- id: mic0
  label: Microphone
  kind: audioinput
  url: rtp://127.0.0.1:50010
  mime_type: audio/opus
`)

	out, err := exec(context.Background(), "devices", "-c", config)
	require.NoError(t, err)

	assert.Equal(t, ""+
		"ID    KIND        LABEL\n"+
		"cam0  videoinput  Camera\n"+
		"mic0  audioinput  Microphone\n", out)
}

func TestDevices_MissingConfig(t *testing.T) {
	_, err := exec(context.Background(), "devices", "-c", "/missing/file.yml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestJoin_MissingMeetingID(t *testing.T) {
	_, err := exec(context.Background(), "join")
	assert.True(t, multierr.Is(err, cli.ErrMissingMeetingID))

	// Flags without a command run join.
	_, err = exec(context.Background(), "--no-video")
	assert.True(t, multierr.Is(err, cli.ErrMissingMeetingID))
}

type backend struct {
	mu       sync.Mutex
	requests []string
	joinCode int
}

func (b *backend) Requests() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]string(nil), b.requests...)
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/events" {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}

		defer conn.Close(websocket.StatusNormalClosure, "")

		// Blocks until the client goes away.
		_, _, _ = conn.Read(r.Context())

		return
	}

	b.mu.Lock()
	b.requests = append(b.requests, r.Method+" "+r.URL.Path)
	joinCode := b.joinCode
	b.mu.Unlock()

	if r.URL.Path == "/meetings/m1/join" {
		if joinCode != 0 {
			w.WriteHeader(joinCode)

			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(meetingsapi.JoinResponse{
			UserID: "u1",
		})

		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte("{}"))
}

func TestJoin_BackendError(t *testing.T) {
	defer test.UnsetEnvPrefix(client.EnvPrefix)

	b := &backend{joinCode: http.StatusForbidden}

	server := httptest.NewServer(b)
	defer server.Close()

	config := writeConfig(t, "backend_url: "+server.URL+"\nice_servers: []\n")

	_, err := exec(context.Background(), "join", "-c", config, "--no-audio", "--no-video", "m1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "join meeting")
	assert.True(t, multierr.Is(err, meetingsapi.ErrUnexpectedStatus))

	assert.Equal(t, []string{"PUT /meetings/m1/join"}, b.Requests())
}

func TestJoin_Leave(t *testing.T) {
	defer test.UnsetEnvPrefix(client.EnvPrefix)

	b := &backend{}

	server := httptest.NewServer(b)
	defer server.Close()

	config := writeConfig(t, "backend_url: "+server.URL+"\nice_servers: []\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)

	go func() {
		_, err := exec(ctx, "join", "-c", config, "--no-audio", "--no-video", "--meeting-id", "m1")
		errCh <- err
	}()

	assert.Eventually(t, func() bool {
		for _, req := range b.Requests() {
			if req == "PUT /meetings/m1/audio/offer" {
				return true
			}
		}

		return false
	}, 5*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		require.Fail(t, "timed out")
	}

	requests := b.Requests()
	require.NotEmpty(t, requests)
	assert.Equal(t, "PUT /meetings/m1/join", requests[0])
	assert.Contains(t, requests, "PUT /meetings/m1/leave")
}
