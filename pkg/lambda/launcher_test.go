package lambda

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"php-lambda-launcher/internal/backend"
	"php-lambda-launcher/internal/bridge"
	"php-lambda-launcher/internal/config"
	"php-lambda-launcher/pkg/server"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStarter struct{ err error }

func (s stubStarter) EnsureStarted(ctx context.Context) (*backend.Process, error) {
	return nil, s.err
}

func newTestLauncher(t *testing.T, starter bridge.Starter, h http.HandlerFunc) *Launcher {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		Environment: "test",
		PHP:         config.PHPConfig{UserDir: "/var/task/user", Entrypoint: "index.php"},
	}
	return NewLauncher(&server.Container{
		Config: cfg,
		Bridge: bridge.New(starter, srv.Listener.Addr().String()),
	})
}

func invokeEvent(t *testing.T, method, path string) json.RawMessage {
	t.Helper()
	inner, err := json.Marshal(map[string]interface{}{
		"method":  method,
		"path":    path,
		"host":    "example.com",
		"headers": map[string]string{"x-forwarded-proto": "https"},
	})
	require.NoError(t, err)
	raw, err := json.Marshal(map[string]string{"Action": "Invoke", "body": string(inner)})
	require.NoError(t, err)
	return raw
}

func TestHandleRelaysToBackend(t *testing.T) {
	l := newTestLauncher(t, stubStarter{}, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		io.WriteString(w, r.RequestURI)
	})

	ctx := lambdacontext.NewContext(context.Background(), &lambdacontext.LambdaContext{AwsRequestID: "req-1"})
	resp, err := l.Handle(ctx, invokeEvent(t, "GET", "/?foo=bar"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, resp.IsBase64Encoded)
	assert.Equal(t, "text/plain", resp.Headers["Content-Type"])

	body, err := base64.StdEncoding.DecodeString(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "/var/task/user/index.php?foo=bar", string(body))
}

func TestHandleRejectsMalformedEvent(t *testing.T) {
	l := newTestLauncher(t, stubStarter{}, func(w http.ResponseWriter, r *http.Request) {
		t.Error("backend should not be called")
	})

	resp, err := l.Handle(context.Background(), json.RawMessage(`{"hello":"world"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, resp.Body, "invalid invocation event")
}

func TestHandleFailsWhenBackendCannotStart(t *testing.T) {
	startErr := &backend.StartError{Op: "spawn", Err: errors.New("exec: \"php\": executable file not found in $PATH")}
	l := newTestLauncher(t, stubStarter{err: startErr}, func(w http.ResponseWriter, r *http.Request) {
		t.Error("backend should not be called")
	})

	_, err := l.Handle(context.Background(), invokeEvent(t, "GET", "/"))
	require.Error(t, err)
	assert.True(t, backend.IsStartError(err))
}

func TestLauncherLifecycle(t *testing.T) {
	l := newTestLauncher(t, stubStarter{}, func(w http.ResponseWriter, r *http.Request) {})

	// no supervisor means no backend to report on
	assert.False(t, l.IsHealthy())
	assert.False(t, l.LastUsed().IsZero())

	require.NoError(t, l.Cleanup())
	_, err := l.GetContainer()
	assert.Error(t, err)
}

func TestGetLauncherIsSingleton(t *testing.T) {
	assert.Same(t, GetLauncher(), GetLauncher())
}

func TestInvocationInfoFallsBackToGeneratedID(t *testing.T) {
	info := invocationInfo(context.Background())
	assert.NotEmpty(t, info.RequestID)

	ctx := lambdacontext.NewContext(context.Background(), &lambdacontext.LambdaContext{AwsRequestID: "abc"})
	assert.Equal(t, "abc", invocationInfo(ctx).RequestID)
}
