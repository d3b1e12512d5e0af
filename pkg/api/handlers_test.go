package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/cache"
	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/executor"
	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/log"
	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/portforward"
	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/stream"
	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/types"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true, Output: io.Discard})
	os.Exit(m.Run())
}

type stub struct {
	prefix string
	stdout string
	err    error
}

// fakeRunner resolves buffered runs against prefix stubs and emits fixed
// lines for streaming runs
type fakeRunner struct {
	mu    sync.Mutex
	calls []types.ExecutionRequest
	stubs []stub

	streamLines []string
	streamRes   executor.StreamResult
}

func (f *fakeRunner) stubRun(prefix, stdout string, err error) {
	f.stubs = append(f.stubs, stub{prefix: prefix, stdout: stdout, err: err})
}

func (f *fakeRunner) Run(ctx context.Context, req types.ExecutionRequest) (types.ExecutionResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	for _, s := range f.stubs {
		if strings.HasPrefix(req.String(), s.prefix) {
			return types.ExecutionResult{Stdout: s.stdout}, s.err
		}
	}
	return types.ExecutionResult{ExitCode: -1}, fmt.Errorf("unstubbed command: %s", req.String())
}

func (f *fakeRunner) RunStreaming(ctx context.Context, req types.ExecutionRequest, sink executor.Sink) executor.StreamResult {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	for _, l := range f.streamLines {
		sink.Log(l)
	}
	return f.streamRes
}

func (f *fakeRunner) RunWithRetry(ctx context.Context, req types.ExecutionRequest, sink executor.Sink, attempts int, delay time.Duration) executor.StreamResult {
	return f.RunStreaming(ctx, req, sink)
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeRunner) lastCall() types.ExecutionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

type stubOrch struct{}

func (stubOrch) Create(ctx context.Context, spec types.ClusterSpec, emit stream.Emitter) error {
	emit.Complete("created")
	return nil
}

func (stubOrch) Delete(ctx context.Context, spec types.DeleteSpec, emit stream.Emitter) error {
	emit.Complete("deleted")
	return nil
}

func newTestServer(r *fakeRunner) *Server {
	return NewServer(&App{
		Runner:   r,
		Cache:    cache.New(),
		Orch:     stubOrch{},
		Forwards: portforward.NewManager(),
		CacheTTL: time.Minute,
	}, "127.0.0.1:0")
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	w := doRequest(newTestServer(&fakeRunner{}), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListResourceCachesReads(t *testing.T) {
	r := &fakeRunner{}
	r.stubRun("kubectl get pods -o json -n default", `{"items":[]}`, nil)
	s := newTestServer(r)

	w := doRequest(s, http.MethodGet, "/api/resources/pods", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"items":[]}`, w.Body.String())
	assert.Equal(t, 1, r.callCount())

	// Fresh entry short-circuits kubectl
	w = doRequest(s, http.MethodGet, "/api/resources/pods", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, r.callCount())

	// force=true bypasses the cache
	w = doRequest(s, http.MethodGet, "/api/resources/pods?force=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, r.callCount())
}

func TestListResourceStripsCLINoise(t *testing.T) {
	r := &fakeRunner{}
	r.stubRun("kubectl get pods -o json -n default", "warning: deprecation notice\n{\"items\":[]}", nil)
	s := newTestServer(r)

	w := doRequest(s, http.MethodGet, "/api/resources/pods", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"items":[]}`, w.Body.String())
}

func TestListUnknownResource(t *testing.T) {
	w := doRequest(newTestServer(&fakeRunner{}), http.MethodGet, "/api/resources/crontabs", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "unknown resource")
}

func TestListRejectsBadNamespace(t *testing.T) {
	w := doRequest(newTestServer(&fakeRunner{}), http.MethodGet, "/api/resources/pods?namespace=bad%20ns", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListFailurePropagates(t *testing.T) {
	r := &fakeRunner{}
	r.stubRun("kubectl get nodes", "", errors.New("Unable to connect to the server"))
	s := newTestServer(r)

	w := doRequest(s, http.MethodGet, "/api/resources/nodes", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "Unable to connect")
}

func TestGetResource(t *testing.T) {
	r := &fakeRunner{}
	r.stubRun("kubectl get deployments web -o json -n apps", `{"metadata":{"name":"web"}}`, nil)
	s := newTestServer(r)

	w := doRequest(s, http.MethodGet, "/api/resources/deployments/web?namespace=apps", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"web"`)
}

func TestDeleteResource(t *testing.T) {
	r := &fakeRunner{}
	r.stubRun("kubectl delete pods web-0 -n default", `pod "web-0" deleted`, nil)
	s := newTestServer(r)

	w := doRequest(s, http.MethodDelete, "/api/resources/pods/web-0", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "deleted")
}

func TestApplyManifest(t *testing.T) {
	r := &fakeRunner{}
	r.stubRun("kubectl apply -f -", "deployment.apps/web created", nil)
	s := newTestServer(r)

	manifest := "apiVersion: apps/v1\nkind: Deployment"
	w := doRequest(s, http.MethodPost, "/api/apply", manifest)
	require.Equal(t, http.StatusOK, w.Code)

	// The manifest travels on stdin, not as an argument
	assert.Equal(t, manifest, r.lastCall().Stdin)
}

func TestApplyRejectsEmptyBody(t *testing.T) {
	w := doRequest(newTestServer(&fakeRunner{}), http.MethodPost, "/api/apply", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScaleDeployment(t *testing.T) {
	r := &fakeRunner{}
	r.stubRun("kubectl scale deployment web --replicas=3 -n default", "deployment.apps/web scaled", nil)
	s := newTestServer(r)

	w := doRequest(s, http.MethodPost, "/api/deployments/web/scale", `{"replicas":3}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "scaled to 3")
}

func TestScaleValidation(t *testing.T) {
	s := newTestServer(&fakeRunner{})

	w := doRequest(s, http.MethodPost, "/api/deployments/web/scale", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(s, http.MethodPost, "/api/deployments/web/scale", `{"replicas":-1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAWSAuth(t *testing.T) {
	r := &fakeRunner{}
	r.stubRun("kubectl get configmap aws-auth -n kube-system -o yaml", "apiVersion: v1\nkind: ConfigMap", nil)
	s := newTestServer(r)

	w := doRequest(s, http.MethodGet, "/api/awsauth", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ConfigMap")
}

func TestPortForwardStatusWhenIdle(t *testing.T) {
	s := newTestServer(&fakeRunner{})

	w := doRequest(s, http.MethodGet, "/api/portforward", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Stop with nothing running is fine
	w = doRequest(s, http.MethodDelete, "/api/portforward", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func dialWS(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestWebSocketRejectsUnknownCommand(t *testing.T) {
	srv := httptest.NewServer(newTestServer(&fakeRunner{}).Handler())
	defer srv.Close()

	conn := dialWS(t, srv, "/ws")
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"commandType": "reboot"}))

	var f stream.Frame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, stream.FrameError, f.Type)
	assert.Contains(t, f.Message, "unknown command type")
}

func TestWebSocketKubeLogsStream(t *testing.T) {
	r := &fakeRunner{streamLines: []string{"line 1", "line 2"}, streamRes: executor.StreamResult{Success: true}}
	srv := httptest.NewServer(newTestServer(r).Handler())
	defer srv.Close()

	conn := dialWS(t, srv, "/ws?type=kube-logs&namespace=default&pod=web-0")
	defer conn.Close()

	var frames []stream.Frame
	for i := 0; i < 3; i++ {
		var f stream.Frame
		require.NoError(t, conn.ReadJSON(&f))
		frames = append(frames, f)
	}
	assert.Equal(t, "line 1", frames[0].Data)
	assert.Equal(t, "line 2", frames[1].Data)
	assert.Equal(t, stream.FrameComplete, frames[2].Type)
}

func TestWebSocketUnknownStreamType(t *testing.T) {
	srv := httptest.NewServer(newTestServer(&fakeRunner{}).Handler())
	defer srv.Close()

	conn := dialWS(t, srv, "/ws?type=bogus")
	defer conn.Close()

	var f stream.Frame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, stream.FrameError, f.Type)
}
