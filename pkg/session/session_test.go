package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/executor"
	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/stream"
	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/types"
)

// fakeConn scripts the inbound side and records outbound frames. Close
// unblocks pending reads the way a real websocket connection does.
type fakeConn struct {
	inbound chan any

	mu     sync.Mutex
	frames []stream.Frame
	closed bool

	closeOnce sync.Once
	closeCh   chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan any, 8),
		closeCh: make(chan struct{}),
	}
}

func (c *fakeConn) ReadJSON(v any) error {
	select {
	case msg, ok := <-c.inbound:
		if !ok {
			return errors.New("websocket: close 1006 (abnormal closure)")
		}
		b, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, v)
	case <-c.closeCh:
		return errors.New("use of closed network connection")
	}
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, v.(stream.Frame))
	return nil
}

func (c *fakeConn) SetWriteDeadline(t time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closeCh) })
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Frames() []stream.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]stream.Frame(nil), c.frames...)
}

// fakeOrch completes immediately unless block is set, in which case it
// waits for the channel or context cancellation
type fakeOrch struct {
	block   chan struct{}
	started chan struct{}

	mu      sync.Mutex
	creates []types.ClusterSpec
	deletes []types.DeleteSpec
	killed  bool
}

func (o *fakeOrch) Create(ctx context.Context, spec types.ClusterSpec, emit stream.Emitter) error {
	o.mu.Lock()
	o.creates = append(o.creates, spec)
	o.mu.Unlock()
	if o.started != nil {
		close(o.started)
	}
	if o.block != nil {
		select {
		case <-ctx.Done():
			o.mu.Lock()
			o.killed = true
			o.mu.Unlock()
			return ctx.Err()
		case <-o.block:
		}
	}
	emit.Log("working")
	emit.Complete("done")
	return nil
}

func (o *fakeOrch) Delete(ctx context.Context, spec types.DeleteSpec, emit stream.Emitter) error {
	o.mu.Lock()
	o.deletes = append(o.deletes, spec)
	o.mu.Unlock()
	emit.Complete("deleted")
	return nil
}

func createCommand() any {
	return map[string]any{
		"commandType": "create",
		"payload": map[string]any{
			"name":   "demo",
			"region": "us-east-1",
			"nodeGroup": map[string]any{
				"instanceType": "t3.medium",
				"minSize":      1,
				"maxSize":      3,
				"desiredSize":  2,
				"volumeSize":   20,
			},
		},
	}
}

func TestSessionCreateCompletes(t *testing.T) {
	conn := newFakeConn()
	orch := &fakeOrch{}
	conn.inbound <- createCommand()

	New(conn, orch).Run(context.Background())

	require.Len(t, orch.creates, 1)
	assert.Equal(t, "demo", orch.creates[0].Name)

	frames := conn.Frames()
	require.Len(t, frames, 2)
	assert.Equal(t, stream.FrameLog, frames[0].Type)
	assert.Equal(t, stream.FrameComplete, frames[1].Type)
	assert.True(t, conn.closed)
}

func TestSessionDeleteCompletes(t *testing.T) {
	conn := newFakeConn()
	orch := &fakeOrch{}
	conn.inbound <- map[string]any{
		"commandType": "delete",
		"payload":     map[string]any{"name": "demo", "region": "us-east-1"},
	}

	New(conn, orch).Run(context.Background())

	require.Len(t, orch.deletes, 1)
	frames := conn.Frames()
	require.Len(t, frames, 1)
	assert.Equal(t, stream.FrameComplete, frames[0].Type)
}

func TestSessionUnknownCommandTerminatesWithError(t *testing.T) {
	conn := newFakeConn()
	orch := &fakeOrch{}
	conn.inbound <- map[string]any{"commandType": "reboot"}

	New(conn, orch).Run(context.Background())

	frames := conn.Frames()
	require.Len(t, frames, 1)
	assert.Equal(t, stream.FrameError, frames[0].Type)
	assert.Contains(t, frames[0].Message, "unknown command type")
	assert.Empty(t, orch.creates)
}

func TestSessionInvalidSpecRejectedBeforeOrchestration(t *testing.T) {
	conn := newFakeConn()
	orch := &fakeOrch{}
	cmd := createCommand().(map[string]any)
	cmd["payload"].(map[string]any)["name"] = "9bad"
	conn.inbound <- cmd

	New(conn, orch).Run(context.Background())

	frames := conn.Frames()
	require.Len(t, frames, 1)
	assert.Equal(t, stream.FrameError, frames[0].Type)
	assert.Contains(t, frames[0].Message, "invalid cluster name")
	assert.Empty(t, orch.creates)
}

func TestSessionDisconnectDetachesBeforeCancel(t *testing.T) {
	conn := newFakeConn()
	orch := &fakeOrch{block: make(chan struct{}), started: make(chan struct{})}
	conn.inbound <- createCommand()

	done := make(chan struct{})
	go func() {
		New(conn, orch).Run(context.Background())
		close(done)
	}()

	<-orch.started
	close(conn.inbound) // client disconnects mid-operation

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not tear down after disconnect")
	}

	orch.mu.Lock()
	killed := orch.killed
	orch.mu.Unlock()
	assert.True(t, killed, "operation context must be cancelled on disconnect")

	// No terminal frame reaches a vanished client
	for _, f := range conn.Frames() {
		assert.Equal(t, stream.FrameLog, f.Type)
	}
}

func TestSessionRejectsSecondCommandWhileRunning(t *testing.T) {
	conn := newFakeConn()
	orch := &fakeOrch{block: make(chan struct{}), started: make(chan struct{})}

	done := make(chan struct{})
	go func() {
		New(conn, orch).Run(context.Background())
		close(done)
	}()

	conn.inbound <- createCommand()
	<-orch.started
	conn.inbound <- createCommand()

	assert.Eventually(t, func() bool {
		for _, f := range conn.Frames() {
			if f.Data == "An operation is already running on this session" {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	close(orch.block)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not finish")
	}

	require.Len(t, orch.creates, 1)
}

// scriptedRunner emits fixed lines for any streaming request
type scriptedRunner struct {
	lines []string
	res   executor.StreamResult

	mu    sync.Mutex
	calls []types.ExecutionRequest
}

func (r *scriptedRunner) Run(ctx context.Context, req types.ExecutionRequest) (types.ExecutionResult, error) {
	return types.ExecutionResult{}, errors.New("not used")
}

func (r *scriptedRunner) RunStreaming(ctx context.Context, req types.ExecutionRequest, sink executor.Sink) executor.StreamResult {
	r.mu.Lock()
	r.calls = append(r.calls, req)
	r.mu.Unlock()
	for _, l := range r.lines {
		sink.Log(l)
	}
	return r.res
}

func (r *scriptedRunner) RunWithRetry(ctx context.Context, req types.ExecutionRequest, sink executor.Sink, attempts int, delay time.Duration) executor.StreamResult {
	return r.RunStreaming(ctx, req, sink)
}

func TestRunTailStreamsUntilExit(t *testing.T) {
	conn := newFakeConn()
	runner := &scriptedRunner{lines: []string{"line 1", "line 2"}, res: executor.StreamResult{Success: true}}

	RunTail(context.Background(), conn, runner, TailRequest{Namespace: "default", Pod: "web-0", Container: "app"})

	frames := conn.Frames()
	require.Len(t, frames, 3)
	assert.Equal(t, "line 1", frames[0].Data)
	assert.Equal(t, "line 2", frames[1].Data)
	assert.Equal(t, stream.FrameComplete, frames[2].Type)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, "kubectl logs -f web-0 -n default -c app", runner.calls[0].String())
}

func TestRunTailRejectsIncompleteRequest(t *testing.T) {
	conn := newFakeConn()
	runner := &scriptedRunner{}

	RunTail(context.Background(), conn, runner, TailRequest{Namespace: "default"})

	frames := conn.Frames()
	require.Len(t, frames, 1)
	assert.Equal(t, stream.FrameError, frames[0].Type)
	assert.Empty(t, runner.calls)
}
