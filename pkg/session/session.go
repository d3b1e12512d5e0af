package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/executor"
	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/log"
	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/metrics"
	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/stream"
	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/types"
)

// Orchestrator runs cluster lifecycle operations against a frame emitter
type Orchestrator interface {
	Create(ctx context.Context, spec types.ClusterSpec, emit stream.Emitter) error
	Delete(ctx context.Context, spec types.DeleteSpec, emit stream.Emitter) error
}

// Conn is the subset of *websocket.Conn a session needs
type Conn interface {
	stream.Conn
	ReadJSON(v any) error
}

// Session owns one WebSocket connection for the lifetime of at most one
// cluster operation. The read loop runs on the caller's goroutine; the
// operation runs on its own, writing frames through the dispatcher.
type Session struct {
	id     string
	conn   Conn
	disp   *stream.Dispatcher
	orch   Orchestrator
	logger zerolog.Logger
}

// New creates a session for an upgraded connection
func New(conn Conn, orch Orchestrator) *Session {
	id := uuid.NewString()
	logger := log.WithSessionID(id)
	return &Session{
		id:     id,
		conn:   conn,
		disp:   stream.NewDispatcher(conn, logger),
		orch:   orch,
		logger: logger,
	}
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// Run reads commands until the connection drops or the operation reaches
// its terminal frame. Blocks until the session is fully torn down.
func (s *Session) Run(ctx context.Context) {
	metrics.SessionsActive.Inc()
	defer metrics.SessionsActive.Dec()

	s.logger.Info().Msg("session opened")
	defer s.logger.Info().Msg("session closed")

	opCtx, cancelOp := context.WithCancel(ctx)
	defer cancelOp()

	opStarted := false
	opDone := make(chan struct{})

	for {
		var cmd types.Command
		if err := s.conn.ReadJSON(&cmd); err != nil {
			if opStarted && !s.disp.Terminated() {
				// Client went away mid-operation. Detach the dispatcher
				// before cancelling so no frame can race the teardown; the
				// cancel only reaches stages that do not persist after
				// disconnect.
				s.logger.Info().Msg("client disconnected mid-operation")
				s.disp.Detach()
				cancelOp()
				<-opDone
			}
			s.disp.Close()
			s.conn.Close()
			return
		}

		if opStarted {
			s.disp.Log("An operation is already running on this session")
			continue
		}

		run, err := s.dispatch(cmd)
		if err != nil {
			// Malformed or invalid commands terminate the session with a
			// single error frame
			s.logger.Warn().Err(err).Str("command_type", string(cmd.CommandType)).Msg("rejected command")
			s.disp.Error(err.Error())
			<-s.disp.Done()
			s.conn.Close()
			return
		}

		opStarted = true
		go func() {
			defer close(opDone)
			run(opCtx)
			// The operation emitted its terminal frame; closing the
			// connection unblocks the read loop
			<-s.disp.Done()
			s.conn.Close()
		}()
	}
}

func (s *Session) dispatch(cmd types.Command) (func(context.Context), error) {
	switch cmd.CommandType {
	case types.CommandCreate:
		var spec types.ClusterSpec
		if err := json.Unmarshal(cmd.Payload, &spec); err != nil {
			return nil, fmt.Errorf("invalid create payload: %v", err)
		}
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		s.logger.Info().Str("cluster", spec.Name).Str("region", spec.Region).Msg("create requested")
		return func(ctx context.Context) { _ = s.orch.Create(ctx, spec, s.disp) }, nil

	case types.CommandDelete:
		var spec types.DeleteSpec
		if err := json.Unmarshal(cmd.Payload, &spec); err != nil {
			return nil, fmt.Errorf("invalid delete payload: %v", err)
		}
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		s.logger.Info().Str("cluster", spec.Name).Str("region", spec.Region).Msg("delete requested")
		return func(ctx context.Context) { _ = s.orch.Delete(ctx, spec, s.disp) }, nil

	default:
		return nil, fmt.Errorf("unknown command type %q", cmd.CommandType)
	}
}

// TailRequest identifies pod logs to follow
type TailRequest struct {
	Namespace string
	Pod       string
	Container string
}

// Validate checks the request before kubectl is invoked
func (r *TailRequest) Validate() error {
	if r.Namespace == "" {
		return fmt.Errorf("namespace is required")
	}
	if r.Pod == "" {
		return fmt.Errorf("pod is required")
	}
	return nil
}

// RunTail streams `kubectl logs -f` for one pod over the connection until
// the client disconnects or the subprocess exits. Unlike provisioning, a
// tail never outlives its client; disconnect kills kubectl.
func RunTail(ctx context.Context, conn Conn, runner executor.Runner, req TailRequest) {
	metrics.SessionsActive.Inc()
	defer metrics.SessionsActive.Dec()

	logger := log.WithComponent("logtail").With().
		Str("namespace", req.Namespace).Str("pod", req.Pod).Logger()
	disp := stream.NewDispatcher(conn, logger)

	if err := req.Validate(); err != nil {
		disp.Error(err.Error())
		<-disp.Done()
		conn.Close()
		return
	}

	tailCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Watch the read side purely to notice the client going away
	go func() {
		for {
			var discard json.RawMessage
			if err := conn.ReadJSON(&discard); err != nil {
				disp.Detach()
				cancel()
				return
			}
		}
	}()

	args := []string{"logs", "-f", req.Pod, "-n", req.Namespace}
	if req.Container != "" {
		args = append(args, "-c", req.Container)
	}

	logger.Info().Msg("log tail started")
	res := runner.RunStreaming(tailCtx, types.ExecutionRequest{Command: "kubectl", Args: args}, disp)
	if res.Success || tailCtx.Err() != nil {
		disp.Complete("log stream ended")
	} else {
		disp.Error(fmt.Sprintf("Failed to stream logs for pod '%s': %v", req.Pod, res.Err))
	}
	<-disp.Done()
	conn.Close()
}
