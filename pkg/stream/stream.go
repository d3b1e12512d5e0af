package stream

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/metrics"
)

// FrameType tags an outbound WebSocket frame
type FrameType string

const (
	FrameLog      FrameType = "log"
	FrameComplete FrameType = "complete"
	FrameError    FrameType = "error"
)

// Frame is the outbound WebSocket message. For a given session, zero or
// more log frames are followed by exactly one terminal frame (complete or
// error); nothing is emitted after the terminal frame.
type Frame struct {
	Type    FrameType `json:"type"`
	Data    string    `json:"data,omitempty"`
	Message string    `json:"message,omitempty"`
}

// Emitter is the write side handed to orchestrators
type Emitter interface {
	Log(line string)
	Complete(message string)
	Error(message string)
}

// Conn is the subset of *websocket.Conn the dispatcher needs
type Conn interface {
	WriteJSON(v any) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// writeTimeout bounds a single frame write. A half-open connection (network
// drop without FIN) would otherwise park the writer goroutine inside
// WriteJSON forever, back-pressuring the emitting subprocess once the frame
// buffer fills.
const writeTimeout = 10 * time.Second

// Dispatcher serializes frame delivery for one session through a single
// writer goroutine, which guarantees emission-order delivery and enforces
// the terminal-frame invariant. After Detach, or after the connection
// rejects a write, frames are drained silently so emitting goroutines
// never block on a vanished client.
type Dispatcher struct {
	conn   Conn
	logger zerolog.Logger
	frames chan Frame
	done   chan struct{}

	mu         sync.Mutex
	terminated bool

	detachMu sync.Mutex
	detached bool

	// writeTimeout is shortened in tests
	writeTimeout time.Duration
}

// NewDispatcher creates a dispatcher and starts its writer goroutine
func NewDispatcher(conn Conn, logger zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		conn:         conn,
		logger:       logger,
		frames:       make(chan Frame, 256),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
	}
	go d.run()
	return d
}

// Log emits a log frame. Dropped after the terminal frame.
func (d *Dispatcher) Log(line string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.terminated {
		return
	}
	d.frames <- Frame{Type: FrameLog, Data: line}
}

// Complete emits the terminal success frame. First terminal frame wins;
// everything after it is dropped.
func (d *Dispatcher) Complete(message string) {
	d.terminal(Frame{Type: FrameComplete, Message: message})
}

// Error emits the terminal failure frame
func (d *Dispatcher) Error(message string) {
	d.terminal(Frame{Type: FrameError, Message: message})
}

// Detach stops frame delivery without touching the connection. Pending and
// future frames are drained silently; the underlying subprocess keeps
// running. Used when the client disconnects mid-operation.
func (d *Dispatcher) Detach() {
	d.detachMu.Lock()
	d.detached = true
	d.detachMu.Unlock()
}

// Close ends the writer goroutine if no terminal frame will ever arrive
// (session torn down early). Safe to call after a terminal frame.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.terminated {
		return
	}
	d.terminated = true
	close(d.frames)
}

// Done is closed once every accepted frame has been delivered or dropped
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// Terminated reports whether a terminal frame has been accepted
func (d *Dispatcher) Terminated() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.terminated
}

func (d *Dispatcher) terminal(f Frame) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.terminated {
		return
	}
	d.terminated = true
	d.frames <- f
	close(d.frames)
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for f := range d.frames {
		if d.isDetached() {
			continue
		}
		if err := d.conn.SetWriteDeadline(time.Now().Add(d.writeTimeout)); err != nil {
			d.logger.Debug().Err(err).Msg("dropping frames: client write failed")
			d.Detach()
			continue
		}
		if err := d.conn.WriteJSON(f); err != nil {
			d.logger.Debug().Err(err).Msg("dropping frames: client write failed")
			d.Detach()
			continue
		}
		metrics.FramesSent.WithLabelValues(string(f.Type)).Inc()
	}
}

func (d *Dispatcher) isDetached() bool {
	d.detachMu.Lock()
	defer d.detachMu.Unlock()
	return d.detached
}
