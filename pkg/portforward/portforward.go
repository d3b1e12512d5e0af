package portforward

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/log"
)

// readyMarker is what kubectl prints once the local listener is bound
const readyMarker = "Forwarding from"

// defaultReadyTimeout bounds how long Start waits for the marker
const defaultReadyTimeout = 15 * time.Second

// Forward describes an active port-forward
type Forward struct {
	Namespace  string `json:"namespace"`
	Service    string `json:"service"`
	LocalPort  int    `json:"localPort"`
	RemotePort int    `json:"remotePort"`
}

// Manager owns at most one kubectl port-forward child at a time. Start is
// idempotent while a forward is live; Stop is a no-op when none is.
type Manager struct {
	mu      sync.Mutex
	current *handle

	logger zerolog.Logger

	// command and readyTimeout are overridable for tests
	command      string
	readyTimeout time.Duration
}

type handle struct {
	fwd    Forward
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates an empty manager
func NewManager() *Manager {
	return &Manager{
		logger:       log.WithComponent("portforward"),
		command:      "kubectl",
		readyTimeout: defaultReadyTimeout,
	}
}

// Start launches kubectl port-forward for the given service and waits until
// the local listener is bound. If a forward is already live, its descriptor
// is returned unchanged regardless of the requested target.
func (m *Manager) Start(ctx context.Context, namespace, service string, localPort, remotePort int) (Forward, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		m.logger.Debug().Str("service", m.current.fwd.Service).Msg("port-forward already active")
		return m.current.fwd, nil
	}

	if namespace == "" || service == "" {
		return Forward{}, fmt.Errorf("namespace and service are required")
	}
	if localPort < 1 || localPort > 65535 || remotePort < 1 || remotePort > 65535 {
		return Forward{}, fmt.Errorf("ports must be within 1-65535")
	}

	fwd := Forward{Namespace: namespace, Service: service, LocalPort: localPort, RemotePort: remotePort}

	// The child is tied to the manager, not the request: the forward must
	// outlive the HTTP request that started it
	childCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cmd := exec.CommandContext(childCtx, m.command,
		"port-forward", "-n", namespace, "svc/"+service,
		fmt.Sprintf("%d:%d", localPort, remotePort))
	cmd.WaitDelay = 5 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return Forward{}, err
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		cancel()
		return Forward{}, fmt.Errorf("could not start port-forward: %v", err)
	}

	ready := make(chan error, 1)
	done := make(chan struct{})

	go func() {
		scanner := bufio.NewScanner(stdout)
		bound := false
		for scanner.Scan() {
			line := scanner.Text()
			m.logger.Debug().Str("line", line).Msg("port-forward output")
			if !bound && strings.Contains(line, readyMarker) {
				bound = true
				ready <- nil
			}
		}
		if !bound {
			ready <- fmt.Errorf("port-forward exited before binding %d", localPort)
		}
	}()

	// Reap the child whenever it exits so a crashed forward frees the slot
	go func() {
		err := cmd.Wait()
		m.logger.Info().Err(err).Str("service", service).Msg("port-forward exited")
		close(done)
		m.clear(done)
	}()

	select {
	case err := <-ready:
		if err != nil {
			cancel()
			<-done
			return Forward{}, err
		}
	case <-done:
		cancel()
		return Forward{}, fmt.Errorf("port-forward exited before binding %d", localPort)
	case <-time.After(m.readyTimeout):
		cancel()
		<-done
		return Forward{}, fmt.Errorf("port-forward did not become ready within %s", m.readyTimeout)
	case <-ctx.Done():
		cancel()
		<-done
		return Forward{}, ctx.Err()
	}

	m.current = &handle{fwd: fwd, cancel: cancel, done: done}
	m.logger.Info().Str("service", service).Int("local_port", localPort).Msg("port-forward ready")
	return fwd, nil
}

// Stop kills the active forward, if any, and waits for the child to be
// reaped. Safe to call when nothing is running.
func (m *Manager) Stop() {
	m.mu.Lock()
	h := m.current
	m.current = nil
	m.mu.Unlock()

	if h == nil {
		return
	}
	h.cancel()
	<-h.done
}

// Active returns the live forward descriptor, if any
func (m *Manager) Active() (Forward, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Forward{}, false
	}
	return m.current.fwd, true
}

// clear frees the slot when the child identified by done has exited.
// Guarding on the channel identity prevents an old reaper from clearing a
// newer forward.
func (m *Manager) clear(done chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil && m.current.done == done {
		m.current = nil
	}
}
