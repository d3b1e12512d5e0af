package executor

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/log"
	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/metrics"
	"github.com/shahidsi7/Kubernetes-Dashboard/pkg/types"
)

// StderrMarker prefixes stderr lines forwarded to a streaming sink so the
// client can render them distinctly from stdout.
const StderrMarker = "[stderr] "

// maxLineSize bounds a single forwarded output line (eksctl can emit long
// CloudFormation event lines)
const maxLineSize = 1024 * 1024

// Sink receives subprocess output line by line as it arrives
type Sink interface {
	Log(line string)
}

// StreamResult is the outcome of a streaming invocation. A nonzero exit is
// not a Go error at this layer; callers branch on Success.
type StreamResult struct {
	Success  bool
	ExitCode int
	Err      error
}

// Runner abstracts CLI execution so orchestration code can be exercised in
// tests without spawning real processes.
type Runner interface {
	// Run executes the request once, buffering all output. On exit 0 the
	// result carries trimmed stdout and the error is nil. On failure the
	// error message is stderr, falling back to stdout, falling back to a
	// generic exit-code message.
	Run(ctx context.Context, req types.ExecutionRequest) (types.ExecutionResult, error)

	// RunStreaming executes the request once, forwarding stdout lines to
	// the sink as they arrive and stderr lines with StderrMarker prefixed,
	// interleaved in arrival order.
	RunStreaming(ctx context.Context, req types.ExecutionRequest, sink Sink) StreamResult

	// RunWithRetry re-invokes RunStreaming up to attempts times. After each
	// failure except the last it emits a retry notice to the sink and
	// sleeps delay.
	RunWithRetry(ctx context.Context, req types.ExecutionRequest, sink Sink, attempts int, delay time.Duration) StreamResult
}

// CLIRunner executes requests against real executables on PATH
type CLIRunner struct {
	logger zerolog.Logger

	// waitDelay bounds how long Wait blocks on pipe drain after the child
	// is killed, so a cancelled invocation cannot leave a zombie
	waitDelay time.Duration
}

// NewCLIRunner creates a runner backed by os/exec
func NewCLIRunner() *CLIRunner {
	return &CLIRunner{
		logger:    log.WithComponent("executor"),
		waitDelay: 5 * time.Second,
	}
}

// Run implements Runner
func (r *CLIRunner) Run(ctx context.Context, req types.ExecutionRequest) (types.ExecutionResult, error) {
	start := time.Now()
	r.logger.Debug().Str("cmd", req.String()).Msg("running command")

	cmd := exec.CommandContext(ctx, req.Command, req.Args...)
	cmd.WaitDelay = r.waitDelay
	if req.Stdin != "" {
		cmd.Stdin = strings.NewReader(req.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	r.observe(req.Command, start)

	res := types.ExecutionResult{
		ExitCode: exitCode(err),
		Stdout:   strings.TrimSpace(stdout.String()),
		Stderr:   strings.TrimSpace(stderr.String()),
	}
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		// Spawn failure (binary missing, context cancelled before start)
		return res, err
	}
	return res, errors.New(failureMessage(res))
}

// RunStreaming implements Runner
func (r *CLIRunner) RunStreaming(ctx context.Context, req types.ExecutionRequest, sink Sink) StreamResult {
	start := time.Now()
	r.logger.Debug().Str("cmd", req.String()).Msg("running streaming command")

	cmd := exec.CommandContext(ctx, req.Command, req.Args...)
	cmd.WaitDelay = r.waitDelay
	if req.Stdin != "" {
		cmd.Stdin = strings.NewReader(req.Stdin)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return StreamResult{ExitCode: -1, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return StreamResult{ExitCode: -1, Err: err}
	}

	if err := cmd.Start(); err != nil {
		return StreamResult{ExitCode: -1, Err: err}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go r.forward(stdout, "", sink, &wg)
	go r.forward(stderr, StderrMarker, sink, &wg)

	// Pipes must be fully drained before Wait closes them
	wg.Wait()
	err = cmd.Wait()
	r.observe(req.Command, start)

	if err == nil {
		return StreamResult{Success: true}
	}
	code := exitCode(err)
	return StreamResult{
		ExitCode: code,
		Err:      fmt.Errorf("%s exited with code %d", req.Command, code),
	}
}

// RunWithRetry implements Runner
func (r *CLIRunner) RunWithRetry(ctx context.Context, req types.ExecutionRequest, sink Sink, attempts int, delay time.Duration) StreamResult {
	if attempts < 1 {
		attempts = 1
	}

	var res StreamResult
	for attempt := 1; attempt <= attempts; attempt++ {
		res = r.RunStreaming(ctx, req, sink)
		if res.Success {
			return res
		}
		if attempt < attempts {
			sink.Log(fmt.Sprintf("Attempt %d/%d failed, retrying in %s...", attempt, attempts, delay))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return res
			}
		}
	}
	return res
}

func (r *CLIRunner) forward(reader io.Reader, prefix string, sink Sink, wg *sync.WaitGroup) {
	defer wg.Done()

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		sink.Log(prefix + scanner.Text())
	}
}

func (r *CLIRunner) observe(command string, start time.Time) {
	metrics.SubprocessTotal.WithLabelValues(command).Inc()
	metrics.SubprocessDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())
}

// failureMessage picks the most informative description of a failed run:
// stderr, then stdout, then a generic exit-code message
func failureMessage(res types.ExecutionResult) string {
	if res.Stderr != "" {
		return res.Stderr
	}
	if res.Stdout != "" {
		return res.Stdout
	}
	return fmt.Sprintf("command exited with code %d", res.ExitCode)
}

// exitCode extracts the child's exit code from a Wait error, or -1 when the
// process never ran or was killed by a signal
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// LookupTools reports, for each named executable, whether it can be found
// on PATH. A nil map value means the tool is present.
func LookupTools(names ...string) map[string]error {
	found := make(map[string]error, len(names))
	for _, name := range names {
		_, err := exec.LookPath(name)
		found[name] = err
	}
	return found
}
