// Package ffmpeg provides FFmpeg/FFprobe subprocess supervision and media
// probing. All external processes launched by the transcoding pipeline go
// through the Supervisor, which enforces timeouts, bounds captured output,
// and tracks running tasks so they can be killed by key.
package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/jmylchreest/vidarr/internal/observability"
)

const (
	// maxStderrLines bounds the in-memory stderr sample per task.
	maxStderrLines = 100
	// stderrLogEvery controls debug-log sampling of stderr lines.
	stderrLogEvery = 50
)

// Task describes one supervised subprocess run. Key identifies the run in
// the supervisor's registry; concurrent runs must use distinct keys.
type Task struct {
	Key     string
	Binary  string
	Args    []string
	Timeout time.Duration
}

// Result holds the outcome of a completed subprocess run.
type Result struct {
	ExitCode int
	TimedOut bool
	Duration time.Duration
	// Stdout is the full standard output. Probe output is tiny and encode
	// runs write to files, so unbounded capture is safe here.
	Stdout string
	// Stderr is a bounded sample of the most recent standard error lines.
	Stderr []string
}

// Supervisor launches and tracks subprocesses. It is safe for concurrent
// use; each running task is registered under its key until it completes.
type Supervisor struct {
	logger *slog.Logger

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// NewSupervisor creates a new process supervisor.
func NewSupervisor(logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		logger:  observability.WithComponent(logger, "supervisor"),
		running: make(map[string]context.CancelFunc),
	}
}

// Run executes the task and waits for completion. The process is
// force-killed when the task timeout elapses or ctx is cancelled. A non-nil
// Result is returned alongside the error whenever the process actually ran.
func (s *Supervisor) Run(ctx context.Context, task Task) (*Result, error) {
	if task.Key == "" {
		return nil, fmt.Errorf("task key is required")
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if task.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, task.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	if err := s.register(task.Key, cancel); err != nil {
		return nil, err
	}
	defer s.unregister(task.Key)

	cmd := exec.CommandContext(runCtx, task.Binary, task.Args...)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, &ProcessError{Kind: ErrorKindLaunch, TaskKey: task.Key, Binary: task.Binary, Err: err}
	}

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, &ProcessError{Kind: ErrorKindLaunch, TaskKey: task.Key, Binary: task.Binary, Err: err}
	}

	s.logger.Debug("subprocess started",
		slog.String("task", task.Key),
		slog.String("binary", task.Binary),
		slog.Int("pid", cmd.Process.Pid),
	)

	stderrDone := make(chan struct{})
	var stderrLines []string
	var stderrMu sync.Mutex
	go func() {
		defer close(stderrDone)
		scanner := bufio.NewScanner(stderrPipe)
		n := 0
		for scanner.Scan() {
			line := scanner.Text()
			n++
			stderrMu.Lock()
			if len(stderrLines) >= maxStderrLines {
				stderrLines = stderrLines[1:]
			}
			stderrLines = append(stderrLines, line)
			stderrMu.Unlock()
			if n%stderrLogEvery == 1 {
				s.logger.Debug("subprocess output",
					slog.String("task", task.Key),
					slog.String("line", line),
				)
			}
		}
	}()

	// Wait closes the pipe, so all stderr reads must complete first or the
	// tail of the sample can be lost.
	<-stderrDone
	waitErr := cmd.Wait()

	stderrMu.Lock()
	sample := make([]string, len(stderrLines))
	copy(sample, stderrLines)
	stderrMu.Unlock()

	result := &Result{
		ExitCode: cmd.ProcessState.ExitCode(),
		Duration: time.Since(started),
		Stdout:   stdout.String(),
		Stderr:   sample,
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		result.TimedOut = true
		s.logger.Warn("subprocess killed after timeout",
			slog.String("task", task.Key),
			slog.Duration("timeout", task.Timeout),
		)
		return result, &ProcessError{Kind: ErrorKindTimeout, TaskKey: task.Key, Binary: task.Binary, Stderr: sample, Err: runCtx.Err()}
	}

	if waitErr != nil {
		return result, &ProcessError{
			Kind:     ErrorKindExit,
			TaskKey:  task.Key,
			Binary:   task.Binary,
			ExitCode: result.ExitCode,
			Stderr:   sample,
			Err:      waitErr,
		}
	}

	s.logger.Debug("subprocess completed",
		slog.String("task", task.Key),
		slog.Duration("duration", result.Duration),
	)
	return result, nil
}

// Kill terminates the running task with the given key, if any.
func (s *Supervisor) Kill(key string) bool {
	s.mu.Lock()
	cancel, ok := s.running[key]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// RunningTasks returns the keys of all currently running tasks.
func (s *Supervisor) RunningTasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.running))
	for key := range s.running {
		keys = append(keys, key)
	}
	return keys
}

func (s *Supervisor) register(key string, cancel context.CancelFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.running[key]; exists {
		return fmt.Errorf("task %q is already running", key)
	}
	s.running[key] = cancel
	return nil
}

func (s *Supervisor) unregister(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, key)
}
