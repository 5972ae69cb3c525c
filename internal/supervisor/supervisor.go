package supervisor

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/dreamware/nodekeeper/internal/fault"
	"github.com/dreamware/nodekeeper/internal/metrics"
)

// Process is a handle to one running (or exited) client process.
type Process interface {
	// PID is the operating system process id.
	PID() int
	// Exited is closed once the process has exited and been reaped.
	Exited() <-chan struct{}
	// Success reports a clean exit. Only meaningful after Exited is closed.
	Success() bool
	// Terminate stops the process and waits for it to exit. It returns nil
	// for a process that has already exited.
	Terminate(ctx context.Context) error
}

// Launcher starts a fresh client process.
type Launcher interface {
	Launch() (Process, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func() (Process, error)

// Launch calls f.
func (f LauncherFunc) Launch() (Process, error) { return f() }

// Outcome is the result of one Advance call. The zero value means the
// tracked process is still running.
type Outcome struct {
	Produced bool // the tracked process exited (or none is tracked)
	Success  bool // the finished run exited cleanly
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records launches and exits.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Supervisor) {
		s.metrics = m
	}
}

// Supervisor tracks one client process and relaunches it per Policy.
// Thread-safe: Restart may be called while another goroutine drives
// Advance.
type Supervisor struct {
	launcher Launcher         // Starts replacement processes
	current  Process          // Tracked handle, nil when nothing is supervised
	logger   *zap.Logger      // Named "supervisor" by the caller
	metrics  *metrics.Metrics // Optional, nil records nothing
	mu       sync.Mutex       // Protects current and reported
	policy   Policy           // Fixed at construction
	reported bool             // Exit of current already logged and counted
}

// New creates a Supervisor and launches the first process.
//
// Parameters:
//   - launcher: Starts the client process; called now and on every relaunch
//   - policy: Restart policy applied when the process exits
//
// Returns:
//   - *Supervisor: Supervisor tracking the freshly launched process
//   - error: fault.Launch if the first launch failed
func New(launcher Launcher, policy Policy, opts ...Option) (*Supervisor, error) {
	s := &Supervisor{
		launcher: launcher,
		policy:   policy,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.Restart(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// Policy returns the restart policy.
func (s *Supervisor) Policy() Policy {
	return s.policy
}

// Current returns the tracked process, or nil.
func (s *Supervisor) Current() Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Exited returns the exit channel of the tracked process, or nil when none
// is tracked. A nil channel never fires in a select, which is what a driver
// wants: with nothing tracked, Advance produces immediately anyway.
func (s *Supervisor) Exited() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	return s.current.Exited()
}

// Advance checks the tracked process without blocking.
//
// Returns:
//   - Outcome{}: the process is still running
//   - Outcome{Produced: true, ...}: the process exited; under Always and
//     OnFailure a replacement is already running when this returns. With
//     no tracked process the outcome is a successful production.
//   - error: fault.Launch if the replacement could not be started
func (s *Supervisor) Advance() (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return Outcome{Produced: true, Success: true}, nil
	}

	select {
	case <-s.current.Exited():
	default:
		return Outcome{}, nil
	}

	success := s.current.Success()
	if !s.reported {
		s.reported = true
		s.metrics.Exited(success)
		s.logger.Info("process exited",
			zap.Int("pid", s.current.PID()),
			zap.Bool("success", success),
			zap.Stringer("policy", s.policy))
	}

	if !s.policy.Relaunches() {
		return Outcome{Produced: true, Success: success}, nil
	}

	// The old process has exited, so there is nothing to terminate.
	if err := s.launch(); err != nil {
		return Outcome{}, err
	}
	return Outcome{Produced: true, Success: success}, nil
}

// Restart replaces the tracked process regardless of policy. A running
// process is terminated and awaited before the new one is launched.
// Termination and launch failures are combined; a launch failure is
// always reported as fault.Launch.
func (s *Supervisor) Restart(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.current != nil {
		err = s.terminate(ctx)
		s.current = nil
	}
	return multierr.Append(err, s.launch())
}

// Close terminates and awaits the tracked process. Afterwards nothing is
// tracked.
func (s *Supervisor) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return nil
	}
	err := s.terminate(ctx)
	s.current = nil
	return err
}

func (s *Supervisor) terminate(ctx context.Context) error {
	pid := s.current.PID()
	if err := s.current.Terminate(ctx); err != nil {
		s.logger.Warn("terminate process", zap.Int("pid", pid), zap.Error(err))
		return fmt.Errorf("terminate pid %d: %w", pid, err)
	}
	s.logger.Debug("process terminated", zap.Int("pid", pid))
	return nil
}

// launch starts a process and tracks it. Callers hold mu and have already
// disposed of the previous handle.
func (s *Supervisor) launch() error {
	p, err := s.launcher.Launch()
	if err != nil {
		s.logger.Error("launch process", zap.Error(err))
		return fault.NewLaunch("launch", err)
	}

	s.current = p
	s.reported = false
	s.metrics.Launched()
	s.logger.Info("process launched", zap.Int("pid", p.PID()))
	return nil
}
