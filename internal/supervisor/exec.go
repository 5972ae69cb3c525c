package supervisor

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// DefaultGracePeriod is how long Terminate waits after SIGTERM before it
// sends SIGKILL.
const DefaultGracePeriod = 10 * time.Second

// ExecProcess is a Process backed by os/exec. One goroutine waits on the
// command and closes Exited when it has been reaped.
type ExecProcess struct {
	cmd     *exec.Cmd
	done    chan struct{}
	waitErr error // set before done is closed
	grace   time.Duration
}

// StartCommand starts cmd and returns its handle. A grace of zero means
// DefaultGracePeriod.
func StartCommand(cmd *exec.Cmd, grace time.Duration) (*ExecProcess, error) {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &ExecProcess{
		cmd:   cmd,
		done:  make(chan struct{}),
		grace: grace,
	}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// PID implements Process.
func (p *ExecProcess) PID() int {
	return p.cmd.Process.Pid
}

// Exited implements Process.
func (p *ExecProcess) Exited() <-chan struct{} {
	return p.done
}

// Success implements Process. It reports false while the process runs.
func (p *ExecProcess) Success() bool {
	select {
	case <-p.done:
		return p.waitErr == nil
	default:
		return false
	}
}

// ExitCode returns the exit code, or -1 while running or when the process
// was killed by a signal.
func (p *ExecProcess) ExitCode() int {
	select {
	case <-p.done:
		return p.cmd.ProcessState.ExitCode()
	default:
		return -1
	}
}

// Terminate sends SIGTERM, waits up to the grace period, then sends
// SIGKILL and waits for the process to be reaped or ctx to end.
func (p *ExecProcess) Terminate(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	default:
	}

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}

	timer := time.NewTimer(p.grace)
	defer timer.Stop()

	select {
	case <-p.done:
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		// Killed but not yet reaped.
		select {
		case <-p.done:
			return nil
		default:
			return ctx.Err()
		}
	}
}
