package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/dreamware/nodekeeper/internal/registration"
	"github.com/dreamware/nodekeeper/internal/supervisor"
)

// Status is the result of one Advance call.
type Status int

const (
	// Pending means nothing is ready; call Advance again after a wake-up.
	Pending Status = iota
	// Done means the supervised process produced an outcome and the
	// coordinator has stopped.
	Done
)

func (s Status) String() string {
	if s == Done {
		return "done"
	}
	return "pending"
}

// ErrInterval is returned by New for a non-positive registration interval.
var ErrInterval = errors.New("coordinator: registration interval must be positive")

// Supervisor is the process side of the loop, normally *supervisor.Supervisor.
type Supervisor interface {
	Advance() (supervisor.Outcome, error)
	Exited() <-chan struct{}
}

// Registrar is the registration side of the loop, normally
// *registration.Machine.
type Registrar interface {
	Trigger() registration.Token
	Advance()
	Wake() <-chan struct{}
	Close()
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock sets the clock the registration ticker runs on.
func WithClock(c clock.Clock) Option {
	return func(co *Coordinator) {
		co.clock = c
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(co *Coordinator) {
		if l != nil {
			co.logger = l
		}
	}
}

// Coordinator drives the supervisor and the registration machine from one
// loop and re-registers on a fixed interval.
// Not safe for concurrent use: one goroutine calls Advance or Run.
type Coordinator struct {
	sup      Supervisor         // Checked first on every pass
	reg      Registrar          // Advanced only while the process runs
	clock    clock.Clock        // Real clock unless WithClock
	ticker   *clock.Ticker      // Fires every interval
	logger   *zap.Logger        // Named "coordinator" by the caller
	outcome  supervisor.Outcome // Set once Done
	interval time.Duration      // Registration interval
	banked   int                // Ticks received by Run but not yet handled
	done     bool               // Latched after the first production
}

// New creates a coordinator and immediately triggers one registration so
// the node registers before the first tick.
//
// Parameters:
//   - sup: Process supervisor, already tracking a launched process
//   - reg: Registration machine
//   - interval: Time between registration triggers (e.g. 10s)
//
// Returns:
//   - *Coordinator: Ready to Run
//   - error: ErrInterval if interval is not positive
//
// Example:
//
//	co, err := coordinator.New(sup, machine, 10*time.Second,
//	    coordinator.WithLogger(logger.Named(logging.Coordinator)))
//	if err != nil {
//	    return err
//	}
//	err = co.Run(ctx)
func New(sup Supervisor, reg Registrar, interval time.Duration, opts ...Option) (*Coordinator, error) {
	if interval <= 0 {
		return nil, ErrInterval
	}

	c := &Coordinator{
		sup:      sup,
		reg:      reg,
		clock:    clock.New(),
		logger:   zap.NewNop(),
		interval: interval,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.ticker = c.clock.Ticker(interval)
	c.reg.Trigger()
	return c, nil
}

// Advance makes all progress possible without blocking.
//
// Implementation:
//  1. Advance the supervisor; an outcome ends the coordinator (Done) and
//     abandons any registration in flight, a launch failure is returned
//  2. Advance the registration machine
//  3. If a tick is due, trigger a registration and start over; otherwise
//     return Pending
//
// Once Done, every later call returns Done.
func (c *Coordinator) Advance() (Status, error) {
	if c.done {
		return Done, nil
	}

	for {
		out, err := c.sup.Advance()
		if err != nil {
			c.logger.Error("supervisor failed", zap.Error(err))
			return Pending, err
		}
		if out.Produced {
			c.done = true
			c.outcome = out
			c.reg.Close()
			c.logger.Info("supervised process finished, coordinator stopping",
				zap.Bool("success", out.Success))
			return Done, nil
		}

		c.reg.Advance()

		if !c.tickDue() {
			return Pending, nil
		}
		c.logger.Debug("registration interval elapsed")
		c.reg.Trigger()
	}
}

// tickDue consumes one banked or buffered tick.
func (c *Coordinator) tickDue() bool {
	if c.banked > 0 {
		c.banked--
		return true
	}
	select {
	case <-c.ticker.C:
		return true
	default:
		return false
	}
}

// Run drives Advance until Done, a fatal error or ctx ends. Between calls
// it sleeps until the process exits, registration can progress or the
// ticker fires. The ticker is stopped and registration closed on return.
//
// Returns:
//   - nil: the supervised process produced an outcome (see Outcome)
//   - error: a launch failure, or ctx.Err()
func (c *Coordinator) Run(ctx context.Context) error {
	defer c.Stop()

	c.logger.Info("coordinator started", zap.Duration("interval", c.interval))
	for {
		status, err := c.Advance()
		if err != nil {
			return err
		}
		if status == Done {
			return nil
		}

		select {
		case <-ctx.Done():
			c.logger.Info("coordinator stopping", zap.Error(ctx.Err()))
			return ctx.Err()
		case <-c.sup.Exited():
		case <-c.reg.Wake():
		case <-c.ticker.C:
			c.banked++
		}
	}
}

// Stop releases the ticker and abandons any registration in flight.
func (c *Coordinator) Stop() {
	c.ticker.Stop()
	c.reg.Close()
}

// Outcome returns the supervisor outcome that ended the coordinator. It is
// the zero Outcome until Advance has returned Done.
func (c *Coordinator) Outcome() supervisor.Outcome {
	return c.outcome
}
