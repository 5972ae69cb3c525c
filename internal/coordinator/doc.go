// Package coordinator runs nodekeeper's steady-state loop: it keeps the
// blockchain client supervised and its enode registered.
//
// # Overview
//
// One Coordinator owns a process supervisor, a registration machine and a
// ticker. Each Advance checks them in a fixed order:
//
//	┌──────────────┐   outcome    ┌──────┐
//	│  Supervisor  ├─────────────►│ Done │
//	└──────┬───────┘              └──────┘
//	       │ running
//	┌──────▼───────┐
//	│ Registration │  fetch enode, publish to registry
//	└──────┬───────┘
//	       │
//	┌──────▼───────┐   tick: Trigger() and start over
//	│    Ticker    ├──────────────────────────────────┐
//	└──────┬───────┘                                  │
//	       │ not due                                  │
//	    Pending ◄─────────────────────────────────────┘
//
// The supervisor always goes first, so a process exit preempts any
// registration work in the same pass. The coordinator stops at the first
// outcome the supervisor produces. Under the Always and OnFailure restart
// policies the supervisor has already relaunched the client by then, so the
// client outlives the loop; the binary decides what to do next.
//
// A registration is triggered once at construction and then once per
// interval. Triggers that arrive while a registration is in flight queue
// up inside the registration machine and are served in order.
//
// # Driving
//
// Run is the blocking driver. Between Advance calls it sleeps on the
// supervisor's exit channel, the registration machine's wake channel and
// the ticker. A tick received while sleeping is banked so Advance still
// sees it.
//
//	co, err := coordinator.New(sup, machine, interval,
//	    coordinator.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	if err := co.Run(ctx); err != nil {
//	    return err // launch failure or ctx.Err()
//	}
//	log.Printf("client exited, success=%v", co.Outcome().Success)
//
// # Testing
//
// WithClock accepts a benbjohnson/clock Mock, so ticks can be fired with
// mock.Add instead of waiting for the interval.
package coordinator
