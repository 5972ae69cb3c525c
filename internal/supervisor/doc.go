// Package supervisor owns the blockchain client process and applies a
// restart policy when it exits.
//
// A Supervisor tracks at most one Process at a time. It never blocks: the
// driving loop calls Advance, which reports whether the tracked process is
// still running or has produced an outcome. Under Always and OnFailure an
// exited process is replaced before the outcome is reported, so the client
// keeps running even if the driver stops.
//
// Replacing a live process always terminates and awaits the previous one
// first, so no handle is ever dropped while its process still runs.
//
// Example:
//
//	sup, err := supervisor.New(launcher, supervisor.Always,
//	    supervisor.WithLogger(logger))
//	if err != nil {
//	    return err // fault.Launch
//	}
//	defer sup.Close(context.Background())
//
//	<-sup.Exited()
//	outcome, err := sup.Advance()
package supervisor
