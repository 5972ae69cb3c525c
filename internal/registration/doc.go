// Package registration keeps this node's enode registered with the
// bootnode registry.
//
// A Machine cycles through three states:
//
//	Idle --token--> FetchingOwnAddress --address--> PublishingAddress --done--> Idle
//	                        |                                  |
//	                        +-------------- error -------------+--> Idle
//
// Every Trigger enqueues one token. Tokens are consumed one per cycle, in
// order, and only while Idle, so N triggers produce N full cycles and no
// two cycles ever overlap.
//
// Registration is best effort. Fetch and publish failures are logged and
// the machine returns to Idle; an inconsistent internal state is logged at
// error level and reset. Nothing here ever fails the caller.
//
// Advance never blocks. The fetch and publish run on their own goroutines
// and signal Wake when they finish, so a driver can sleep on Wake between
// Advance calls:
//
//	m := registration.New(ctx, cfg, rpcClient, registry,
//	    registration.WithLogger(logger))
//	defer m.Close()
//
//	m.Trigger()
//	for {
//	    m.Advance()
//	    <-m.Wake()
//	}
package registration
