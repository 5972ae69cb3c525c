// Package bootnode talks to the bootnode registry, the HTTP service that
// tracks which enodes belong to which network.
//
// # Protocol
//
// The registry exposes two calls:
//
//	GET  /staticenodes?network=<name>   -> ["enode://id@ip:port", ...]
//	POST /                              <- {"enode": id, "port": 30303, "ip": "10.0.0.1",
//	                                        "publicIp": "203.0.113.7", "network": name,
//	                                        "miner": true}
//
// Static enode lists are read leniently: a body that is not a JSON array is
// an empty list, and entries that do not parse as enode URLs are dropped.
// A publish succeeds on any 2xx status; its body is ignored.
//
// # Startup discovery
//
// Before the client process is launched, Discover blocks until the
// registry returns at least one static enode or the retry ceiling is
// reached. Running out of retries is not an error: the node starts with
// whatever it has and relies on later registration to join the network.
//
// Example:
//
//	client, err := bootnode.NewClient(bootnode.BaseURL("bootnode", 3000), "kovan")
//	if err != nil {
//	    return err
//	}
//	peers := bootnode.Discover(ctx, client, bootnode.WithLogger(logger))
package bootnode
