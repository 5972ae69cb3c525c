package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/nodekeeper/internal/bootnode"
	"github.com/dreamware/nodekeeper/internal/config"
	"github.com/dreamware/nodekeeper/internal/coordinator"
	"github.com/dreamware/nodekeeper/internal/enode"
	"github.com/dreamware/nodekeeper/internal/jsonrpc"
	"github.com/dreamware/nodekeeper/internal/launcher"
	"github.com/dreamware/nodekeeper/internal/logging"
	"github.com/dreamware/nodekeeper/internal/metrics"
	"github.com/dreamware/nodekeeper/internal/registration"
	"github.com/dreamware/nodekeeper/internal/supervisor"
)

const shutdownTimeout = 15 * time.Second

// app is one nodekeeper run.
type app struct {
	cfg      config.Context
	logger   *zap.Logger
	registry *prometheus.Registry
	status   net.Listener // status server listener; nil means listen on cfg.Listen
	exe      string       // client binary override
	stdout   io.Writer    // client stdout, os.Stdout when nil
	stderr   io.Writer    // client stderr, os.Stderr when nil
}

// run wires every component and drives the coordinator until the client
// produces an exit outcome, a launch fails or ctx ends.
//
// Implementation:
//  1. Discover static peers unless this is the first miner
//  2. Prepare the client configuration on first run
//  3. Launch the client under the supervisor
//  4. Drive supervisor and registration with the coordinator, next to
//     the optional status server
//
// Cancellation of ctx is a clean shutdown and returns nil.
func (a *app) run(ctx context.Context) error {
	cfg := a.cfg
	logger := logging.OrNop(a.logger)
	var reg prometheus.Registerer
	if a.registry != nil {
		reg = a.registry
	}
	m := metrics.New(reg)

	logger.Info("nodekeeper starting", zap.String("version", version), config.Field(cfg))

	bootnodes, err := bootnode.NewClient(cfg.BootnodeURL(), cfg.NetworkName)
	if err != nil {
		return fmt.Errorf("bootnode client: %w", err)
	}

	var peers []enode.Address
	if cfg.IsFirstMiner() {
		logger.Info("first miner, skipping peer discovery")
	} else {
		peers = bootnode.Discover(ctx, bootnodes,
			bootnode.WithRetryLimit(cfg.DiscoveryRetryLimit),
			bootnode.WithRetryDelay(cfg.DiscoveryRetryDelay),
			bootnode.WithLogger(logger.Named(logging.Bootnode)),
			bootnode.WithMetrics(m))
		if ctx.Err() != nil {
			logger.Info("interrupted during discovery")
			return nil
		}
		logger.Info("peer discovery finished", zap.Int("peers", len(peers)))
	}

	client := &launcher.Launcher{
		Program:     cfg.Program,
		ConfigRoot:  cfg.ConfigRoot,
		DataDir:     cfg.ChainDataRoot,
		NetworkPort: cfg.NetworkPort,
		RPCPort:     cfg.RPCPort,
		Bootnodes:   peers,
		Executable:  a.exe,
		Stdout:      a.stdout,
		Stderr:      a.stderr,
		Logger:      logger.Named(logging.Launcher),
	}
	if cfg.FirstRun {
		if err := client.Initialize(); err != nil {
			return fmt.Errorf("initialize client: %w", err)
		}
	}

	sup, err := supervisor.New(client, cfg.RestartPolicy,
		supervisor.WithLogger(logger.Named(logging.Supervisor)),
		supervisor.WithMetrics(m))
	if err != nil {
		return err
	}

	rpc, err := jsonrpc.NewClient(client.LocalRPCURL(), jsonrpc.WithEnodeMethod(client.EnodeMethod()))
	if err != nil {
		return multierr.Append(fmt.Errorf("json-rpc client: %w", err), closeSupervisor(sup))
	}

	machine := registration.New(ctx,
		registration.Config{PublicIP: cfg.PublicIP, Network: cfg.NetworkName, Miner: cfg.IsMiner()},
		rpc, bootnodes,
		registration.WithLogger(logger.Named(logging.Registration)),
		registration.WithMetrics(m))

	co, err := coordinator.New(sup, machine, cfg.UpdateInterval,
		coordinator.WithLogger(logger.Named(logging.Coordinator)))
	if err != nil {
		machine.Close()
		return multierr.Append(err, closeSupervisor(sup))
	}

	err = a.drive(ctx, co, logger)
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		err = nil
	}
	if err == nil {
		out := co.Outcome()
		if out.Produced {
			logger.Info("client lifecycle ended", zap.Bool("success", out.Success))
		}
	}
	return multierr.Append(err, closeSupervisor(sup))
}

// drive runs the coordinator and the status server in one group; whichever
// finishes first stops the other.
func (a *app) drive(ctx context.Context, co *coordinator.Coordinator, logger *zap.Logger) error {
	ln := a.status
	if ln == nil && a.cfg.Listen != "" {
		var err error
		ln, err = net.Listen("tcp", a.cfg.Listen)
		if err != nil {
			co.Stop()
			return fmt.Errorf("status listener: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	g.Go(func() error {
		defer cancel()
		return co.Run(runCtx)
	})
	if ln != nil {
		g.Go(func() error {
			return serveStatus(runCtx, ln, a.registry, logger)
		})
	}
	return g.Wait()
}

// serveStatus exposes /health and /metrics on ln until ctx ends.
func serveStatus(ctx context.Context, ln net.Listener, reg *prometheus.Registry, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if reg != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() {
		logger.Info("status server listening", zap.Stringer("addr", ln.Addr()))
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("status server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status server shutdown: %w", err)
	}
	return nil
}

// closeSupervisor terminates the client, bounded by shutdownTimeout.
func closeSupervisor(sup *supervisor.Supervisor) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return sup.Close(ctx)
}
