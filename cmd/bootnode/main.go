// Command bootnode runs a development enode registry.
//
// Nodes POST their EnodeInfo to / on an interval and new nodes GET
// /staticenodes?network=<name> at startup. Records expire after
// BOOTNODE_TTL without a refresh.
//
// Environment:
//
//	BOOTNODE_ADDR  listen address (default :3000)
//	BOOTNODE_TTL   record lifetime (default 2m)
//	LOG_LEVEL      debug, info, warn or error (default info)
//	LOG_FORMAT     console or json (default console)
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/nodekeeper/internal/logging"
	"github.com/dreamware/nodekeeper/internal/registry"
	"github.com/dreamware/nodekeeper/internal/storage"
)

const shutdownTimeout = 5 * time.Second

func main() {
	logger, err := logging.New(logging.Options{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: logging.Format(os.Getenv("LOG_FORMAT")),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	ttl, err := time.ParseDuration(getenv("BOOTNODE_TTL", storage.DefaultTTL.String()))
	if err != nil {
		logger.Fatal("invalid BOOTNODE_TTL", zap.Error(err))
	}

	addr := getenv("BOOTNODE_ADDR", ":3000")
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Fatal("listen", zap.String("addr", addr), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := registry.NewServer(storage.NewMemoryStore(ttl), logger.Named(logging.Registry))
	if err := serve(ctx, ln, srv.Routes(), logger); err != nil {
		logger.Fatal("bootnode registry failed", zap.Error(err))
	}
	logger.Info("bootnode registry stopped")
}

// serve runs handler on ln until ctx ends, then shuts down gracefully.
func serve(ctx context.Context, ln net.Listener, handler http.Handler, logger *zap.Logger) error {
	httpSrv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("bootnode registry listening", zap.Stringer("addr", ln.Addr()))
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
