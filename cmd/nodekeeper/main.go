// Command nodekeeper runs next to an Ethereum client in its container.
//
// It discovers peers from the bootnode registry, launches and supervises
// the client, and keeps the client's enode registered while it runs.
// Every setting is read from the environment (NETWORK_NAME, NODE_TYPE,
// ...) or from the matching flag; run with --help for the list.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/dreamware/nodekeeper/internal/config"
	"github.com/dreamware/nodekeeper/internal/logging"
)

var version = "dev"

func main() {
	if err := newRootCmd(config.New()).Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the command around v so tests can inject settings.
func newRootCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "nodekeeper",
		Short:         "Launch, supervise and register an Ethereum client",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "nodekeeper: configuration: %v\n", err)
				return err
			}

			logger, err := logging.New(cfg.LogOptions())
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "nodekeeper: %v\n", err)
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			registry := prometheus.NewRegistry()
			registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			a := &app{cfg: cfg, logger: logger, registry: registry}
			if err := a.run(ctx); err != nil {
				logger.Error("nodekeeper stopped", zap.Error(err))
				return err
			}
			return nil
		},
	}
	cobra.CheckErr(config.RegisterFlags(v, cmd.Flags()))
	return cmd
}
