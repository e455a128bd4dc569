// Command importer-online runs the unbounded online-import loop (C6)
// against a single upstream RPC endpoint, with no local RPC surface.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/erigontech/stratus/config"
	"github.com/erigontech/stratus/eth/executor"
	"github.com/erigontech/stratus/eth/importer"
	"github.com/erigontech/stratus/eth/primitives"
	"github.com/erigontech/stratus/eth/rpcclient"
	"github.com/erigontech/stratus/eth/storage"
	"github.com/erigontech/stratus/infra/metrics"
	"github.com/erigontech/stratus/infra/retry"
	"github.com/erigontech/stratus/infra/tracing"
	"github.com/erigontech/stratus/runtime"
)

func main() {
	var cfg *config.ImporterOnlineConfig

	root := &cobra.Command{
		Use:   "importer-online",
		Short: "Stream blocks from an upstream node, replay and persist them",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg)
		},
	}

	flags := pflag.NewFlagSet("importer-online", pflag.ExitOnError)
	cfg = config.BindImporterOnline(flags)
	root.Flags().AddFlagSet(flags)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg *config.ImporterOnlineConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := tracing.Init(cfg.Common.LogLevel); err != nil {
		return err
	}

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt := runtime.New(signalCtx)
	defer rt.Shutdown()

	store, err := storage.Open(rt.Context(), cfg.Storage.URL)
	if err != nil {
		return err
	}
	defer store.Close()

	retryCfg := retry.DefaultConfig
	retryCfg.InitialInterval = cfg.Retry.Backoff

	rpc := rpcclient.New(rpcclient.Config{
		URL:     cfg.ExternalRPC,
		Timeout: cfg.ExternalRPCTimeout,
		Retry:   retryCfg,
	})

	exec := executor.New(store, unsupportedEVM{})
	imp := importer.New(rpc, exec, store, cfg.SyncInterval)

	go serveMetrics(cfg.Common.MetricsExporterAddress)

	tracing.Info("importer-online starting", "external_rpc", cfg.ExternalRPC, "db_url", cfg.Storage.URL)
	return imp.Run(rt.Context())
}

func serveMetrics(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		tracing.Error("metrics server stopped", "error", err.Error())
	}
}

// unsupportedEVM is the default EVM wiring until a real one is plugged
// in (see eth/executor.EVM doc): it fails closed rather than silently
// reporting every transaction successful.
type unsupportedEVM struct{}

func (unsupportedEVM) Run(ctx context.Context, tx primitives.ExternalTransaction, pit primitives.StoragePointInTime) (primitives.EvmExecution, error) {
	return primitives.EvmExecution{}, primitives.NewError(primitives.KindInternal, "no EVM wired: see eth/executor.EVM")
}
