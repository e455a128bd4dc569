// Command run-with-importer runs an RPC server and an online importer
// in one process, sharing one storage handle and one Election — the
// combined single-process runner spec.md's single-binary deployment
// mode describes.
package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/erigontech/stratus/config"
	"github.com/erigontech/stratus/eth/consensus"
	"github.com/erigontech/stratus/eth/executor"
	"github.com/erigontech/stratus/eth/importer"
	"github.com/erigontech/stratus/eth/primitives"
	"github.com/erigontech/stratus/eth/rpcclient"
	"github.com/erigontech/stratus/eth/rpcserver"
	"github.com/erigontech/stratus/eth/storage"
	"github.com/erigontech/stratus/infra/metrics"
	"github.com/erigontech/stratus/infra/retry"
	"github.com/erigontech/stratus/infra/tracing"
	"github.com/erigontech/stratus/runtime"
)

func main() {
	var cfg *config.RunWithImporterConfig

	root := &cobra.Command{
		Use:   "run-with-importer",
		Short: "Run the JSON-RPC server and the online importer in one process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg)
		},
	}

	flags := pflag.NewFlagSet("run-with-importer", pflag.ExitOnError)
	cfg = config.BindRunWithImporter(flags)
	root.Flags().AddFlagSet(flags)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg *config.RunWithImporterConfig) error {
	if err := cfg.Importer.Validate(); err != nil {
		return err
	}
	if err := tracing.Init(cfg.Importer.Common.LogLevel); err != nil {
		return err
	}

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt := runtime.New(signalCtx)
	defer rt.Shutdown()

	store, err := storage.Open(rt.Context(), cfg.Importer.Storage.URL)
	if err != nil {
		return err
	}
	defer store.Close()

	election, err := buildElection(cfg.LeaderNode)
	if err != nil {
		return err
	}

	retryCfg := retry.DefaultConfig
	retryCfg.InitialInterval = cfg.Importer.Retry.Backoff
	rpc := rpcclient.New(rpcclient.Config{
		URL:     cfg.Importer.ExternalRPC,
		Timeout: cfg.Importer.ExternalRPCTimeout,
		Retry:   retryCfg,
	})

	exec := executor.New(store, unsupportedEVM{})
	imp := importer.New(rpc, exec, store, cfg.Importer.SyncInterval)
	srv := rpcserver.New(store, exec, election)

	go func() {
		if cfg.Importer.Common.MetricsExporterAddress == "" {
			return
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		if err := http.ListenAndServe(cfg.Importer.Common.MetricsExporterAddress, mux); err != nil {
			tracing.Error("metrics server stopped", "error", err.Error())
		}
	}()

	httpServer := &http.Server{Addr: cfg.Importer.Common.Address, Handler: srv.Handler()}
	go func() {
		<-rt.Done()
		httpServer.Close()
	}()

	group, groupCtx := errgroup.WithContext(rt.Context())
	group.Go(func() error {
		tracing.Info("run-with-importer: rpc-server listening", "address", cfg.Importer.Common.Address)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		tracing.Info("run-with-importer: importer starting", "external_rpc", cfg.Importer.ExternalRPC)
		return imp.Run(groupCtx)
	})

	return group.Wait()
}

func buildElection(leaderNode string) (consensus.Election, error) {
	switch leaderNode {
	case "":
		return consensus.Standalone{}, nil
	case "self":
		return consensus.NewStaticLeader(), nil
	default:
		leaderURL, err := url.Parse(leaderNode)
		if err != nil {
			return nil, primitives.WrapError(primitives.KindInvalidArgument, "malformed leader-node url", err)
		}
		return consensus.NewStaticFollower(leaderURL), nil
	}
}

type unsupportedEVM struct{}

func (unsupportedEVM) Run(ctx context.Context, tx primitives.ExternalTransaction, pit primitives.StoragePointInTime) (primitives.EvmExecution, error) {
	return primitives.EvmExecution{}, primitives.NewError(primitives.KindInternal, "no EVM wired: see eth/executor.EVM")
}
