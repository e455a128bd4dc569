// Command rpc-server exposes the JSON-RPC surface (C7) backed by local
// storage, rejecting writes when LeaderNode names a different node.
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

	"github.com/erigontech/stratus/config"
	"github.com/erigontech/stratus/eth/consensus"
	"github.com/erigontech/stratus/eth/executor"
	"github.com/erigontech/stratus/eth/primitives"
	"github.com/erigontech/stratus/eth/rpcserver"
	"github.com/erigontech/stratus/eth/storage"
	"github.com/erigontech/stratus/infra/metrics"
	"github.com/erigontech/stratus/infra/tracing"
	"github.com/erigontech/stratus/runtime"
)

func main() {
	var cfg *config.RpcServerConfig

	root := &cobra.Command{
		Use:   "rpc-server",
		Short: "Serve the Ethereum JSON-RPC surface backed by local storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg)
		},
	}

	flags := pflag.NewFlagSet("rpc-server", pflag.ExitOnError)
	cfg = config.BindRpcServer(flags)
	root.Flags().AddFlagSet(flags)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg *config.RpcServerConfig) error {
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

	election, err := buildElection(cfg.LeaderNode)
	if err != nil {
		return err
	}

	exec := executor.New(store, unsupportedEVM{})
	srv := rpcserver.New(store, exec, election)

	go func() {
		if cfg.Common.MetricsExporterAddress == "" {
			return
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		if err := http.ListenAndServe(cfg.Common.MetricsExporterAddress, mux); err != nil {
			tracing.Error("metrics server stopped", "error", err.Error())
		}
	}()

	httpServer := &http.Server{Addr: cfg.Common.Address, Handler: srv.Handler()}
	go func() {
		<-rt.Done()
		httpServer.Close()
	}()

	tracing.Info("rpc-server listening", "address", cfg.Common.Address, "follower", election.IsFollower())
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// buildElection resolves the Election capability from LeaderNode: empty
// means standalone (always leader), "self" means this node is the
// pinned leader, anything else names the leader's RPC endpoint and this
// node is a follower.
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
