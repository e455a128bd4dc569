// Command relayer is the standalone forwarding loop (C8): it drains its
// own relay queue and pushes transaction waves to the leader in
// dependency order.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/erigontech/stratus/config"
	"github.com/erigontech/stratus/eth/relayer"
	"github.com/erigontech/stratus/eth/rpcclient"
	"github.com/erigontech/stratus/eth/storage"
	"github.com/erigontech/stratus/infra/retry"
	"github.com/erigontech/stratus/infra/tracing"
	"github.com/erigontech/stratus/runtime"
)

func main() {
	var cfg *config.RelayerConfig

	root := &cobra.Command{
		Use:   "relayer",
		Short: "Forward relayed blocks' transactions to the leader in dependency order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg)
		},
	}

	flags := pflag.NewFlagSet("relayer", pflag.ExitOnError)
	cfg = config.BindRelayer(flags)
	root.Flags().AddFlagSet(flags)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg *config.RelayerConfig) error {
	if cfg.ForwardTo == "" {
		return fmt.Errorf("forward-to (FORWARD_TO) is required")
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
	rpc := rpcclient.New(rpcclient.Config{URL: cfg.ForwardTo, Timeout: 2 * time.Second, Retry: retryCfg})

	relayDSN := relayQueueDSN(cfg.Storage.URL)
	server, err := relayer.OpenServer(rt.Context(), relayDSN, store, rpc, cfg.BlocksToFetch)
	if err != nil {
		return err
	}
	defer server.Close()

	if err := server.Cleanup(rt.Context()); err != nil {
		tracing.Warn("relay queue cleanup failed", "error", err.Error())
	}

	tracing.Info("relayer starting", "forward_to", cfg.ForwardTo, "blocks_to_fetch", cfg.BlocksToFetch)

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-rt.Done():
			return rt.Context().Err()
		case <-ticker.C:
			if err := server.RelayOnce(rt.Context()); err != nil {
				tracing.Warn("relay iteration failed", "error", err.Error())
			}
		}
	}
}

// relayQueueDSN derives the relayer's own bookkeeping database path from
// the node's storage URL, per the original's separate-database split
// (see eth/relayer doc comment): always sqlite, regardless of which
// PermanentStorage backend the node itself uses.
func relayQueueDSN(storageURL string) string {
	path := storageURL
	if idx := strings.Index(storageURL, ":"); idx >= 0 {
		path = storageURL[idx+1:]
	}
	return strings.TrimSuffix(path, "/") + ".relay.sqlite"
}
