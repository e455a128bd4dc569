// Package config defines CommonConfig and the per-binary config structs,
// populated from CLI flags (github.com/spf13/pflag, wired through
// github.com/spf13/cobra commands in cmd/) with every flag bound to the
// matching environment variable per the node's external-interface table:
// a flag wins if set, otherwise its env var, otherwise the default below.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
)

// CommonConfig holds the flags every binary accepts.
type CommonConfig struct {
	Env                    string
	Address                string
	MaxConnections         int
	AsyncThreads           int
	BlockingThreads        int
	MetricsExporterAddress string
	LogLevel               string
}

func BindCommon(flags *pflag.FlagSet) *CommonConfig {
	c := &CommonConfig{}
	flags.StringVar(&c.Env, "env", envOrDefault("ENV", "local"), "deployment environment: local|staging|production")
	flags.StringVar(&c.Address, "address", envOrDefault("ADDRESS", "0.0.0.0:3000"), "JSON-RPC listen address")
	flags.IntVar(&c.MaxConnections, "max-connections", envIntOrDefault("MAX_CONNECTIONS", 200), "max concurrent RPC connections")
	flags.IntVar(&c.AsyncThreads, "async-threads", envIntOrDefault("ASYNC_THREADS", 10), "worker goroutine pool size for async work")
	flags.IntVar(&c.BlockingThreads, "blocking-threads", envIntOrDefault("BLOCKING_THREADS", 10), "worker pool size for blocking storage work")
	flags.StringVar(&c.MetricsExporterAddress, "metrics-exporter-address", envOrDefault("METRICS_EXPORTER_ADDRESS", "0.0.0.0:9000"), "Prometheus exporter listen address")
	flags.StringVar(&c.LogLevel, "log-level", envOrDefault("LOG_LEVEL", "info"), "log level: debug|info|warn|error")
	return c
}

// StorageConfig is the DB_URL-derived selection between the two
// PermanentStorage backends (§ DOMAIN STACK: file: -> kvstore, sqlite: -> sqlstore).
type StorageConfig struct {
	URL         string
	Connections int
	Timeout     time.Duration
}

func BindStorage(flags *pflag.FlagSet) *StorageConfig {
	c := &StorageConfig{}
	flags.StringVar(&c.URL, "db-url", envOrDefault("DB_URL", "file:./data/stratus.db"), "storage backend URL: file:<path> or sqlite:<path>")
	flags.IntVar(&c.Connections, "db-connections", envIntOrDefault("DB_CONNECTIONS", 5), "max SQL connection pool size (sqlstore only)")
	flags.DurationVar(&c.Timeout, "db-timeout", envDurationOrDefault("DB_TIMEOUT", time.Second), "storage operation timeout")
	return c
}

// Scheme reports which PermanentStorage backend this URL selects.
func (c StorageConfig) Scheme() (string, string, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return "", "", fmt.Errorf("parse db url: %w", err)
	}
	return u.Scheme, u.Opaque, nil
}

// RetryConfig is the BACKOFF-derived knob for eth/rpcclient and eth/importer.
type RetryConfig struct {
	Backoff time.Duration
}

func BindRetry(flags *pflag.FlagSet) *RetryConfig {
	c := &RetryConfig{}
	flags.DurationVar(&c.Backoff, "backoff", envDurationOrDefault("BACKOFF", 10*time.Millisecond), "initial retry backoff")
	return c
}

// ImporterOnlineConfig is cmd/importer-online's flag set.
type ImporterOnlineConfig struct {
	Common             *CommonConfig
	Storage            *StorageConfig
	Retry              *RetryConfig
	ExternalRPC        string
	ExternalRPCTimeout time.Duration
	SyncInterval       time.Duration
}

func BindImporterOnline(flags *pflag.FlagSet) *ImporterOnlineConfig {
	c := &ImporterOnlineConfig{
		Common:  BindCommon(flags),
		Storage: BindStorage(flags),
		Retry:   BindRetry(flags),
	}
	flags.StringVar(&c.ExternalRPC, "external-rpc", os.Getenv("EXTERNAL_RPC"), "upstream JSON-RPC endpoint (required)")
	flags.DurationVar(&c.ExternalRPCTimeout, "external-rpc-timeout", envDurationOrDefault("EXTERNAL_RPC_TIMEOUT", 2*time.Second), "per-call timeout against the upstream RPC")
	flags.DurationVar(&c.SyncInterval, "sync-interval", envDurationOrDefault("SYNC_INTERVAL", 100*time.Millisecond), "poll interval between import iterations")
	return c
}

func (c *ImporterOnlineConfig) Validate() error {
	if c.ExternalRPC == "" {
		return fmt.Errorf("external-rpc (EXTERNAL_RPC) is required")
	}
	return nil
}

// RelayerConfig is cmd/relayer's flag set: the standalone forwarding loop
// that drains the relayer's own bookkeeping table and pushes waves to
// ForwardTo.
type RelayerConfig struct {
	Common        *CommonConfig
	Storage       *StorageConfig
	Retry         *RetryConfig
	ForwardTo     string
	BlocksToFetch int
}

func BindRelayer(flags *pflag.FlagSet) *RelayerConfig {
	c := &RelayerConfig{
		Common:  BindCommon(flags),
		Storage: BindStorage(flags),
		Retry:   BindRetry(flags),
	}
	flags.StringVar(&c.ForwardTo, "forward-to", os.Getenv("FORWARD_TO"), "leader RPC endpoint transactions are relayed to")
	flags.IntVar(&c.BlocksToFetch, "blocks-to-fetch", envIntOrDefault("BLOCKS_TO_FETCH", 3), "pending blocks pulled per relay iteration")
	return c
}

// RunWithImporterConfig is cmd/run-with-importer's flag set: an RPC
// server and an online importer sharing one storage handle and one
// Election, per spec.md's combined single-process runner.
type RunWithImporterConfig struct {
	Importer   *ImporterOnlineConfig
	LeaderNode string
}

func BindRunWithImporter(flags *pflag.FlagSet) *RunWithImporterConfig {
	c := &RunWithImporterConfig{Importer: BindImporterOnline(flags)}
	flags.StringVar(&c.LeaderNode, "leader-node", os.Getenv("LEADER_NODE"), "static leader identity for the Election capability")
	return c
}

// RpcServerConfig is cmd/rpc-server's flag set.
type RpcServerConfig struct {
	Common     *CommonConfig
	Storage    *StorageConfig
	LeaderNode string
}

func BindRpcServer(flags *pflag.FlagSet) *RpcServerConfig {
	c := &RpcServerConfig{
		Common:  BindCommon(flags),
		Storage: BindStorage(flags),
	}
	flags.StringVar(&c.LeaderNode, "leader-node", os.Getenv("LEADER_NODE"), "static leader identity for the Election capability")
	return c
}

func envOrDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDurationOrDefault(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
