package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"tickpool/internal/chain"
	"tickpool/internal/config"
	"tickpool/internal/indexer"
	"tickpool/internal/storage"
)

func main() {
	root := &cobra.Command{
		Use:          "poolsim",
		Short:        "Lending pool event pipeline",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Index pool event logs from the chain",
		RunE:  runIndex,
	}

	indexCmd.Flags().String("rpc", "", "RPC URL")
	indexCmd.Flags().Uint64("from", 0, "start block (inclusive)")
	indexCmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	indexCmd.Flags().StringSlice("address", nil, "pool addresses (comma-separated)")
	indexCmd.Flags().StringSlice("topic0", nil, "topic0 signatures (comma-separated)")
	indexCmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	indexCmd.Flags().String("out", "./data/logs.jsonl", "output JSONL path")
	indexCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	indexCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	indexCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	indexCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	indexCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(indexCmd)

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode raw logs into typed pool events",
		RunE:  runDecode,
	}

	decodeCmd.Flags().String("rpc", "", "optional RPC URL for currency metadata")
	decodeCmd.Flags().String("in", "", "input raw logs JSONL")
	decodeCmd.Flags().String("out", "./data/typed_events.jsonl", "output typed events JSONL")
	decodeCmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	decodeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(decodeCmd)

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay typed events into pool state snapshots",
		RunE:  runReplay,
	}

	replayCmd.Flags().String("in", "", "input typed events JSONL")
	replayCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	replayCmd.Flags().String("pool", "", "pool address to replay")
	replayCmd.Flags().Uint64("chain-id", 0, "chain id recorded in snapshots")
	replayCmd.Flags().Int("batch-size", 1000, "blocks per snapshot flush")
	replayCmd.Flags().String("state-file", "", "optional local state file for progress tracking")
	replayCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(replayCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runIndex(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}

	addresses, err := indexer.ParseAddresses(cfg.Addresses)
	if err != nil {
		return err
	}
	if len(addresses) == 0 {
		return fmt.Errorf("address list is required")
	}

	topic0, err := indexer.ParseTopic0(cfg.Topic0)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	storageSink := storage.NewJsonlStorage(cfg.Out)

	runner := indexer.NewRunner(indexer.RunConfig{
		FromBlock:         cfg.FromBlock,
		ToBlock:           cfg.ToBlock,
		Addresses:         addresses,
		Topic0:            topic0,
		BatchSize:         cfg.BatchSize,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
	}, chainClient, storageSink, logger)

	logger.Info("index start",
		zap.String("rpc", cfg.RPCURL),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.Int("addresses", len(addresses)),
		zap.Int("topic0", len(topic0)),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.String("out", cfg.Out),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.String("checkpoint", cfg.Checkpoint),
	)

	return runner.Run(ctx)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
