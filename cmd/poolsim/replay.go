package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tickpool/internal/config"
	"tickpool/internal/pool"
	"tickpool/internal/replay"
	"tickpool/internal/storage/postgres"
)

func runReplay(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadReplay(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Input == "" {
		return fmt.Errorf("input path is required")
	}
	if cfg.PGDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}
	if cfg.PoolAddress == "" {
		return fmt.Errorf("pool address is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()

	var stateStore replay.StateStore
	if cfg.StateFile != "" {
		stateStore = &replay.FileStateStore{Path: cfg.StateFile}
	} else {
		stateStore = &replay.DBStateStore{Store: store, Name: fmt.Sprintf("replay:%s", cfg.PoolAddress)}
	}

	replayer := replay.NewReplayer(replay.Config{
		ChainID:     cfg.ChainID,
		PoolAddress: cfg.PoolAddress,
		BatchSize:   cfg.BatchSize,
		StateStore:  stateStore,
		Pool:        pool.Config{},
		Model:       nil,
	}, store, logger)

	logger.Info("replay start",
		zap.String("input", cfg.Input),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.String("pool", cfg.PoolAddress),
		zap.Uint64("chain_id", cfg.ChainID),
		zap.Int("batch_size", cfg.BatchSize),
	)

	return replayer.Run(ctx, cfg.Input)
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
