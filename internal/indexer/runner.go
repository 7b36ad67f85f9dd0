package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"tickpool/internal/chain"
	"tickpool/internal/model"
	"tickpool/internal/storage"
)

// RunConfig holds runtime settings for a scan of pool event logs.
type RunConfig struct {
	FromBlock         uint64
	ToBlock           uint64
	Addresses         []common.Address
	Topic0            []common.Hash
	BatchSize         uint64
	CheckpointPath    string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
}

type logKey struct {
	block    uint64
	txHash   common.Hash
	logIndex uint
}

// Runner scans the chain for pool event logs and appends them to storage.
// Logs already seen in this run are dropped so re-delivered ranges do not
// duplicate journal entries.
type Runner struct {
	cfg        RunConfig
	chain      *chain.Client
	storage    storage.Storage
	logger     *zap.Logger
	seen       map[logKey]struct{}
	checkpoint *CheckpointStore
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, chainClient *chain.Client, storageSink storage.Storage, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		chain:      chainClient,
		storage:    storageSink,
		logger:     logger,
		seen:       make(map[logKey]struct{}),
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
	}
}

// Run executes the scan loop until the target block or context cancellation.
func (r *Runner) Run(ctx context.Context) error {
	if r.chain == nil {
		return fmt.Errorf("chain client is nil")
	}
	if r.storage == nil {
		return fmt.Errorf("storage is nil")
	}
	if r.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if len(r.cfg.Addresses) == 0 {
		return fmt.Errorf("at least one pool address is required")
	}

	chainID, err := r.chain.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}
	chainIDValue := chainID.Uint64()

	from, to, err := r.resolveWindow(ctx)
	if err != nil {
		return err
	}
	if from > to {
		r.logger.Info("nothing to scan", zap.Uint64("from", from), zap.Uint64("to", to))
		return nil
	}

	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		r.logger.Info("scan range", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))

		logs, err := r.filterLogsWithRetry(ctx, blockRange.From, blockRange.To)
		if err != nil {
			return fmt.Errorf("filter logs: %w", err)
		}

		records, err := r.collectRecords(ctx, chainIDValue, logs)
		if err != nil {
			return err
		}

		if err := r.storage.PutLogBatch(records); err != nil {
			return fmt.Errorf("store logs: %w", err)
		}

		if r.checkpoint != nil {
			if err := r.checkpoint.Save(blockRange.To); err != nil {
				return err
			}
		}

		r.logger.Info("range complete", zap.Int("logs", len(records)), zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
	}

	return nil
}

// resolveWindow determines the scan window, resuming past the checkpoint
// and resolving a zero ToBlock to the chain head.
func (r *Runner) resolveWindow(ctx context.Context) (uint64, uint64, error) {
	from := r.cfg.FromBlock
	to := r.cfg.ToBlock

	if to == 0 {
		latest, err := r.chain.LatestBlockNumber(ctx)
		if err != nil {
			return 0, 0, fmt.Errorf("get latest block: %w", err)
		}
		to = latest
	}

	if r.checkpoint != nil {
		last, ok, err := r.checkpoint.Load()
		if err != nil {
			return 0, 0, err
		}
		if ok && last >= from {
			from = last + 1
			r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", last), zap.Uint64("from", from))
		}
	}

	return from, to, nil
}

func (r *Runner) collectRecords(ctx context.Context, chainID uint64, logs []types.Log) ([]model.LogRecord, error) {
	ingestedAt := time.Now().UTC().Format(time.RFC3339Nano)

	records := make([]model.LogRecord, 0, len(logs))
	for _, log := range logs {
		key := logKey{block: log.BlockNumber, txHash: log.TxHash, logIndex: log.Index}
		if _, dup := r.seen[key]; dup {
			continue
		}
		r.seen[key] = struct{}{}

		ts, err := r.blockTimestampWithRetry(ctx, log.BlockNumber)
		if err != nil {
			return nil, fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
		}

		topics := make([]string, 0, len(log.Topics))
		for _, topic := range log.Topics {
			topics = append(topics, topic.Hex())
		}

		records = append(records, model.LogRecord{
			ChainID:     chainID,
			BlockNumber: log.BlockNumber,
			BlockHash:   log.BlockHash.Hex(),
			TxHash:      log.TxHash.Hex(),
			TxIndex:     uint64(log.TxIndex),
			LogIndex:    uint64(log.Index),
			Address:     log.Address.Hex(),
			Topics:      topics,
			Data:        hexutil.Encode(log.Data),
			Removed:     log.Removed,
			Timestamp:   ts,
			IngestedAt:  ingestedAt,
		})
	}

	return records, nil
}

func (r *Runner) filterLogsWithRetry(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	var logs []types.Log
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = r.chain.FilterLogs(ctx, fromBlock, toBlock, r.cfg.Addresses, r.cfg.Topic0)
		if err != nil {
			r.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock))
		}
		return err
	})
	return logs, err
}

func (r *Runner) blockTimestampWithRetry(ctx context.Context, blockNumber uint64) (uint64, error) {
	var ts uint64
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		ts, err = r.chain.BlockTimestamp(ctx, blockNumber)
		if err != nil {
			r.logger.Warn("block timestamp fetch failed", zap.Error(err), zap.Uint64("block_number", blockNumber))
		}
		return err
	})
	return ts, err
}
