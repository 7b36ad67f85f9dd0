package replay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"tickpool/internal/model"
	"tickpool/internal/pool"
	"tickpool/internal/storage/postgres"
)

// Config controls replay behavior.
type Config struct {
	ChainID     uint64
	PoolAddress string
	BatchSize   int
	StateStore  StateStore
	Pool        pool.Config
	Model       pool.InterestModel
}

// Replayer rebuilds pool state from a typed-event journal and flushes
// per-tick snapshots to storage. Events are always applied from the start of
// the journal so the in-memory state is complete; the state store only
// suppresses snapshot writes for blocks that were already flushed.
type Replayer struct {
	cfg    Config
	store  *postgres.Store
	logger *zap.Logger
	pool   *pool.Pool
}

func NewReplayer(cfg Config, store *postgres.Store, logger *zap.Logger) *Replayer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Replayer{
		cfg:    cfg,
		store:  store,
		logger: logger,
		pool:   pool.New(cfg.Pool, cfg.Model),
	}
}

// Pool exposes the replayed pool state.
func (r *Replayer) Pool() *pool.Pool {
	return r.pool
}

// Run executes replay over a typed events JSONL file.
func (r *Replayer) Run(ctx context.Context, inputPath string) error {
	if r.store == nil {
		return fmt.Errorf("store is nil")
	}
	if r.cfg.BatchSize <= 0 {
		r.cfg.BatchSize = 1000
	}

	flushedThrough := uint64(0)
	if r.cfg.StateStore != nil {
		last, ok, err := r.cfg.StateStore.Load(ctx)
		if err != nil {
			return err
		}
		if ok {
			flushedThrough = last
			r.logger.Info("resume snapshot flushing", zap.Uint64("last_flushed_block", last))
		}
	}

	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	var (
		total, applied, skipped, failed int
		sinceFlush                      int
		currentBlock, currentTs         uint64
	)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		total++

		var record model.TypedEventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			failed++
			r.logger.Warn("decode typed event", zap.Error(err))
			continue
		}

		if r.cfg.PoolAddress != "" && !strings.EqualFold(record.Address, r.cfg.PoolAddress) {
			skipped++
			continue
		}

		// A new block begins: the previous one is complete and flushable.
		if currentBlock != 0 && record.BlockNumber > currentBlock && sinceFlush >= r.cfg.BatchSize {
			if currentBlock > flushedThrough {
				if err := r.flush(ctx, currentBlock, currentTs); err != nil {
					return err
				}
				flushedThrough = currentBlock
			}
			sinceFlush = 0
		}
		currentBlock = record.BlockNumber
		currentTs = record.Timestamp

		if err := r.apply(record); err != nil {
			failed++
			r.logger.Warn("apply event",
				zap.Error(err),
				zap.String("event", record.EventName),
				zap.Uint64("block_number", record.BlockNumber),
				zap.String("tx_hash", record.TxHash),
			)
			continue
		}
		applied++
		sinceFlush++
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}

	if currentBlock > flushedThrough {
		if err := r.flush(ctx, currentBlock, currentTs); err != nil {
			return err
		}
	}

	r.logger.Info("replay complete",
		zap.Int("total", total),
		zap.Int("applied", applied),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
		zap.Uint64("last_block", currentBlock),
	)

	return nil
}

func (r *Replayer) flush(ctx context.Context, block, ts uint64) error {
	snapshots := buildTickSnapshots(r.cfg.ChainID, r.cfg.PoolAddress, block, ts, r.pool.TickSnapshots())
	if err := r.store.UpsertTickSnapshots(ctx, snapshots); err != nil {
		return fmt.Errorf("upsert tick snapshots: %w", err)
	}

	stats := buildPoolStats(r.cfg.ChainID, r.cfg.PoolAddress, block, ts, snapshots, r.pool.LoanCount())
	if err := r.store.UpsertPoolStats(ctx, []model.PoolStats{stats}); err != nil {
		return fmt.Errorf("upsert pool stats: %w", err)
	}

	if r.cfg.StateStore != nil {
		if err := r.cfg.StateStore.Save(ctx, block); err != nil {
			return err
		}
	}

	r.logger.Info("snapshots flushed", zap.Uint64("block_number", block), zap.Int("ticks", len(snapshots)))
	return nil
}
