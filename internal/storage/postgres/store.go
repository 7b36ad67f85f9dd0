package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tickpool/internal/model"
)

// Store provides Postgres persistence for replayed pool state.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// UpsertTickSnapshots inserts or updates per-tick state rows.
func (s *Store) UpsertTickSnapshots(ctx context.Context, snapshots []model.TickSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, snap := range snapshots {
		batch.Queue(`
			INSERT INTO tick_snapshots (
				chain_id, pool_address, block_number, block_ts, tick,
				limit_amount, duration_class, rate_class,
				value, shares, available, pending, price, active,
				created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,now(),now())
			ON CONFLICT (chain_id, pool_address, tick)
			DO UPDATE SET
				block_number = EXCLUDED.block_number,
				block_ts = EXCLUDED.block_ts,
				limit_amount = EXCLUDED.limit_amount,
				duration_class = EXCLUDED.duration_class,
				rate_class = EXCLUDED.rate_class,
				value = EXCLUDED.value,
				shares = EXCLUDED.shares,
				available = EXCLUDED.available,
				pending = EXCLUDED.pending,
				price = EXCLUDED.price,
				active = EXCLUDED.active,
				updated_at = now()
		`,
			int64(snap.ChainID),
			snap.PoolAddress,
			int64(snap.BlockNumber),
			int64(snap.Timestamp),
			snap.Tick,
			snap.Limit,
			int16(snap.DurationClass),
			int16(snap.RateClass),
			snap.Value,
			snap.Shares,
			snap.Available,
			snap.Pending,
			snap.Price,
			snap.Active,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range snapshots {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// UpsertPoolStats inserts or updates the pool-level rollup rows.
func (s *Store) UpsertPoolStats(ctx context.Context, stats []model.PoolStats) error {
	if len(stats) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, st := range stats {
		batch.Queue(`
			INSERT INTO pool_stats (
				chain_id, pool_address, block_number, block_ts,
				total_value, total_available, total_pending,
				active_ticks, outstanding_loans,
				created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now(),now())
			ON CONFLICT (chain_id, pool_address, block_number)
			DO UPDATE SET
				block_ts = EXCLUDED.block_ts,
				total_value = EXCLUDED.total_value,
				total_available = EXCLUDED.total_available,
				total_pending = EXCLUDED.total_pending,
				active_ticks = EXCLUDED.active_ticks,
				outstanding_loans = EXCLUDED.outstanding_loans,
				updated_at = now()
		`,
			int64(st.ChainID),
			st.PoolAddress,
			int64(st.BlockNumber),
			int64(st.Timestamp),
			st.TotalValue,
			st.TotalAvailable,
			st.TotalPending,
			int64(st.ActiveTicks),
			int64(st.OutstandingLoans),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range stats {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns last_processed_block for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var block uint64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_block FROM replay_state WHERE name=$1`, name)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return block, true, nil
}

// SaveState upserts last_processed_block for a name.
func (s *Store) SaveState(ctx context.Context, name string, block uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO replay_state (name, last_processed_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_block = EXCLUDED.last_processed_block, updated_at = now()
	`, name, block)
	return err
}
