package model

// TickSnapshot is one tick's ledger state at a block, bound for storage.
// Amounts are decimal strings of 18-decimal fixed-point values.
type TickSnapshot struct {
	ChainID       uint64
	PoolAddress   string
	BlockNumber   uint64
	Timestamp     uint64
	Tick          string
	Limit         string
	DurationClass uint8
	RateClass     uint8
	Value         string
	Shares        string
	Available     string
	Pending       string
	Price         string
	Active        bool
}

// PoolStats is the pool-level rollup flushed alongside tick snapshots.
type PoolStats struct {
	ChainID          uint64
	PoolAddress      string
	BlockNumber      uint64
	Timestamp        uint64
	TotalValue       string
	TotalAvailable   string
	TotalPending     string
	ActiveTicks      uint64
	OutstandingLoans uint64
}
