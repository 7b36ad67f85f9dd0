package replay

import (
	"math/big"

	"tickpool/internal/ledger"
	"tickpool/internal/model"
)

func buildTickSnapshots(chainID uint64, poolAddress string, block, ts uint64, infos []ledger.NodeInfo) []model.TickSnapshot {
	snapshots := make([]model.TickSnapshot, 0, len(infos))
	for _, info := range infos {
		limit, duration, rate := info.Tick.Decode()
		snapshots = append(snapshots, model.TickSnapshot{
			ChainID:       chainID,
			PoolAddress:   poolAddress,
			BlockNumber:   block,
			Timestamp:     ts,
			Tick:          info.Tick.Hex(),
			Limit:         limit.String(),
			DurationClass: duration,
			RateClass:     rate,
			Value:         info.Value.String(),
			Shares:        info.Shares.String(),
			Available:     info.Available.String(),
			Pending:       info.Pending.String(),
			Price:         sharePrice(info.Value, info.Shares),
			Active:        info.Active,
		})
	}
	return snapshots
}

func buildPoolStats(chainID uint64, poolAddress string, block, ts uint64, snapshots []model.TickSnapshot, loanCount int) model.PoolStats {
	totalValue := new(big.Int)
	totalAvailable := new(big.Int)
	totalPending := new(big.Int)
	active := uint64(0)
	for _, snap := range snapshots {
		totalValue.Add(totalValue, mustBig(snap.Value))
		totalAvailable.Add(totalAvailable, mustBig(snap.Available))
		totalPending.Add(totalPending, mustBig(snap.Pending))
		if snap.Active {
			active++
		}
	}
	return model.PoolStats{
		ChainID:          chainID,
		PoolAddress:      poolAddress,
		BlockNumber:      block,
		Timestamp:        ts,
		TotalValue:       totalValue.String(),
		TotalAvailable:   totalAvailable.String(),
		TotalPending:     totalPending.String(),
		ActiveTicks:      active,
		OutstandingLoans: uint64(loanCount),
	}
}

func sharePrice(value, shares *big.Int) string {
	if shares == nil || shares.Sign() == 0 {
		return "0"
	}
	price := new(big.Int).Mul(value, ledger.Wad)
	return price.Quo(price, shares).String()
}

func mustBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}
