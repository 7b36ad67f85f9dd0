package pool

import (
	"math/big"

	"tickpool/internal/ledger"
	"tickpool/internal/tick"
)

// InterestModel prices a draw and splits the accrued interest across the
// ticks that funded it.
type InterestModel interface {
	// Rate returns the per-second interest rate, 18-decimal fixed point,
	// for a draw of amount funded by allocations.
	Rate(amount *big.Int, allocations []ledger.Allocation) *big.Int

	// Distribute splits interest across allocations. The returned slice is
	// parallel to allocations and sums to exactly interest, with any
	// rounding remainder attributed to the first (lowest) tick.
	Distribute(amount, interest *big.Int, allocations []ledger.Allocation) []*big.Int
}

// WeightedRateModel weighs a fixed per-rate-class rate table by each tick's
// contribution to the draw. Interest is distributed in proportion to
// contribution times rate, so riskier ticks earn more of the spread.
type WeightedRateModel struct {
	rates []*big.Int
}

// NewWeightedRateModel builds a model from a per-rate-class table of
// per-second rates, 18-decimal fixed point, indexed by rate class. Classes
// beyond the table fall back to the last entry.
func NewWeightedRateModel(rates []*big.Int) *WeightedRateModel {
	if len(rates) == 0 {
		rates = DefaultRates()
	}
	return &WeightedRateModel{rates: rates}
}

// DefaultRates returns an ascending per-second rate table, one entry per
// rate class, spanning roughly 5% to 40% APR.
func DefaultRates() []*big.Int {
	const secondsPerYear = 31_536_000
	rates := make([]*big.Int, tick.RateClasses)
	for i := range rates {
		apr := new(big.Int).Mul(big.NewInt(int64(i+1)*5), big.NewInt(1e16))
		rates[i] = apr.Quo(apr, big.NewInt(secondsPerYear))
	}
	return rates
}

func (m *WeightedRateModel) classRate(class uint8) *big.Int {
	if int(class) >= len(m.rates) {
		return m.rates[len(m.rates)-1]
	}
	return m.rates[class]
}

func (m *WeightedRateModel) Rate(amount *big.Int, allocations []ledger.Allocation) *big.Int {
	if amount == nil || amount.Sign() <= 0 {
		return new(big.Int)
	}
	weighted := new(big.Int)
	for _, alloc := range allocations {
		term := new(big.Int).Mul(alloc.Amount, m.classRate(alloc.Tick.Rate()))
		weighted.Add(weighted, term)
	}
	return weighted.Quo(weighted, amount)
}

func (m *WeightedRateModel) Distribute(amount, interest *big.Int, allocations []ledger.Allocation) []*big.Int {
	shares := make([]*big.Int, len(allocations))
	weights := make([]*big.Int, len(allocations))
	total := new(big.Int)
	for i, alloc := range allocations {
		weights[i] = new(big.Int).Mul(alloc.Amount, m.classRate(alloc.Tick.Rate()))
		total.Add(total, weights[i])
	}

	distributed := new(big.Int)
	for i := range allocations {
		if total.Sign() == 0 {
			shares[i] = new(big.Int)
			continue
		}
		share := new(big.Int).Mul(interest, weights[i])
		share.Quo(share, total)
		shares[i] = share
		distributed.Add(distributed, share)
	}
	if len(shares) > 0 {
		shares[0] = new(big.Int).Add(shares[0], new(big.Int).Sub(interest, distributed))
	}
	return shares
}
