package ledger

import (
	"math/big"

	"tickpool/internal/tick"
)

// Allocation is one tick's contribution to a sourced draw.
type Allocation struct {
	Tick   tick.Tick
	Amount *big.Int
}

// Source greedily selects capital for a draw of amount across the candidate
// ticks, which must be strictly ascending and duration-compatible. Each
// tier's cumulative cap for the draw is its decoded limit scaled by
// multiplier. Source is a pure read: callers apply the returned allocations
// with Use. Its cost is linear in the candidate list, never in the total
// number of active nodes.
func (l *Ledger) Source(amount *big.Int, ticks []tick.Tick, multiplier uint64, durationClass uint8) ([]Allocation, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	if multiplier == 0 {
		multiplier = 1
	}

	taken := bigZero()
	allocations := make([]Allocation, 0, len(ticks))
	prev := tick.Zero

	for _, tk := range ticks {
		limit, err := tick.Validate(tk, prev, durationClass)
		if err != nil {
			return nil, err
		}
		prev = tk

		available := bigZero()
		if node, ok := l.nodes[tk]; ok {
			available = node.Available
		}

		ceiling := new(big.Int).Mul(limit, new(big.Int).SetUint64(multiplier))
		ceiling.Sub(ceiling, taken)
		remaining := new(big.Int).Sub(amount, taken)
		take := clampZero(new(big.Int).Set(minBig(minBig(ceiling, available), remaining)))

		allocations = append(allocations, Allocation{Tick: tk, Amount: take})
		taken = new(big.Int).Add(taken, take)
		if taken.Cmp(amount) == 0 {
			return allocations, nil
		}
	}

	return nil, ErrInsufficientLiquidity
}
