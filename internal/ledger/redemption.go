package ledger

import (
	"math/big"

	"tickpool/internal/tick"
)

// Redeem queues shares for redemption at the tick and returns the snapshot
// (index, target) the requester needs to later compute its fill: the batch
// index the queue will write next and the share count already queued ahead of
// this request. Redemption is permitted on inactive nodes so impaired or
// collected tiers can still be wound down.
func (l *Ledger) Redeem(tk tick.Tick, shares *big.Int) (uint64, *big.Int, error) {
	if tk.IsReserved() {
		return 0, nil, ErrInactiveLiquidity
	}
	if shares == nil || shares.Sign() <= 0 {
		return 0, nil, errInvalidAmount
	}

	node := l.ensure(tk)
	q := &node.Redemptions

	index := q.Index
	target := new(big.Int).Set(q.Pending)

	q.Pending.Add(q.Pending, shares)

	// Mark the head batch as in flight so replay can tell "not resolved yet"
	// apart from "resolved for zero".
	if _, ok := q.Fulfilled[index]; !ok {
		q.Fulfilled[index] = FulfilledBatch{
			Shares: new(big.Int).Set(maxShares),
			Amount: bigZero(),
		}
	}

	l.processRedemptions(tk, node)
	return index, target, nil
}

// processRedemptions opportunistically converts queued shares into cash. An
// insolvent node is written off in full: every queued share resolves at price
// zero in a single batch. A solvent node fills as many queued shares as its
// idle cash covers at the current price, recording one batch per fill.
func (l *Ledger) processRedemptions(tk tick.Tick, node *Node) {
	q := &node.Redemptions
	if q.Pending.Sign() == 0 {
		return
	}

	if node.insolvent() {
		q.Fulfilled[q.Index] = FulfilledBatch{
			Shares: new(big.Int).Set(q.Pending),
			Amount: bigZero(),
		}
		q.Index++
		node.Shares = bigZero()
		node.Value = bigZero()
		node.Available = bigZero()
		q.Pending = bigZero()
		return
	}

	if node.Available.Sign() == 0 {
		return
	}

	price := node.price()
	if price.Sign() == 0 {
		return
	}

	fillable := new(big.Int).Set(minBig(wadDiv(node.Available, price), q.Pending))
	if fillable.Sign() == 0 {
		return
	}
	amount := wadMul(fillable, price)

	q.Fulfilled[q.Index] = FulfilledBatch{
		Shares: new(big.Int).Set(fillable),
		Amount: new(big.Int).Set(amount),
	}
	q.Index++

	node.Shares.Sub(node.Shares, fillable)
	node.Value.Sub(node.Value, amount)
	node.Available.Sub(node.Available, amount)
	q.Pending.Sub(q.Pending, fillable)

	l.garbageCollect(tk, node)
}

// RedemptionAvailable replays the fulfilled-batch log from a request's
// snapshot and returns how many of its shares have resolved so far and the
// cash amount they resolved for. The request occupies the share interval
// [target, target+pending) in queue order; each batch contributes its overlap
// with that interval at the batch's own price. Replay stops at the first
// unresolved batch and returns a partial result. A zero result is an
// expected outcome, not an error.
func (l *Ledger) RedemptionAvailable(tk tick.Tick, pending *big.Int, index uint64, target *big.Int) (*big.Int, *big.Int) {
	sharesOut := bigZero()
	amountOut := bigZero()
	if pending == nil || pending.Sign() == 0 {
		return sharesOut, amountOut
	}

	node, ok := l.nodes[tk]
	if !ok {
		return sharesOut, amountOut
	}
	q := &node.Redemptions

	limit := new(big.Int).Add(target, pending)
	cum := bigZero()
	for i := index; i < q.Index; i++ {
		batch := q.Fulfilled[i]
		if batch.Shares.Cmp(maxShares) == 0 {
			break
		}

		hi := minBig(new(big.Int).Add(cum, batch.Shares), limit)
		lo := maxBig(cum, target)
		if hi.Cmp(lo) > 0 {
			filled := new(big.Int).Sub(hi, lo)
			sharesOut.Add(sharesOut, filled)
			if batch.Shares.Sign() > 0 {
				amount := new(big.Int).Mul(filled, batch.Amount)
				amount.Quo(amount, batch.Shares)
				amountOut.Add(amountOut, amount)
			}
		}

		cum = new(big.Int).Add(cum, batch.Shares)
		if cum.Cmp(limit) >= 0 {
			break
		}
	}
	return sharesOut, amountOut
}
