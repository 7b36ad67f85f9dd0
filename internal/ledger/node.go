package ledger

import (
	"math/big"

	"tickpool/internal/tick"
)

// FulfilledBatch is one immutable entry in a node's redemption log: a share
// quantity resolved at a single price. A batch whose share count equals the
// in-flight sentinel has been registered but not resolved yet.
type FulfilledBatch struct {
	Shares *big.Int
	Amount *big.Int
}

// RedemptionQueue tracks queued redemptions for one node. Individual requests
// are not stored here; each requester keeps a snapshot of (Index, Pending)
// taken at request time and replays the fulfilled log from that point.
type RedemptionQueue struct {
	// Pending is the total share count queued across all outstanding requests.
	Pending *big.Int
	// Index is the next batch index to be written.
	Index uint64
	// Fulfilled is the append-only log of resolution events, keyed by batch index.
	Fulfilled map[uint64]FulfilledBatch
}

// Node is the accounting record for one tick.
type Node struct {
	// Value is the pool's total economic claim at this tier: principal plus
	// accrued but unrealized interest.
	Value *big.Int
	// Shares is the total claim-share supply outstanding.
	Shares *big.Int
	// Available is idle cash free to lend.
	Available *big.Int
	// Pending is capital currently lent out, carried at its eventual
	// repayment value.
	Pending *big.Int

	// Prev and Next link the node into the ordered active list. Both zero
	// means the node is inactive.
	Prev tick.Tick
	Next tick.Tick

	Redemptions RedemptionQueue
}

func newNode() *Node {
	return &Node{
		Value:     bigZero(),
		Shares:    bigZero(),
		Available: bigZero(),
		Pending:   bigZero(),
		Redemptions: RedemptionQueue{
			Pending:   bigZero(),
			Fulfilled: make(map[uint64]FulfilledBatch),
		},
	}
}

func (n *Node) active() bool {
	return !n.Prev.IsZero() || !n.Next.IsZero()
}

func (n *Node) empty() bool {
	return n.Value.Sign() == 0 && n.Shares.Sign() == 0 &&
		n.Available.Sign() == 0 && n.Pending.Sign() == 0
}

func (n *Node) insolvent() bool {
	return n.Shares.Sign() > 0 && n.Value.Sign() == 0
}

// price returns the current redemption price value/shares, zero when no
// shares are outstanding.
func (n *Node) price() *big.Int {
	return wadDiv(n.Value, n.Shares)
}

// NodeInfo is a read-only snapshot of one node.
type NodeInfo struct {
	Tick               tick.Tick
	Value              *big.Int
	Shares             *big.Int
	Available          *big.Int
	Pending            *big.Int
	PendingRedemptions *big.Int
	Prev               tick.Tick
	Next               tick.Tick
	Active             bool
}

func (n *Node) info(tk tick.Tick) NodeInfo {
	return NodeInfo{
		Tick:               tk,
		Value:              new(big.Int).Set(n.Value),
		Shares:             new(big.Int).Set(n.Shares),
		Available:          new(big.Int).Set(n.Available),
		Pending:            new(big.Int).Set(n.Pending),
		PendingRedemptions: new(big.Int).Set(n.Redemptions.Pending),
		Prev:               n.Prev,
		Next:               n.Next,
		Active:             n.active(),
	}
}
