package ledger

import (
	"errors"
	"fmt"
	"math/big"

	"tickpool/internal/tick"
)

var (
	// ErrInactiveLiquidity reports an operation against a reserved tick or a
	// node that is inactive when it must not be.
	ErrInactiveLiquidity = errors.New("ledger: inactive liquidity")

	// ErrInsufficientLiquidity reports a draw that cannot be filled from the
	// available capital.
	ErrInsufficientLiquidity = errors.New("ledger: insufficient liquidity")

	errInvalidAmount = errors.New("ledger: amount must be positive")
)

// Config carries the ledger's policy constants.
type Config struct {
	// DepositPricingWeightBps is the weight, in basis points, at which
	// unrealized net gain is recognized when pricing new deposits.
	DepositPricingWeightBps uint64
	// ImpairmentThreshold is the share price, 18-decimal fixed point, below
	// which a node is considered impaired and leaves the active list.
	ImpairmentThreshold *big.Int
	// TickLimitSpacingBps is the minimum relative distance between the
	// limits of adjacent instantiated ticks.
	TickLimitSpacingBps uint64
}

// DefaultConfig returns the standard policy: 50% gain weight, impairment at
// half of par, 10% tick limit spacing.
func DefaultConfig() Config {
	return Config{
		DepositPricingWeightBps: 5_000,
		ImpairmentThreshold:     new(big.Int).Quo(Wad, big.NewInt(2)),
		TickLimitSpacingBps:     1_000,
	}
}

// Ledger is the tick-indexed liquidity ledger for one pool. Nodes live in an
// arena map keyed by tick; the always-present sentinel nodes at tick.Zero and
// tick.Max anchor the ordered singly-linked active list.
//
// Mutating methods must be serialized by the caller. Reads may run
// concurrently only in the absence of mutation.
type Ledger struct {
	cfg   Config
	nodes map[tick.Tick]*Node
}

// New constructs an empty ledger. Zero-valued config fields fall back to
// DefaultConfig.
func New(cfg Config) *Ledger {
	def := DefaultConfig()
	if cfg.DepositPricingWeightBps == 0 {
		cfg.DepositPricingWeightBps = def.DepositPricingWeightBps
	}
	if cfg.ImpairmentThreshold == nil {
		cfg.ImpairmentThreshold = def.ImpairmentThreshold
	}
	if cfg.TickLimitSpacingBps == 0 {
		cfg.TickLimitSpacingBps = def.TickLimitSpacingBps
	}

	l := &Ledger{
		cfg:   cfg,
		nodes: make(map[tick.Tick]*Node),
	}
	head := l.ensure(tick.Zero)
	l.ensure(tick.Max)
	head.Next = tick.Max
	return l
}

func (l *Ledger) ensure(tk tick.Tick) *Node {
	if node, ok := l.nodes[tk]; ok {
		return node
	}
	node := newNode()
	l.nodes[tk] = node
	return node
}

// Instantiate links the tick into the active list, creating its node when
// needed. Active nodes are a no-op. A non-empty inactive node cannot be
// resurrected: that would silently revive impaired balances.
func (l *Ledger) Instantiate(tk tick.Tick) error {
	if tk.IsReserved() {
		return ErrInactiveLiquidity
	}
	limit, err := tick.Validate(tk, tick.Zero, tick.DurationClasses-1)
	if err != nil {
		return err
	}

	node := l.ensure(tk)
	if node.active() {
		return nil
	}
	if !node.empty() {
		return ErrInactiveLiquidity
	}

	// Walk from the head sentinel to the insertion point.
	prev := tick.Zero
	prevNode := l.nodes[prev]
	for prevNode.Next.Cmp(tk) < 0 {
		prev = prevNode.Next
		prevNode = l.nodes[prev]
	}
	next := prevNode.Next

	if !tick.LimitSpaced(limit, prev.Limit(), l.cfg.TickLimitSpacingBps) {
		return tick.ErrInsufficientTickSpacing
	}
	if next.Cmp(tick.Max) != 0 && !tick.LimitSpaced(next.Limit(), limit, l.cfg.TickLimitSpacingBps) {
		return tick.ErrInsufficientTickSpacing
	}

	node.Prev = prev
	node.Next = next
	prevNode.Next = tk
	l.ensure(next).Prev = tk
	return nil
}

// Deposit prices and mints claim-shares at the tick for the given amount and
// returns the minted share count. The first deposit mints at par; after that
// unrealized net gain is recognized at the configured weight so neither side
// can game entry timing around interest accrual. Fresh cash may satisfy a
// queued redemption, so the node's redemption queue is processed before
// returning.
func (l *Ledger) Deposit(tk tick.Tick, amount *big.Int) (*big.Int, error) {
	if tk.IsReserved() {
		return nil, ErrInactiveLiquidity
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}

	node := l.ensure(tk)

	price := new(big.Int).Set(Wad)
	if node.Shares.Sign() != 0 {
		accrual := new(big.Int).Add(node.Available, node.Pending)
		accrual.Sub(accrual, node.Value)
		weighted := accrual.Mul(accrual, new(big.Int).SetUint64(l.cfg.DepositPricingWeightBps))
		weighted.Quo(weighted, basisPoints)
		adjusted := weighted.Add(weighted, node.Value)
		price = wadDiv(adjusted, node.Shares)
		if price.Sign() <= 0 {
			return nil, ErrInactiveLiquidity
		}
	}

	minted := wadDiv(amount, price)
	node.Value.Add(node.Value, amount)
	node.Shares.Add(node.Shares, minted)
	node.Available.Add(node.Available, amount)

	l.processRedemptions(tk, node)
	return minted, nil
}

// Use moves capital out of available cash into in-flight state: usedAmount
// leaves the idle balance and pendingAmount (the eventual repayment value,
// principal plus this node's interest share) is recorded as pending.
func (l *Ledger) Use(tk tick.Tick, usedAmount, pendingAmount *big.Int) error {
	if usedAmount == nil || usedAmount.Sign() <= 0 || pendingAmount == nil || pendingAmount.Sign() < 0 {
		return errInvalidAmount
	}
	node, ok := l.nodes[tk]
	if !ok || node.Available.Cmp(usedAmount) < 0 {
		return ErrInsufficientLiquidity
	}
	node.Available.Sub(node.Available, usedAmount)
	node.Pending.Add(node.Pending, pendingAmount)
	return nil
}

// Restore settles previously used capital. restoredAmount below used encodes
// a loss shared pro rata by every shareholder of the tier; above used it
// realizes repayment interest. Settlement can free cash or impair the node,
// so garbage collection and redemption processing both run afterwards.
func (l *Ledger) Restore(tk tick.Tick, used, pendingReleased, restoredAmount *big.Int) error {
	if used == nil || used.Sign() < 0 || pendingReleased == nil || pendingReleased.Sign() < 0 ||
		restoredAmount == nil || restoredAmount.Sign() < 0 {
		return errInvalidAmount
	}
	node, ok := l.nodes[tk]
	if !ok {
		return fmt.Errorf("ledger: restore of unknown tick %s", tk)
	}

	value := new(big.Int).Sub(node.Value, used)
	value.Add(value, restoredAmount)
	node.Value = clampZero(value)
	node.Available.Add(node.Available, restoredAmount)
	node.Pending = clampZero(new(big.Int).Sub(node.Pending, pendingReleased))

	l.garbageCollect(tk, node)
	l.processRedemptions(tk, node)
	return nil
}

func (l *Ledger) impaired(node *Node) bool {
	if node.Shares.Sign() == 0 {
		return false
	}
	return node.price().Cmp(l.cfg.ImpairmentThreshold) < 0
}

// garbageCollect unlinks an impaired or empty node from the active list.
// Accounting state is untouched so outstanding redemptions keep resolving,
// and an empty node can be instantiated again later.
func (l *Ledger) garbageCollect(tk tick.Tick, node *Node) {
	if tk.IsReserved() || !node.active() {
		return
	}
	if !l.impaired(node) && !node.empty() {
		return
	}
	l.ensure(node.Prev).Next = node.Next
	l.ensure(node.Next).Prev = node.Prev
	node.Prev = tick.Zero
	node.Next = tick.Zero
}

// Node returns a snapshot of the node at the tick.
func (l *Ledger) Node(tk tick.Tick) (NodeInfo, bool) {
	node, ok := l.nodes[tk]
	if !ok {
		return NodeInfo{}, false
	}
	return node.info(tk), true
}

// NodesInRange walks the active list and returns snapshots of every active
// non-sentinel node with start <= tick <= end.
func (l *Ledger) NodesInRange(start, end tick.Tick) []NodeInfo {
	out := make([]NodeInfo, 0)
	cur := l.nodes[tick.Zero].Next
	for cur.Cmp(tick.Max) != 0 {
		node := l.nodes[cur]
		if cur.Cmp(end) > 0 {
			break
		}
		if cur.Cmp(start) >= 0 {
			out = append(out, node.info(cur))
		}
		cur = node.Next
	}
	return out
}
