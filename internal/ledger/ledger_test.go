package ledger

import (
	"errors"
	"math/big"
	"testing"

	"tickpool/internal/tick"
)

func wad(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), Wad)
}

func mustTick(t *testing.T, limit int64, duration, rate uint8) tick.Tick {
	t.Helper()
	tk, err := tick.Encode(wad(limit), duration, rate)
	if err != nil {
		t.Fatalf("encode tick: %v", err)
	}
	return tk
}

func mustInstantiate(t *testing.T, l *Ledger, tk tick.Tick) {
	t.Helper()
	if err := l.Instantiate(tk); err != nil {
		t.Fatalf("instantiate %s: %v", tk, err)
	}
}

func mustDeposit(t *testing.T, l *Ledger, tk tick.Tick, amount *big.Int) *big.Int {
	t.Helper()
	shares, err := l.Deposit(tk, amount)
	if err != nil {
		t.Fatalf("deposit %s: %v", amount, err)
	}
	return shares
}

func TestDepositAtParMintsOneToOne(t *testing.T) {
	l := New(Config{})
	tk := mustTick(t, 100, 0, 0)
	mustInstantiate(t, l, tk)

	shares := mustDeposit(t, l, tk, wad(100))
	if shares.Cmp(wad(100)) != 0 {
		t.Fatalf("par deposit minted %s shares, want %s", shares, wad(100))
	}

	info, ok := l.Node(tk)
	if !ok {
		t.Fatalf("node missing")
	}
	if info.Value.Cmp(wad(100)) != 0 || info.Shares.Cmp(wad(100)) != 0 || info.Available.Cmp(wad(100)) != 0 {
		t.Fatalf("node state mismatch: %+v", info)
	}
	if !info.Active {
		t.Fatalf("instantiated node must be active")
	}
}

func TestDepositOnReservedTickFails(t *testing.T) {
	l := New(Config{})
	if _, err := l.Deposit(tick.Zero, wad(1)); !errors.Is(err, ErrInactiveLiquidity) {
		t.Fatalf("expected ErrInactiveLiquidity for head sentinel, got %v", err)
	}
	if _, err := l.Deposit(tick.Max, wad(1)); !errors.Is(err, ErrInactiveLiquidity) {
		t.Fatalf("expected ErrInactiveLiquidity for tail sentinel, got %v", err)
	}
}

func TestUseRestoreAccruesIntoSharePrice(t *testing.T) {
	l := New(Config{})
	tk := mustTick(t, 100, 0, 0)
	mustInstantiate(t, l, tk)
	mustDeposit(t, l, tk, wad(100))

	if err := l.Use(tk, wad(40), wad(42)); err != nil {
		t.Fatalf("use: %v", err)
	}
	info, _ := l.Node(tk)
	if info.Value.Cmp(wad(100)) != 0 {
		t.Fatalf("use must not change value, got %s", info.Value)
	}
	if info.Available.Cmp(wad(60)) != 0 || info.Pending.Cmp(wad(42)) != 0 {
		t.Fatalf("use balances mismatch: available=%s pending=%s", info.Available, info.Pending)
	}

	if err := l.Restore(tk, wad(40), wad(42), wad(44)); err != nil {
		t.Fatalf("restore: %v", err)
	}
	info, _ = l.Node(tk)
	if info.Value.Cmp(wad(104)) != 0 || info.Available.Cmp(wad(104)) != 0 || info.Pending.Sign() != 0 {
		t.Fatalf("restore balances mismatch: %+v", info)
	}

	// A new depositor now buys in at 1.04 per share.
	shares := mustDeposit(t, l, tk, wad(10))
	want, _ := new(big.Int).SetString("9615384615384615384", 10)
	if shares.Cmp(want) != 0 {
		t.Fatalf("post-accrual deposit minted %s shares, want %s", shares, want)
	}
}

func TestDepositPricingWeighsUnrealizedGain(t *testing.T) {
	l := New(Config{})
	tk := mustTick(t, 100, 0, 0)
	mustInstantiate(t, l, tk)
	mustDeposit(t, l, tk, wad(100))

	// 100 out, 104 due back: 4 of unrealized gain, recognized at half weight.
	if err := l.Use(tk, wad(100), wad(104)); err != nil {
		t.Fatalf("use: %v", err)
	}

	shares := mustDeposit(t, l, tk, wad(102))
	// price = (100 + 4/2) / 100 = 1.02, so 102 buys exactly 100 shares.
	if shares.Cmp(wad(100)) != 0 {
		t.Fatalf("weighted pricing minted %s shares, want %s", shares, wad(100))
	}
}

func TestUseInsufficientAvailable(t *testing.T) {
	l := New(Config{})
	tk := mustTick(t, 100, 0, 0)
	mustInstantiate(t, l, tk)
	mustDeposit(t, l, tk, wad(50))

	if err := l.Use(tk, wad(60), wad(61)); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected ErrInsufficientLiquidity, got %v", err)
	}
	info, _ := l.Node(tk)
	if info.Available.Cmp(wad(50)) != 0 || info.Pending.Sign() != 0 {
		t.Fatalf("failed use must leave node untouched: %+v", info)
	}
}

func TestValueConservationAcrossUse(t *testing.T) {
	l := New(Config{})
	a := mustTick(t, 100, 0, 0)
	b := mustTick(t, 200, 0, 0)
	mustInstantiate(t, l, a)
	mustInstantiate(t, l, b)
	mustDeposit(t, l, a, wad(100))
	mustDeposit(t, l, b, wad(300))

	total := func() *big.Int {
		sum := new(big.Int)
		for _, info := range l.NodesInRange(tick.Zero, tick.Max) {
			sum.Add(sum, info.Value)
		}
		return sum
	}

	before := total()
	if err := l.Use(a, wad(70), wad(75)); err != nil {
		t.Fatalf("use a: %v", err)
	}
	if err := l.Use(b, wad(100), wad(108)); err != nil {
		t.Fatalf("use b: %v", err)
	}
	if total().Cmp(before) != 0 {
		t.Fatalf("use changed total value: %s != %s", total(), before)
	}

	// Restore with interest grows value by exactly the net delta.
	if err := l.Restore(a, wad(70), wad(75), wad(75)); err != nil {
		t.Fatalf("restore a: %v", err)
	}
	want := new(big.Int).Add(before, wad(5))
	if total().Cmp(want) != 0 {
		t.Fatalf("restore delta mismatch: %s != %s", total(), want)
	}
}

func TestRestoreLossSocializesAcrossShareholders(t *testing.T) {
	l := New(Config{ImpairmentThreshold: big.NewInt(1)})
	tk := mustTick(t, 100, 0, 0)
	mustInstantiate(t, l, tk)
	mustDeposit(t, l, tk, wad(60))
	mustDeposit(t, l, tk, wad(40))

	if err := l.Use(tk, wad(100), wad(105)); err != nil {
		t.Fatalf("use: %v", err)
	}
	// Half the principal comes back: a 50-unit loss against 100 shares.
	if err := l.Restore(tk, wad(100), wad(105), wad(50)); err != nil {
		t.Fatalf("restore: %v", err)
	}

	info, _ := l.Node(tk)
	if info.Value.Cmp(wad(50)) != 0 || info.Shares.Cmp(wad(100)) != 0 {
		t.Fatalf("loss accounting mismatch: value=%s shares=%s", info.Value, info.Shares)
	}
	// Price halves for every holder pro rata rather than first-in-first-out.
	price := wadDiv(info.Value, info.Shares)
	if price.Cmp(new(big.Int).Quo(Wad, big.NewInt(2))) != 0 {
		t.Fatalf("price after loss: %s", price)
	}
}

func TestInstantiateSpacing(t *testing.T) {
	l := New(Config{})
	base := mustTick(t, 100, 0, 0)
	mustInstantiate(t, l, base)

	tooClose := mustTick(t, 105, 0, 0)
	if err := l.Instantiate(tooClose); !errors.Is(err, tick.ErrInsufficientTickSpacing) {
		t.Fatalf("expected ErrInsufficientTickSpacing, got %v", err)
	}

	// Equal limit at a different rate class is always admissible.
	sameLimit := mustTick(t, 100, 0, 1)
	mustInstantiate(t, l, sameLimit)

	spaced := mustTick(t, 110, 0, 0)
	mustInstantiate(t, l, spaced)

	// Inserting between 100 and 110 violates spacing on both sides.
	between := mustTick(t, 101, 0, 0)
	if err := l.Instantiate(between); !errors.Is(err, tick.ErrInsufficientTickSpacing) {
		t.Fatalf("expected ErrInsufficientTickSpacing between neighbors, got %v", err)
	}
}

func TestInstantiateIdempotentWhileActive(t *testing.T) {
	l := New(Config{})
	tk := mustTick(t, 100, 0, 0)
	mustInstantiate(t, l, tk)
	mustDeposit(t, l, tk, wad(10))
	mustInstantiate(t, l, tk) // no-op
	info, _ := l.Node(tk)
	if info.Value.Cmp(wad(10)) != 0 {
		t.Fatalf("re-instantiation must not touch balances: %+v", info)
	}
}

func TestGarbageCollectedImpairedNodeCannotResurrect(t *testing.T) {
	l := New(Config{})
	tk := mustTick(t, 100, 0, 0)
	mustInstantiate(t, l, tk)
	mustDeposit(t, l, tk, wad(100))

	if err := l.Use(tk, wad(100), wad(102)); err != nil {
		t.Fatalf("use: %v", err)
	}
	// Deep loss: price falls to 0.1, below the default half-of-par threshold.
	if err := l.Restore(tk, wad(100), wad(102), wad(10)); err != nil {
		t.Fatalf("restore: %v", err)
	}

	info, _ := l.Node(tk)
	if info.Active {
		t.Fatalf("impaired node should be unlinked")
	}
	if info.Value.Sign() == 0 {
		t.Fatalf("garbage collection must preserve accounting state")
	}

	if err := l.Instantiate(tk); !errors.Is(err, ErrInactiveLiquidity) {
		t.Fatalf("expected ErrInactiveLiquidity for non-empty inactive node, got %v", err)
	}
}

func TestEmptyNodeResurrects(t *testing.T) {
	l := New(Config{})
	tk := mustTick(t, 100, 0, 0)
	mustInstantiate(t, l, tk)
	mustDeposit(t, l, tk, wad(100))

	// Redeeming everything drains the node and unlinks it.
	if _, _, err := l.Redeem(tk, wad(100)); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	info, _ := l.Node(tk)
	if info.Active || !isEmptyInfo(info) {
		t.Fatalf("expected empty inactive node, got %+v", info)
	}

	mustInstantiate(t, l, tk)
	info, _ = l.Node(tk)
	if !info.Active {
		t.Fatalf("empty node must be resurrectable")
	}
}

func isEmptyInfo(info NodeInfo) bool {
	return info.Value.Sign() == 0 && info.Shares.Sign() == 0 &&
		info.Available.Sign() == 0 && info.Pending.Sign() == 0
}

func TestNodesInRangeWalksActiveList(t *testing.T) {
	l := New(Config{})
	ticks := []tick.Tick{
		mustTick(t, 100, 0, 0),
		mustTick(t, 200, 0, 0),
		mustTick(t, 400, 0, 0),
	}
	// Instantiate out of order; the list must stay sorted.
	mustInstantiate(t, l, ticks[2])
	mustInstantiate(t, l, ticks[0])
	mustInstantiate(t, l, ticks[1])

	infos := l.NodesInRange(tick.Zero, tick.Max)
	if len(infos) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(infos))
	}
	for i, info := range infos {
		if info.Tick.Cmp(ticks[i]) != 0 {
			t.Fatalf("node %d out of order: %s", i, info.Tick)
		}
	}

	partial := l.NodesInRange(ticks[1], ticks[1])
	if len(partial) != 1 || partial[0].Tick.Cmp(ticks[1]) != 0 {
		t.Fatalf("range query mismatch: %+v", partial)
	}
}
