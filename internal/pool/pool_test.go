package pool

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"tickpool/internal/ledger"
	"tickpool/internal/tick"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func wad(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), ledger.Wad)
}

func mustTick(t *testing.T, limit int64, duration, rate uint8) tick.Tick {
	t.Helper()
	tk, err := tick.Encode(wad(limit), duration, rate)
	if err != nil {
		t.Fatalf("encode tick: %v", err)
	}
	return tk
}

// flatRateModel charges a fixed per-second rate regardless of tick mix and
// splits interest pro rata by contribution.
type flatRateModel struct {
	rate *big.Int
}

func (m *flatRateModel) Rate(amount *big.Int, allocations []ledger.Allocation) *big.Int {
	return new(big.Int).Set(m.rate)
}

func (m *flatRateModel) Distribute(amount, interest *big.Int, allocations []ledger.Allocation) []*big.Int {
	shares := make([]*big.Int, len(allocations))
	distributed := new(big.Int)
	for i, alloc := range allocations {
		share := new(big.Int).Mul(interest, alloc.Amount)
		share.Quo(share, amount)
		shares[i] = share
		distributed.Add(distributed, share)
	}
	if len(shares) > 0 {
		shares[0].Add(shares[0], new(big.Int).Sub(interest, distributed))
	}
	return shares
}

// tenPercentPerTerm returns a model whose interest over the given term works
// out to exactly 10% of principal.
func tenPercentPerTerm(durationSecs uint64) InterestModel {
	rate := new(big.Int).Quo(ledger.Wad, big.NewInt(10))
	rate.Quo(rate, new(big.Int).SetUint64(durationSecs))
	return &flatRateModel{rate: rate}
}

func newTestPool(t *testing.T) *Pool {
	t.Helper()
	cfg := Config{Durations: []uint64{1_000_000, 100_000}}
	return New(cfg, tenPercentPerTerm(1_000_000))
}

func TestDepositAndWithdrawRoundTrip(t *testing.T) {
	p := newTestPool(t)
	tk := mustTick(t, 100, 0, 0)

	shares, err := p.Deposit(alice, tk, wad(100))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if shares.Cmp(wad(100)) != 0 {
		t.Fatalf("minted %s shares, want %s", shares, wad(100))
	}

	if err := p.Redeem(alice, tk, wad(100)); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	retired, amount, err := p.Withdraw(alice, tk)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if retired.Cmp(wad(100)) != 0 || amount.Cmp(wad(100)) != 0 {
		t.Fatalf("withdraw = (%s, %s), want (%s, %s)", retired, amount, wad(100), wad(100))
	}

	dep, ok := p.Position(alice, tk)
	if !ok {
		t.Fatalf("position missing")
	}
	if dep.Shares.Sign() != 0 || dep.RedemptionPending.Sign() != 0 {
		t.Fatalf("position not drained: %+v", dep)
	}
}

func TestRedeemGuards(t *testing.T) {
	p := newTestPool(t)
	tk := mustTick(t, 100, 0, 0)

	if err := p.Redeem(alice, tk, wad(1)); !errors.Is(err, ErrNoDeposit) {
		t.Fatalf("expected ErrNoDeposit, got %v", err)
	}

	if _, err := p.Deposit(alice, tk, wad(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := p.Redeem(alice, tk, wad(11)); !errors.Is(err, ErrInsufficientShares) {
		t.Fatalf("expected ErrInsufficientShares, got %v", err)
	}
	if err := p.Redeem(alice, tk, wad(5)); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if err := p.Redeem(alice, tk, wad(1)); !errors.Is(err, ErrRedemptionInProgress) {
		t.Fatalf("expected ErrRedemptionInProgress, got %v", err)
	}
}

func TestBorrowRepayAccruesInterest(t *testing.T) {
	p := newTestPool(t)
	tk := mustTick(t, 100, 0, 0)
	if _, err := p.Deposit(alice, tk, wad(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	id := common.HexToHash("0x01")
	loan, err := p.Borrow(id, bob, wad(100), 0, []tick.Tick{tk}, 1)
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if loan.Interest.Cmp(wad(10)) != 0 {
		t.Fatalf("interest = %s, want %s", loan.Interest, wad(10))
	}
	if len(loan.Allocations) != 1 || loan.Allocations[0].Pending.Cmp(wad(110)) != 0 {
		t.Fatalf("allocations = %+v", loan.Allocations)
	}

	info, _ := p.Tick(tk)
	if info.Available.Sign() != 0 || info.Pending.Cmp(wad(110)) != 0 {
		t.Fatalf("tick while borrowed: %+v", info)
	}

	if err := p.Repay(id, 10_000); err != nil {
		t.Fatalf("repay: %v", err)
	}
	info, _ = p.Tick(tk)
	if info.Value.Cmp(wad(110)) != 0 || info.Available.Cmp(wad(110)) != 0 {
		t.Fatalf("tick after repayment: %+v", info)
	}
	if _, ok := p.Loan(id); ok {
		t.Fatalf("repaid loan must leave the book")
	}
}

func TestRepayProratesInterest(t *testing.T) {
	p := newTestPool(t)
	tk := mustTick(t, 100, 0, 0)
	if _, err := p.Deposit(alice, tk, wad(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	id := common.HexToHash("0x02")
	if _, err := p.Borrow(id, bob, wad(100), 0, []tick.Tick{tk}, 1); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	// Half the term elapsed: half the interest is due.
	if err := p.Repay(id, 5_000); err != nil {
		t.Fatalf("repay: %v", err)
	}

	info, _ := p.Tick(tk)
	if info.Value.Cmp(wad(105)) != 0 {
		t.Fatalf("value after prorated repayment = %s, want %s", info.Value, wad(105))
	}
}

func TestBorrowSpansTicks(t *testing.T) {
	p := newTestPool(t)
	a := mustTick(t, 100, 0, 0)
	b := mustTick(t, 200, 0, 0)
	if _, err := p.Deposit(alice, a, wad(80)); err != nil {
		t.Fatalf("deposit a: %v", err)
	}
	if _, err := p.Deposit(bob, b, wad(200)); err != nil {
		t.Fatalf("deposit b: %v", err)
	}

	id := common.HexToHash("0x03")
	loan, err := p.Borrow(id, bob, wad(150), 0, []tick.Tick{a, b}, 1)
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if len(loan.Allocations) != 2 {
		t.Fatalf("allocations = %+v", loan.Allocations)
	}
	if loan.Allocations[0].Used.Cmp(wad(80)) != 0 || loan.Allocations[1].Used.Cmp(wad(70)) != 0 {
		t.Fatalf("draws = %s, %s", loan.Allocations[0].Used, loan.Allocations[1].Used)
	}
	// 15 of interest split pro rata: 8 against the 80 draw, 7 against the 70.
	if loan.Allocations[0].Pending.Cmp(wad(88)) != 0 || loan.Allocations[1].Pending.Cmp(wad(77)) != 0 {
		t.Fatalf("pending = %s, %s", loan.Allocations[0].Pending, loan.Allocations[1].Pending)
	}
}

func TestLiquidateSocializesLossIntoHigherTicks(t *testing.T) {
	p := newTestPool(t)
	a := mustTick(t, 100, 0, 0)
	b := mustTick(t, 200, 0, 0)
	if _, err := p.Deposit(alice, a, wad(80)); err != nil {
		t.Fatalf("deposit a: %v", err)
	}
	if _, err := p.Deposit(bob, b, wad(200)); err != nil {
		t.Fatalf("deposit b: %v", err)
	}

	id := common.HexToHash("0x04")
	if _, err := p.Borrow(id, bob, wad(150), 0, []tick.Tick{a, b}, 1); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	// Recovery covers the lower tick's 88 in full; the higher tick gets the
	// remaining 12 against 77 due.
	if err := p.Liquidate(id, wad(100)); err != nil {
		t.Fatalf("liquidate: %v", err)
	}

	infoA, _ := p.Tick(a)
	if infoA.Value.Cmp(wad(88)) != 0 {
		t.Fatalf("lower tick value = %s, want %s", infoA.Value, wad(88))
	}
	infoB, _ := p.Tick(b)
	// 200 - 70 lost + 12 recovered = 142.
	if infoB.Value.Cmp(wad(142)) != 0 {
		t.Fatalf("higher tick value = %s, want %s", infoB.Value, wad(142))
	}
}

func TestBorrowGuards(t *testing.T) {
	p := newTestPool(t)
	tk := mustTick(t, 100, 0, 0)
	if _, err := p.Deposit(alice, tk, wad(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	id := common.HexToHash("0x05")
	if _, err := p.Borrow(id, bob, wad(50), 0, []tick.Tick{tk}, 1); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if _, err := p.Borrow(id, bob, wad(1), 0, []tick.Tick{tk}, 1); !errors.Is(err, ErrDuplicateLoan) {
		t.Fatalf("expected ErrDuplicateLoan, got %v", err)
	}
	if _, err := p.Borrow(common.HexToHash("0x06"), bob, wad(1), 7, []tick.Tick{tk}, 1); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
	if _, err := p.Borrow(common.HexToHash("0x07"), bob, wad(500), 0, []tick.Tick{tk}, 1); !errors.Is(err, ledger.ErrInsufficientLiquidity) {
		t.Fatalf("expected ErrInsufficientLiquidity, got %v", err)
	}
	if err := p.Repay(common.HexToHash("0xff"), 10_000); !errors.Is(err, ErrUnknownLoan) {
		t.Fatalf("expected ErrUnknownLoan, got %v", err)
	}
}

func TestWithdrawPartialAcrossRepayment(t *testing.T) {
	p := newTestPool(t)
	tk := mustTick(t, 100, 0, 0)
	if _, err := p.Deposit(alice, tk, wad(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	id := common.HexToHash("0x08")
	if _, err := p.Borrow(id, bob, wad(100), 0, []tick.Tick{tk}, 1); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if err := p.Redeem(alice, tk, wad(100)); err != nil {
		t.Fatalf("redeem: %v", err)
	}

	// Nothing available while the loan is out.
	retired, amount, err := p.Withdraw(alice, tk)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if retired.Sign() != 0 || amount.Sign() != 0 {
		t.Fatalf("premature withdrawal: (%s, %s)", retired, amount)
	}

	// A second depositor frees part of the position.
	if _, err := p.Deposit(bob, tk, wad(30)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	retired, _, err = p.Withdraw(alice, tk)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if retired.Sign() == 0 {
		t.Fatalf("expected partial fill after fresh deposit")
	}

	// Repayment completes the redemption at a gain.
	if err := p.Repay(id, 10_000); err != nil {
		t.Fatalf("repay: %v", err)
	}
	rest, amount, err := p.Withdraw(alice, tk)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	total := new(big.Int).Add(retired, rest)
	if total.Cmp(wad(100)) != 0 {
		t.Fatalf("retired %s shares in total, want %s", total, wad(100))
	}
	if amount.Sign() <= 0 {
		t.Fatalf("final withdrawal paid nothing")
	}

	dep, _ := p.Position(alice, tk)
	if dep.Shares.Sign() != 0 || dep.RedemptionPending.Sign() != 0 {
		t.Fatalf("position not drained: %+v", dep)
	}
}
