package pool

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"tickpool/internal/ledger"
	"tickpool/internal/tick"
)

var (
	ErrNoDeposit            = errors.New("pool: no deposit")
	ErrInsufficientShares   = errors.New("pool: insufficient shares")
	ErrRedemptionInProgress = errors.New("pool: redemption in progress")
	ErrUnknownLoan          = errors.New("pool: unknown loan")
	ErrDuplicateLoan        = errors.New("pool: duplicate loan")
	ErrInvalidDuration      = errors.New("pool: invalid duration class")
)

// Deposit is one account's position in one tick: the shares it holds plus
// the snapshot of its outstanding redemption, if any.
type Deposit struct {
	Shares            *big.Int
	RedemptionPending *big.Int
	RedemptionIndex   uint64
	RedemptionTarget  *big.Int
}

func (d *Deposit) redeeming() bool {
	return d.RedemptionPending != nil && d.RedemptionPending.Sign() > 0
}

// LoanAllocation records what one tick contributed to a loan: the principal
// drawn and the amount due back including that tick's interest.
type LoanAllocation struct {
	Tick    tick.Tick
	Used    *big.Int
	Pending *big.Int
}

// Loan is an outstanding draw across one or more ticks.
type Loan struct {
	ID            common.Hash
	Borrower      common.Address
	Principal     *big.Int
	Interest      *big.Int
	DurationClass uint8
	Allocations   []LoanAllocation
}

// Config carries the pool's policy constants.
type Config struct {
	// Ledger is the policy for the underlying liquidity ledger.
	Ledger ledger.Config
	// Durations maps duration class to loan duration in seconds. Class 0 is
	// the longest; entries must be descending.
	Durations []uint64
}

// DefaultDurations returns the standard duration table, 30 days down to one
// hour across the eight classes.
func DefaultDurations() []uint64 {
	return []uint64{
		30 * 86_400,
		14 * 86_400,
		7 * 86_400,
		3 * 86_400,
		86_400,
		8 * 3_600,
		4 * 3_600,
		3_600,
	}
}

// Pool ties the liquidity ledger to accounts and loans. It owns share
// custody per (account, tick), the loan book, and the interest policy.
// All methods are safe for concurrent use.
type Pool struct {
	mu       sync.Mutex
	cfg      Config
	ledger   *ledger.Ledger
	model    InterestModel
	deposits map[common.Address]map[tick.Tick]*Deposit
	loans    map[common.Hash]*Loan
}

// New constructs an empty pool. A nil model falls back to the default
// weighted rate model.
func New(cfg Config, model InterestModel) *Pool {
	if len(cfg.Durations) == 0 {
		cfg.Durations = DefaultDurations()
	}
	if model == nil {
		model = NewWeightedRateModel(nil)
	}
	return &Pool{
		cfg:      cfg,
		ledger:   ledger.New(cfg.Ledger),
		model:    model,
		deposits: make(map[common.Address]map[tick.Tick]*Deposit),
		loans:    make(map[common.Hash]*Loan),
	}
}

func (p *Pool) deposit(account common.Address, tk tick.Tick) *Deposit {
	byTick, ok := p.deposits[account]
	if !ok {
		byTick = make(map[tick.Tick]*Deposit)
		p.deposits[account] = byTick
	}
	dep, ok := byTick[tk]
	if !ok {
		dep = &Deposit{
			Shares:            new(big.Int),
			RedemptionPending: new(big.Int),
			RedemptionTarget:  new(big.Int),
		}
		byTick[tk] = dep
	}
	return dep
}

// Deposit places amount into the tick for account, instantiating the tick
// when needed, and returns the shares minted.
func (p *Pool) Deposit(account common.Address, tk tick.Tick, amount *big.Int) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ledger.Instantiate(tk); err != nil {
		return nil, err
	}
	shares, err := p.ledger.Deposit(tk, amount)
	if err != nil {
		return nil, err
	}
	dep := p.deposit(account, tk)
	dep.Shares = new(big.Int).Add(dep.Shares, shares)
	return shares, nil
}

// Redeem queues shares of account's position for redemption. A deposit can
// carry at most one outstanding redemption.
func (p *Pool) Redeem(account common.Address, tk tick.Tick, shares *big.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	byTick, ok := p.deposits[account]
	if !ok {
		return ErrNoDeposit
	}
	dep, ok := byTick[tk]
	if !ok {
		return ErrNoDeposit
	}
	if dep.redeeming() {
		return ErrRedemptionInProgress
	}
	if shares == nil || shares.Sign() <= 0 || shares.Cmp(dep.Shares) > 0 {
		return ErrInsufficientShares
	}

	index, target, err := p.ledger.Redeem(tk, shares)
	if err != nil {
		return err
	}
	dep.RedemptionPending = new(big.Int).Set(shares)
	dep.RedemptionIndex = index
	dep.RedemptionTarget = target
	return nil
}

// Withdraw drains whatever of account's outstanding redemption has been
// fulfilled so far and returns the shares retired and the amount paid out.
// No progress is not an error: both returns are zero.
func (p *Pool) Withdraw(account common.Address, tk tick.Tick) (*big.Int, *big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	byTick, ok := p.deposits[account]
	if !ok {
		return nil, nil, ErrNoDeposit
	}
	dep, ok := byTick[tk]
	if !ok {
		return nil, nil, ErrNoDeposit
	}
	if !dep.redeeming() {
		return new(big.Int), new(big.Int), nil
	}

	shares, amount := p.ledger.RedemptionAvailable(tk, dep.RedemptionPending, dep.RedemptionIndex, dep.RedemptionTarget)
	if shares.Sign() == 0 {
		return new(big.Int), new(big.Int), nil
	}

	dep.Shares = new(big.Int).Sub(dep.Shares, shares)
	dep.RedemptionPending = new(big.Int).Sub(dep.RedemptionPending, shares)
	dep.RedemptionTarget = new(big.Int).Add(dep.RedemptionTarget, shares)
	if dep.RedemptionPending.Sign() == 0 {
		dep.RedemptionTarget = new(big.Int)
	}
	return shares, amount, nil
}

// Position returns a copy of account's deposit record in tk.
func (p *Pool) Position(account common.Address, tk tick.Tick) (Deposit, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	byTick, ok := p.deposits[account]
	if !ok {
		return Deposit{}, false
	}
	dep, ok := byTick[tk]
	if !ok {
		return Deposit{}, false
	}
	return Deposit{
		Shares:            new(big.Int).Set(dep.Shares),
		RedemptionPending: new(big.Int).Set(dep.RedemptionPending),
		RedemptionIndex:   dep.RedemptionIndex,
		RedemptionTarget:  new(big.Int).Set(dep.RedemptionTarget),
	}, true
}

// Borrow sources principal from the candidate ticks, prices the loan with
// the interest policy, and locks each funding tick's contribution plus its
// interest share until repayment.
func (p *Pool) Borrow(id common.Hash, borrower common.Address, principal *big.Int, durationClass uint8, ticks []tick.Tick, multiplier uint64) (*Loan, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.loans[id]; ok {
		return nil, ErrDuplicateLoan
	}
	if int(durationClass) >= len(p.cfg.Durations) {
		return nil, ErrInvalidDuration
	}

	allocations, err := p.ledger.Source(principal, ticks, multiplier, durationClass)
	if err != nil {
		return nil, err
	}

	rate := p.model.Rate(principal, allocations)
	duration := new(big.Int).SetUint64(p.cfg.Durations[durationClass])
	interest := new(big.Int).Mul(principal, rate)
	interest.Mul(interest, duration)
	interest.Quo(interest, ledger.Wad)
	perTick := p.model.Distribute(principal, interest, allocations)

	loan := &Loan{
		ID:            id,
		Borrower:      borrower,
		Principal:     new(big.Int).Set(principal),
		Interest:      interest,
		DurationClass: durationClass,
	}
	for i, alloc := range allocations {
		if alloc.Amount.Sign() == 0 {
			continue
		}
		pending := new(big.Int).Add(alloc.Amount, perTick[i])
		if err := p.ledger.Use(alloc.Tick, alloc.Amount, pending); err != nil {
			return nil, fmt.Errorf("use tick %s: %w", alloc.Tick, err)
		}
		loan.Allocations = append(loan.Allocations, LoanAllocation{
			Tick:    alloc.Tick,
			Used:    alloc.Amount,
			Pending: pending,
		})
	}
	p.loans[id] = loan
	return loan, nil
}

// Repay settles the loan, restoring each funding tick with its principal
// plus interest prorated by elapsedBps over the loan's full term. Full
// repayment is elapsedBps = 10000.
func (p *Pool) Repay(id common.Hash, elapsedBps uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	loan, ok := p.loans[id]
	if !ok {
		return ErrUnknownLoan
	}
	if elapsedBps > 10_000 {
		elapsedBps = 10_000
	}

	for _, alloc := range loan.Allocations {
		interest := new(big.Int).Sub(alloc.Pending, alloc.Used)
		interest.Mul(interest, new(big.Int).SetUint64(elapsedBps))
		interest.Quo(interest, big.NewInt(10_000))
		restored := new(big.Int).Add(alloc.Used, interest)
		if err := p.ledger.Restore(alloc.Tick, alloc.Used, alloc.Pending, restored); err != nil {
			return fmt.Errorf("restore tick %s: %w", alloc.Tick, err)
		}
	}
	delete(p.loans, id)
	return nil
}

// Liquidate settles a defaulted loan from its recovery proceeds. Lower
// ticks are made whole first; any shortfall lands on the highest ticks.
func (p *Pool) Liquidate(id common.Hash, proceeds *big.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	loan, ok := p.loans[id]
	if !ok {
		return ErrUnknownLoan
	}
	remaining := new(big.Int)
	if proceeds != nil {
		remaining.Set(proceeds)
	}

	for _, alloc := range loan.Allocations {
		restored := new(big.Int).Set(remaining)
		if restored.Cmp(alloc.Pending) > 0 {
			restored.Set(alloc.Pending)
		}
		remaining.Sub(remaining, restored)
		if err := p.ledger.Restore(alloc.Tick, alloc.Used, alloc.Pending, restored); err != nil {
			return fmt.Errorf("restore tick %s: %w", alloc.Tick, err)
		}
	}
	delete(p.loans, id)
	return nil
}

// Loan returns a copy of the outstanding loan with id.
func (p *Pool) Loan(id common.Hash) (Loan, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	loan, ok := p.loans[id]
	if !ok {
		return Loan{}, false
	}
	return *loan, true
}

// LoanCount returns the number of outstanding loans.
func (p *Pool) LoanCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.loans)
}

// TickSnapshots returns the state of every active tick, ascending.
func (p *Pool) TickSnapshots() []ledger.NodeInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ledger.NodesInRange(tick.Zero, tick.Max)
}

// Tick returns the state of a single tick's node.
func (p *Pool) Tick(tk tick.Tick) (ledger.NodeInfo, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ledger.Node(tk)
}
