package tick

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// Tick identifies one liquidity tier. It packs a 128-bit composite key:
//
//	bits [127:8]  limit         120-bit cumulative capital ceiling, 18-decimal fixed point
//	bits [7:5]    duration      duration class index, 0 = longest committed duration
//	bits [4:2]    rate          rate class index into the interest model's rate table
//	bits [1:0]    reserved      must be zero
//
// Ticks compare by raw integer value, so ordering is limit-major. The raw
// value is held in a uint256 word, which keeps Tick a comparable value type
// usable directly as a map key.
type Tick struct {
	raw uint256.Int
}

var (
	// ErrInvalidTick reports a malformed, out-of-order, or
	// duration-incompatible tick.
	ErrInvalidTick = errors.New("tick: invalid tick")

	// ErrInsufficientTickSpacing reports a tick whose limit sits too close
	// to an already-instantiated neighbor.
	ErrInsufficientTickSpacing = errors.New("tick: insufficient tick spacing")
)

const (
	limitShift    = 8
	limitBits     = 120
	durationShift = 5
	durationMask  = 0x7
	rateShift     = 2
	rateMask      = 0x7
	reservedMask  = 0x3

	// DurationClasses is the number of encodable duration classes.
	DurationClasses = 8
	// RateClasses is the number of encodable rate classes.
	RateClasses = 8
)

// Zero is the reserved head sentinel. It is also the Tick zero value.
var Zero = Tick{}

// Max is the reserved tail sentinel (2^128 - 1). Its reserved bits are set,
// so it can never decode as a real tier.
var Max = func() Tick {
	var raw uint256.Int
	raw.SetAllOne()
	raw.Rsh(&raw, 128)
	return Tick{raw: raw}
}()

// MaxLimit is the largest encodable limit (2^120 - 1).
var MaxLimit = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), limitBits), big.NewInt(1))

// Encode packs a limit and class pair into a Tick. The limit is an 18-decimal
// fixed-point amount and must fit in 120 bits.
func Encode(limit *big.Int, duration, rate uint8) (Tick, error) {
	if limit == nil || limit.Sign() < 0 || limit.Cmp(MaxLimit) > 0 {
		return Tick{}, fmt.Errorf("%w: limit out of range", ErrInvalidTick)
	}
	if duration >= DurationClasses {
		return Tick{}, fmt.Errorf("%w: duration class %d", ErrInvalidTick, duration)
	}
	if rate >= RateClasses {
		return Tick{}, fmt.Errorf("%w: rate class %d", ErrInvalidTick, rate)
	}

	var raw uint256.Int
	raw.SetFromBig(limit)
	raw.Lsh(&raw, limitShift)
	raw.Or(&raw, uint256.NewInt(uint64(duration)<<durationShift))
	raw.Or(&raw, uint256.NewInt(uint64(rate)<<rateShift))
	return Tick{raw: raw}, nil
}

// FromHex parses a Tick from its 0x-prefixed hex form.
func FromHex(s string) (Tick, error) {
	raw, err := uint256.FromHex(s)
	if err != nil {
		return Tick{}, fmt.Errorf("%w: %v", ErrInvalidTick, err)
	}
	if raw.BitLen() > 128 {
		return Tick{}, fmt.Errorf("%w: exceeds 128 bits", ErrInvalidTick)
	}
	return Tick{raw: *raw}, nil
}

// FromBig converts a raw 128-bit key into a Tick.
func FromBig(v *big.Int) (Tick, error) {
	if v == nil || v.Sign() < 0 || v.BitLen() > 128 {
		return Tick{}, fmt.Errorf("%w: raw key out of range", ErrInvalidTick)
	}
	var raw uint256.Int
	raw.SetFromBig(v)
	return Tick{raw: raw}, nil
}

// Limit returns the decoded capital limit.
func (t Tick) Limit() *big.Int {
	limit := new(uint256.Int).Rsh(&t.raw, limitShift)
	return limit.ToBig()
}

// Duration returns the duration class index.
func (t Tick) Duration() uint8 {
	return uint8(t.raw.Uint64() >> durationShift & durationMask)
}

// Rate returns the rate class index.
func (t Tick) Rate() uint8 {
	return uint8(t.raw.Uint64() >> rateShift & rateMask)
}

// Decode unpacks the tick into its limit and class fields.
func (t Tick) Decode() (limit *big.Int, duration, rate uint8) {
	return t.Limit(), t.Duration(), t.Rate()
}

// Cmp compares two ticks by raw key order.
func (t Tick) Cmp(other Tick) int {
	return t.raw.Cmp(&other.raw)
}

// IsReserved reports whether the tick is one of the list sentinels.
func (t Tick) IsReserved() bool {
	return t.raw.IsZero() || t.Cmp(Max) == 0
}

// IsZero reports whether the tick is the zero value (the head sentinel).
func (t Tick) IsZero() bool {
	return t.raw.IsZero()
}

// Hex returns the 0x-prefixed hex form of the raw key.
func (t Tick) Hex() string {
	return t.raw.Hex()
}

func (t Tick) String() string {
	return t.raw.Hex()
}

// Big returns the raw key as a big integer.
func (t Tick) Big() *big.Int {
	return t.raw.ToBig()
}

// Validate checks a tick against its predecessor in a sourcing list and the
// requested loan duration class. Keys must be strictly ascending, reserved
// bits must be clear, and the tick's committed duration must cover the loan
// duration (its class index must not exceed the loan's). Returns the decoded
// limit on success.
func Validate(t, prev Tick, durationClass uint8) (*big.Int, error) {
	if t.Cmp(prev) <= 0 {
		return nil, fmt.Errorf("%w: not strictly ascending", ErrInvalidTick)
	}
	if t.raw.Uint64()&reservedMask != 0 {
		return nil, fmt.Errorf("%w: reserved bits set", ErrInvalidTick)
	}
	if t.Duration() > durationClass {
		return nil, fmt.Errorf("%w: duration class %d exceeds loan class %d", ErrInvalidTick, t.Duration(), durationClass)
	}
	return t.Limit(), nil
}

// LimitSpaced reports whether limit keeps at least spacingBps relative
// distance above base. Exactly equal limits are always allowed, so multiple
// rate or duration classes can share one limit.
func LimitSpaced(limit, base *big.Int, spacingBps uint64) bool {
	if limit.Cmp(base) == 0 {
		return true
	}
	lo, hi := base, limit
	if lo.Cmp(hi) > 0 {
		lo, hi = hi, lo
	}
	minGap := new(big.Int).Mul(lo, new(big.Int).SetUint64(spacingBps))
	minGap.Quo(minGap, big.NewInt(10_000))
	gap := new(big.Int).Sub(hi, lo)
	return gap.Cmp(minGap) >= 0
}
