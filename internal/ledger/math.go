package ledger

import "math/big"

// Wad is the 18-decimal fixed-point scale shared by all currency and share
// amounts in the ledger.
var Wad = big.NewInt(1_000_000_000_000_000_000)

var basisPoints = big.NewInt(10_000)

// maxShares marks an in-flight redemption batch that has not been resolved
// yet. It can never occur as a real fulfilled share count because share
// amounts fit in 128 bits minus accumulated truncation.
var maxShares = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

func bigZero() *big.Int {
	return new(big.Int)
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

func maxBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

func clampZero(v *big.Int) *big.Int {
	if v.Sign() < 0 {
		return bigZero()
	}
	return v
}

// wadMul computes a*b/1e18 with truncation.
func wadMul(a, b *big.Int) *big.Int {
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, Wad)
}

// wadDiv computes a*1e18/b with truncation. Division by zero yields zero.
func wadDiv(a, b *big.Int) *big.Int {
	if b.Sign() == 0 {
		return bigZero()
	}
	out := new(big.Int).Mul(a, Wad)
	return out.Quo(out, b)
}
