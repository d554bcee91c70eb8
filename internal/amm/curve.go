// Package amm reproduces the market contract's constant-product bonding
// curve off-chain. Every function here is pure and side-effect free.
//
// The contract settles in 18-decimal fixed-point integers with floor
// division, so all trade-sizing math below runs on *big.Int wad values with
// the same truncation the EVM applies. Floating point is only used for
// derived display quantities (the implied probability), never to size a
// trade.
package amm

import (
	"math/big"

	"github.com/yifanzh/predmirror/internal/domain"
)

var (
	// Wad is one whole token in 18-decimal fixed point.
	Wad = big.NewInt(1e18)

	// VirtualReserve is the constant the contract adds to both pred
	// reserves (1000 tokens) to keep the implied price inside (0,1) even
	// when real reserves are empty.
	VirtualReserve = new(big.Int).Mul(big.NewInt(1000), Wad)
)

// zero is shared by fail-closed paths; callers must not mutate results.
var zero = new(big.Int)

func orZero(x *big.Int) *big.Int {
	if x == nil {
		return zero
	}
	return x
}

// Price returns the implied yes/no probabilities for a reserve snapshot:
//
//	yes = (yesPred+V) / ((yesPred+V) + (noPred+V))
//
// With both real reserves at zero the virtual reserves alone yield exactly
// (0.5, 0.5), which is the defined fallback rather than an error.
func Price(p domain.MarketPools) (yes, no float64) {
	yesW := new(big.Int).Add(orZero(p.YesPredReserve), VirtualReserve)
	noW := new(big.Int).Add(orZero(p.NoPredReserve), VirtualReserve)
	total := new(big.Int).Add(yesW, noW)
	if total.Sign() == 0 {
		return 0.5, 0.5
	}

	q := new(big.Float).Quo(new(big.Float).SetInt(yesW), new(big.Float).SetInt(total))
	yes, _ = q.Float64()
	return yes, 1 - yes
}

// invariant computes k = (predReserve + V) * shareReserve.
func invariant(pred, share *big.Int) *big.Int {
	predW := new(big.Int).Add(pred, VirtualReserve)
	return predW.Mul(predW, share)
}

// SimulateBuy predicts sharesOut for spending predIn wad on one side:
//
//	k        = (pred+V) * share
//	newShare = k / (pred+predIn+V)   (floor)
//	out      = share - newShare
//
// The result is floored at zero and is always strictly less than the share
// reserve, so a buy can never drain the pool.
func SimulateBuy(predReserve, shareReserve, predIn *big.Int) *big.Int {
	predReserve, shareReserve = orZero(predReserve), orZero(shareReserve)
	if orZero(predIn).Sign() <= 0 || shareReserve.Sign() <= 0 {
		return new(big.Int)
	}

	k := invariant(predReserve, shareReserve)

	newPredW := new(big.Int).Add(predReserve, predIn)
	newPredW.Add(newPredW, VirtualReserve)

	newShare := k.Quo(k, newPredW)

	out := new(big.Int).Sub(shareReserve, newShare)
	if out.Sign() < 0 {
		return new(big.Int)
	}
	return out
}

// SimulateSell predicts predOut for returning sharesIn wad to one side. It
// fails closed to zero when the pool cannot pay: when the post-trade virtual
// pred balance would not exceed V, or when the implied new pred reserve is
// not strictly below the current one (which would mean a negative payout).
// Zero is a valid "no trade possible at this size" result, not an error.
func SimulateSell(predReserve, shareReserve, sharesIn *big.Int) *big.Int {
	predReserve, shareReserve = orZero(predReserve), orZero(shareReserve)
	if orZero(sharesIn).Sign() <= 0 || shareReserve.Sign() <= 0 {
		return new(big.Int)
	}

	k := invariant(predReserve, shareReserve)

	newShare := new(big.Int).Add(shareReserve, sharesIn)
	nextPredW := k.Quo(k, newShare)

	if nextPredW.Cmp(VirtualReserve) <= 0 {
		return new(big.Int)
	}

	newPred := nextPredW.Sub(nextPredW, VirtualReserve)
	if newPred.Cmp(predReserve) >= 0 {
		return new(big.Int)
	}

	return new(big.Int).Sub(predReserve, newPred)
}

// SimulateBuySide runs SimulateBuy against the chosen side of a snapshot.
func SimulateBuySide(p domain.MarketPools, side domain.Side, predIn *big.Int) *big.Int {
	pred, share := p.Reserves(side)
	return SimulateBuy(pred, share, predIn)
}

// SimulateSellSide runs SimulateSell against the chosen side of a snapshot.
func SimulateSellSide(p domain.MarketPools, side domain.Side, sharesIn *big.Int) *big.Int {
	pred, share := p.Reserves(side)
	return SimulateSell(pred, share, sharesIn)
}

// FromWad converts a wad integer to whole tokens as float64, for display and
// charting only.
func FromWad(x *big.Int) float64 {
	if x == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(x), new(big.Float).SetInt(Wad)).Float64()
	return f
}

// ToWad converts whole tokens to a wad integer, truncating below 1e-18.
func ToWad(tokens float64) *big.Int {
	f := new(big.Float).Mul(big.NewFloat(tokens), new(big.Float).SetInt(Wad))
	out, _ := f.Int(nil)
	return out
}
