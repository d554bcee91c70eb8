// Package domain defines the shared types, sentinel errors, and store/cache
// interfaces used across the prediction-market mirror.
package domain

import (
	"math/big"
	"time"
)

// MarketStatus represents the lifecycle state of a market as encoded by the
// contract (uint8 on chain).
type MarketStatus uint8

const (
	MarketStatusActive MarketStatus = iota
	MarketStatusResolved
	MarketStatusCancelled
)

// String returns the lowercase name used in logs, the API, and the database.
func (s MarketStatus) String() string {
	switch s {
	case MarketStatusActive:
		return "active"
	case MarketStatusResolved:
		return "resolved"
	case MarketStatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ParseMarketStatus maps a stored status string back to its MarketStatus.
func ParseMarketStatus(s string) MarketStatus {
	switch s {
	case "resolved":
		return MarketStatusResolved
	case "cancelled":
		return MarketStatusCancelled
	default:
		return MarketStatusActive
	}
}

// Market holds the on-chain metadata of a two-outcome market. It is created
// by a MarketCreated event and mutated only by re-reads of the ledger; local
// code never changes status or outcome on its own.
type Market struct {
	ID       uint64       `json:"id"`
	Creator  string       `json:"creator"`
	Question string       `json:"question"`
	EndTime  time.Time    `json:"end_time"`
	Status   MarketStatus `json:"-"`
	// Outcome is only meaningful when Status is MarketStatusResolved.
	Outcome   bool      `json:"outcome"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MarketPools is an immutable point-in-time snapshot of a market's AMM
// reserves. All amounts are 18-decimal fixed-point ("wad") integers exactly
// as returned by getMarketPools; consumers must not mutate the fields, and
// the reconciliation side replaces the whole snapshot rather than patching it.
type MarketPools struct {
	YesPredReserve  *big.Int
	YesShareReserve *big.Int
	NoPredReserve   *big.Int
	NoShareReserve  *big.Int

	TotalYesShares *big.Int
	TotalNoShares  *big.Int

	// Populated by the contract after resolution; zero while active.
	WinningPredPool    *big.Int
	TotalWinningShares *big.Int

	FetchedAt time.Time
}

// Side selects one half of a two-outcome market.
type Side bool

const (
	SideYes Side = true
	SideNo  Side = false
)

// String returns "yes" or "no".
func (s Side) String() string {
	if s == SideYes {
		return "yes"
	}
	return "no"
}

// Reserves returns the pred and share reserves for the given side.
func (p MarketPools) Reserves(side Side) (pred, share *big.Int) {
	if side == SideYes {
		return p.YesPredReserve, p.YesShareReserve
	}
	return p.NoPredReserve, p.NoShareReserve
}

// Position is an account's holding in a single market as read from the
// contract's positions mapping.
type Position struct {
	YesShares *big.Int
	NoShares  *big.Int
	Claimed   bool
	Refunded  bool
}
