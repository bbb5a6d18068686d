// Package asset defines the data-asset records the ledger owns.
package asset

import "time"

// Record is the unit of ownership and monetization: a creator-owned binding
// of an off-chain content reference to a query price, plus the cumulative
// usage counters maintained by settlement.
type Record struct {
	ID           uint64
	Creator      string
	ContentRef   string
	TokenURI     string
	DataClass    string
	DataValue    uint64
	QueryPrice   uint64
	TotalQueries uint64
	TotalEarned  uint64
	Active       bool
	CreatedAt    time.Time
}

// Clone returns an independent copy so callers can never reach the
// registry's internal state.
func (r *Record) Clone() *Record {
	c := *r
	return &c
}

// Stats aggregates usage across the whole registry.
type Stats struct {
	TotalAssets  uint64
	TotalQueries uint64
	TotalVolume  uint64
}

// SettlementReceipt is handed back for every accepted query payment.
type SettlementReceipt struct {
	AssetID        uint64
	TransactionRef string
	AmountPaid     uint64
	FeePaid        uint64
	CreatorShare   uint64
}
