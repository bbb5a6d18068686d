// Package fact defines the ledger's externally observable record of state
// changes. Every confirmed operation appends facts to an ordered journal;
// mirrors and clients decode them against the stable schema here instead of
// reaching into ledger internals.
package fact

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// SchemaVersion is stamped on every fact. Consumers reject versions they
// do not understand instead of guessing at field layout.
const SchemaVersion = 1

// Type classifies a fact.
type Type string

const (
	// Asset lifecycle facts
	TypeAssetCreated         Type = "AssetCreated"
	TypePriceUpdated         Type = "PriceUpdated"
	TypeActiveChanged        Type = "ActiveChanged"
	TypeOwnershipTransferred Type = "OwnershipTransferred"

	// Settlement facts
	TypeQueryPaid Type = "QueryPaid"
	TypeDeposited Type = "Deposited"

	// Platform facts
	TypeConfigUpdated Type = "ConfigUpdated"
)

// Fact is one immutable entry in the journal. Attrs carries the
// type-specific fields as JSON; Seq is assigned by the journal at append
// time and is strictly increasing with no gaps.
type Fact struct {
	SchemaVersion int             `json:"schemaVersion"`
	Seq           uint64          `json:"seq"`
	Type          Type            `json:"type"`
	AssetID       uint64          `json:"assetId"`
	Timestamp     time.Time       `json:"timestamp"`
	Attrs         json.RawMessage `json:"attrs"`
}

// String returns the JSON form, which is also the wire form.
func (f Fact) String() string {
	data, _ := json.Marshal(f)
	return string(data)
}

// Field reads a single attr by gjson path, for consumers that filter or
// index facts without decoding the full payload.
func (f Fact) Field(path string) gjson.Result {
	return gjson.GetBytes(f.Attrs, path)
}

// AssetCreated records a successful mint.
type AssetCreated struct {
	ID         uint64 `json:"id"`
	Creator    string `json:"creator"`
	ContentRef string `json:"contentRef"`
	QueryPrice uint64 `json:"queryPrice"`
	TokenURI   string `json:"tokenUri,omitempty"`
	DataClass  string `json:"dataClass,omitempty"`
	DataValue  uint64 `json:"dataValue,omitempty"`
}

// PriceUpdated records a query-price change.
type PriceUpdated struct {
	ID       uint64 `json:"id"`
	NewPrice uint64 `json:"newPrice"`
}

// ActiveChanged records an asset being opened or closed for settlement.
type ActiveChanged struct {
	ID     uint64 `json:"id"`
	Active bool   `json:"active"`
}

// OwnershipTransferred records a creator handover.
type OwnershipTransferred struct {
	ID              uint64 `json:"id"`
	PreviousCreator string `json:"previousCreator"`
	NewCreator      string `json:"newCreator"`
}

// QueryPaid records an accepted settlement and its exact split.
type QueryPaid struct {
	ID           uint64 `json:"id"`
	Payer        string `json:"payer"`
	AmountPaid   uint64 `json:"amountPaid"`
	FeePaid      uint64 `json:"feePaid"`
	CreatorShare uint64 `json:"creatorShare"`
}

// Deposited records a balance credit.
type Deposited struct {
	Account string `json:"account"`
	Amount  uint64 `json:"amount"`
}

// ConfigUpdated records an administrative platform-config change.
type ConfigUpdated struct {
	Treasury string `json:"treasury"`
	FeeBps   uint32 `json:"feeBps"`
}

// New builds an unsequenced fact with the payload marshalled into Attrs.
func New(typ Type, assetID uint64, payload interface{}) (Fact, error) {
	attrs, err := json.Marshal(payload)
	if err != nil {
		return Fact{}, fmt.Errorf("encode %s attrs: %w", typ, err)
	}
	return Fact{
		SchemaVersion: SchemaVersion,
		Type:          typ,
		AssetID:       assetID,
		Timestamp:     time.Now().UTC(),
		Attrs:         attrs,
	}, nil
}

func decodeAttrs(f Fact, want Type, dst interface{}) error {
	if f.Type != want {
		return fmt.Errorf("fact is %s, not %s", f.Type, want)
	}
	if f.SchemaVersion != SchemaVersion {
		return fmt.Errorf("unsupported fact schema version %d", f.SchemaVersion)
	}
	if err := json.Unmarshal(f.Attrs, dst); err != nil {
		return fmt.Errorf("decode %s attrs: %w", want, err)
	}
	return nil
}

// DecodeAssetCreated decodes an AssetCreated fact.
func DecodeAssetCreated(f Fact) (AssetCreated, error) {
	var p AssetCreated
	if err := decodeAttrs(f, TypeAssetCreated, &p); err != nil {
		return AssetCreated{}, err
	}
	return p, nil
}

// DecodePriceUpdated decodes a PriceUpdated fact.
func DecodePriceUpdated(f Fact) (PriceUpdated, error) {
	var p PriceUpdated
	if err := decodeAttrs(f, TypePriceUpdated, &p); err != nil {
		return PriceUpdated{}, err
	}
	return p, nil
}

// DecodeActiveChanged decodes an ActiveChanged fact.
func DecodeActiveChanged(f Fact) (ActiveChanged, error) {
	var p ActiveChanged
	if err := decodeAttrs(f, TypeActiveChanged, &p); err != nil {
		return ActiveChanged{}, err
	}
	return p, nil
}

// DecodeOwnershipTransferred decodes an OwnershipTransferred fact.
func DecodeOwnershipTransferred(f Fact) (OwnershipTransferred, error) {
	var p OwnershipTransferred
	if err := decodeAttrs(f, TypeOwnershipTransferred, &p); err != nil {
		return OwnershipTransferred{}, err
	}
	return p, nil
}

// DecodeQueryPaid decodes a QueryPaid fact.
func DecodeQueryPaid(f Fact) (QueryPaid, error) {
	var p QueryPaid
	if err := decodeAttrs(f, TypeQueryPaid, &p); err != nil {
		return QueryPaid{}, err
	}
	return p, nil
}

// DecodeDeposited decodes a Deposited fact.
func DecodeDeposited(f Fact) (Deposited, error) {
	var p Deposited
	if err := decodeAttrs(f, TypeDeposited, &p); err != nil {
		return Deposited{}, err
	}
	return p, nil
}

// DecodeConfigUpdated decodes a ConfigUpdated fact.
func DecodeConfigUpdated(f Fact) (ConfigUpdated, error) {
	var p ConfigUpdated
	if err := decodeAttrs(f, TypeConfigUpdated, &p); err != nil {
		return ConfigUpdated{}, err
	}
	return p, nil
}
