package submission

// Argument payloads for each operation, carried as canonical JSON inside a
// submission envelope. The node decodes them at seal time; the client
// encodes them at submit time. Field names are part of the wire contract.

// CreateAssetArgs mints a new asset.
type CreateAssetArgs struct {
	ContentRef string `json:"contentRef"`
	QueryPrice uint64 `json:"queryPrice"`
	TokenURI   string `json:"tokenUri,omitempty"`
	DataClass  string `json:"dataClass,omitempty"`
	DataValue  uint64 `json:"dataValue,omitempty"`
}

// UpdatePriceArgs changes an asset's query price.
type UpdatePriceArgs struct {
	AssetID  uint64 `json:"assetId"`
	NewPrice uint64 `json:"newPrice"`
}

// SetActiveArgs opens or closes an asset for settlement.
type SetActiveArgs struct {
	AssetID uint64 `json:"assetId"`
	Active  bool   `json:"active"`
}

// TransferOwnershipArgs hands an asset to a new creator.
type TransferOwnershipArgs struct {
	AssetID    uint64 `json:"assetId"`
	NewCreator string `json:"newCreator"`
}

// PayForQueryArgs settles a paid query.
type PayForQueryArgs struct {
	AssetID    uint64 `json:"assetId"`
	AmountPaid uint64 `json:"amountPaid"`
}

// DepositArgs credits an account on the balance book.
type DepositArgs struct {
	Account string `json:"account"`
	Amount  uint64 `json:"amount"`
}

// UpdateConfigArgs swaps the platform settlement parameters.
type UpdateConfigArgs struct {
	Treasury string `json:"treasury"`
	FeeBps   uint32 `json:"feeBps"`
}
