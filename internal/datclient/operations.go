package datclient

import (
	"context"
	"fmt"

	"github.com/DataStream-Network/dat_ledger/internal/domain/submission"
	"github.com/DataStream-Network/dat_ledger/internal/fact"
)

// Typed wrappers over Submit/AwaitConfirmation for each ledger operation.
// They all follow the same protocol; only the argument payload and the
// decoded result fact differ.

// CreateAsset mints an asset and returns the minted id from the
// AssetCreated fact.
func (c *Client) CreateAsset(ctx context.Context, args submission.CreateAssetArgs, opts AwaitOptions) (uint64, *Confirmation, error) {
	conf, err := c.submitAndAwait(ctx, submission.OpCreateAsset, args, opts)
	if err != nil {
		return 0, conf, err
	}
	f, err := ExtractFact(conf, fact.TypeAssetCreated)
	if err != nil {
		return 0, conf, err
	}
	created, err := fact.DecodeAssetCreated(f)
	if err != nil {
		return 0, conf, fmt.Errorf("decode mint result: %w", err)
	}
	return created.ID, conf, nil
}

// PayForQuery settles a paid query and returns the exact split from the
// QueryPaid fact.
func (c *Client) PayForQuery(ctx context.Context, assetID, amountPaid uint64, opts AwaitOptions) (*fact.QueryPaid, *Confirmation, error) {
	args := submission.PayForQueryArgs{AssetID: assetID, AmountPaid: amountPaid}
	conf, err := c.submitAndAwait(ctx, submission.OpPayForQuery, args, opts)
	if err != nil {
		return nil, conf, err
	}
	f, err := ExtractFact(conf, fact.TypeQueryPaid)
	if err != nil {
		return nil, conf, err
	}
	paid, err := fact.DecodeQueryPaid(f)
	if err != nil {
		return nil, conf, fmt.Errorf("decode settlement result: %w", err)
	}
	return &paid, conf, nil
}

// UpdatePrice changes an asset's query price.
func (c *Client) UpdatePrice(ctx context.Context, assetID, newPrice uint64, opts AwaitOptions) (*Confirmation, error) {
	args := submission.UpdatePriceArgs{AssetID: assetID, NewPrice: newPrice}
	return c.submitAndAwait(ctx, submission.OpUpdatePrice, args, opts)
}

// SetActive opens or closes an asset for settlement.
func (c *Client) SetActive(ctx context.Context, assetID uint64, active bool, opts AwaitOptions) (*Confirmation, error) {
	args := submission.SetActiveArgs{AssetID: assetID, Active: active}
	return c.submitAndAwait(ctx, submission.OpSetActive, args, opts)
}

// TransferOwnership hands an asset to a new creator.
func (c *Client) TransferOwnership(ctx context.Context, assetID uint64, newCreator string, opts AwaitOptions) (*Confirmation, error) {
	args := submission.TransferOwnershipArgs{AssetID: assetID, NewCreator: newCreator}
	return c.submitAndAwait(ctx, submission.OpTransferOwnership, args, opts)
}

// Deposit credits an account on the balance book. Admin identity only.
func (c *Client) Deposit(ctx context.Context, account string, amount uint64, opts AwaitOptions) (*Confirmation, error) {
	args := submission.DepositArgs{Account: account, Amount: amount}
	return c.submitAndAwait(ctx, submission.OpDeposit, args, opts)
}

// UpdatePlatformConfig swaps the settlement parameters. Admin identity only.
func (c *Client) UpdatePlatformConfig(ctx context.Context, treasury string, feeBps uint32, opts AwaitOptions) (*Confirmation, error) {
	args := submission.UpdateConfigArgs{Treasury: treasury, FeeBps: feeBps}
	return c.submitAndAwait(ctx, submission.OpUpdateConfig, args, opts)
}

func (c *Client) submitAndAwait(ctx context.Context, operation string, args interface{}, opts AwaitOptions) (*Confirmation, error) {
	handle, err := c.Submit(ctx, operation, args)
	if err != nil {
		return nil, err
	}
	return c.AwaitConfirmation(ctx, handle, opts)
}
