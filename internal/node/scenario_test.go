package node_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataStream-Network/dat_ledger/internal/datclient"
	"github.com/DataStream-Network/dat_ledger/internal/domain/submission"
	"github.com/DataStream-Network/dat_ledger/internal/fact"
	"github.com/DataStream-Network/dat_ledger/internal/identity"
	"github.com/DataStream-Network/dat_ledger/internal/ledger"
	"github.com/DataStream-Network/dat_ledger/internal/node"
	"github.com/DataStream-Network/dat_ledger/internal/storage/memory"
)

// TestPlatformLifecycle drives the whole stack the way a deployment would:
// every mutation goes through a signed submission, gets sealed into a block,
// and is checked against the ledger's read surface afterwards.
func TestPlatformLifecycle(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	journal, err := fact.NewJournal(ctx, store, nil)
	require.NoError(t, err)

	adminKey, err := identity.Generate()
	require.NoError(t, err)
	creatorKey, err := identity.Generate()
	require.NoError(t, err)
	payerKey, err := identity.Generate()
	require.NoError(t, err)

	led, err := ledger.New(ctx, ledger.Options{
		Config:          ledger.PlatformConfig{Treasury: "dat1treasury", FeeBps: 250},
		Admin:           adminKey.Address(),
		GenesisBalances: map[string]uint64{payerKey.Address(): 1_000},
	}, journal, nil)
	require.NoError(t, err)

	n, err := node.New(node.Config{BlockInterval: 5 * time.Millisecond}, led, journal, store, nil)
	require.NoError(t, err)
	require.NoError(t, n.Start(ctx))
	defer n.Stop(ctx)

	newClient := func(key *identity.KeyPair) *datclient.Client {
		c, err := datclient.New(n, key, nil)
		require.NoError(t, err)
		return c
	}
	admin := newClient(adminKey)
	creator := newClient(creatorKey)
	payer := newClient(payerKey)
	opts := datclient.AwaitOptions{Timeout: 5 * time.Second, PollInterval: time.Millisecond}

	// Admin tops the payer up; anyone else gets refused.
	_, err = admin.Deposit(ctx, payerKey.Address(), 500, opts)
	require.NoError(t, err)
	_, err = payer.Deposit(ctx, payerKey.Address(), 500, opts)
	require.ErrorIs(t, err, ledger.ErrUnauthorized)
	assert.Equal(t, uint64(1_500), led.BalanceOf(payerKey.Address()))

	// Mint two assets; reusing a content reference reverts.
	assetID, _, err := creator.CreateAsset(ctx, submission.CreateAssetArgs{
		ContentRef: "QmWeatherFeed", QueryPrice: 100, DataClass: "weather",
	}, opts)
	require.NoError(t, err)
	secondID, _, err := creator.CreateAsset(ctx, submission.CreateAssetArgs{
		ContentRef: "QmTrafficFeed", QueryPrice: 40,
	}, opts)
	require.NoError(t, err)
	assert.Equal(t, assetID+1, secondID)
	_, _, err = creator.CreateAsset(ctx, submission.CreateAssetArgs{
		ContentRef: "QmWeatherFeed", QueryPrice: 7,
	}, opts)
	require.ErrorIs(t, err, ledger.ErrDuplicateContent)

	totalBefore := led.TotalBalance()

	// Overpaying is accepted; the surplus stays with the creator's share.
	paid, conf, err := payer.PayForQuery(ctx, assetID, 150, opts)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), paid.FeePaid)
	assert.Equal(t, uint64(147), paid.CreatorShare)
	assert.True(t, conf.Confirmations >= 1)
	assert.Equal(t, totalBefore, led.TotalBalance(), "settlement must conserve total balance")
	assert.Equal(t, uint64(3), led.BalanceOf("dat1treasury"))
	assert.Equal(t, uint64(147), led.BalanceOf(creatorKey.Address()))

	// Raise the price; the old amount no longer clears it.
	_, err = creator.UpdatePrice(ctx, assetID, 200, opts)
	require.NoError(t, err)
	_, _, err = payer.PayForQuery(ctx, assetID, 150, opts)
	require.ErrorIs(t, err, ledger.ErrInsufficientPayment)

	// Deactivation blocks settlement but not reads.
	_, err = creator.SetActive(ctx, assetID, false, opts)
	require.NoError(t, err)
	_, _, err = payer.PayForQuery(ctx, assetID, 200, opts)
	require.ErrorIs(t, err, ledger.ErrInactiveAsset)
	rec, err := led.Get(assetID)
	require.NoError(t, err)
	assert.False(t, rec.Active)
	assert.Equal(t, uint64(1), rec.TotalQueries)
	assert.Equal(t, uint64(147), rec.TotalEarned)

	// Ownership handover strips the previous creator's control.
	newOwnerKey, err := identity.Generate()
	require.NoError(t, err)
	_, err = creator.TransferOwnership(ctx, secondID, newOwnerKey.Address(), opts)
	require.NoError(t, err)
	_, err = creator.UpdatePrice(ctx, secondID, 1, opts)
	require.ErrorIs(t, err, ledger.ErrUnauthorized)

	// Config changes apply to settlements that follow, not before.
	_, err = admin.UpdatePlatformConfig(ctx, "dat1newtreasury", 1000, opts)
	require.NoError(t, err)
	paid, _, err = payer.PayForQuery(ctx, secondID, 40, opts)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), paid.FeePaid)
	assert.Equal(t, uint64(4), led.BalanceOf("dat1newtreasury"))

	stats := led.Stats()
	assert.Equal(t, uint64(2), stats.TotalAssets)
	assert.Equal(t, uint64(2), stats.TotalQueries)
	assert.Equal(t, uint64(190), stats.TotalVolume)
}
