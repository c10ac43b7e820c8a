package store

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/polybot/internal/botmodel"
	"github.com/web3guy0/polybot/internal/onchain"
)

func TestStore_LoadMissingFileReturnsEmptySnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := New(path)

	snap, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, snap.Bots)
	assert.Equal(t, currentSchemaVersion, snap.SchemaVersion)
}

func TestStore_SaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := New(path)

	snap := emptySnapshot()
	snap.PrimaryWalletID = "wallet-1"
	snap.Bots = append(snap.Bots, &botmodel.BotInstance{ID: "bot-1", Name: "Grid Bot"})

	require.NoError(t, s.Save(snap))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(filePerm), info.Mode().Perm())

	loaded, err := s.Load()
	require.NoError(t, err)
	require.Len(t, loaded.Bots, 1)
	assert.Equal(t, "bot-1", loaded.Bots[0].ID)
	assert.Equal(t, "wallet-1", loaded.PrimaryWalletID)
}

func TestStore_SaveLeavesNoStrayTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	s := New(path)

	require.NoError(t, s.Save(emptySnapshot()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "state.json", entries[0].Name())
}

type fakeReceiptRPC struct {
	onchain.RPCClient
	receipts map[string]*onchain.Receipt
}

func (f *fakeReceiptRPC) WaitForReceipt(ctx context.Context, txHash common.Hash) (*onchain.Receipt, error) {
	r, ok := f.receipts[txHash.Hex()]
	if !ok {
		return nil, nil
	}
	return r, nil
}

func (f *fakeReceiptRPC) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}

func TestReconcile_BuyingPositionWithConfirmedReceiptBecomesHolding(t *testing.T) {
	txHash := common.HexToHash("0x1").Hex()
	snap := emptySnapshot()
	snap.Bots = append(snap.Bots, &botmodel.BotInstance{
		ID: "bot-1",
		Positions: []botmodel.Position{
			{ID: 0, Status: botmodel.StatusBuying, BuyTxHash: txHash},
		},
	})

	rpc := &fakeReceiptRPC{receipts: map[string]*onchain.Receipt{
		txHash: {Success: true},
	}}

	Reconcile(context.Background(), snap, rpc)

	assert.Equal(t, botmodel.StatusHolding, snap.Bots[0].Positions[0].Status)
}

func TestReconcile_SellingPositionWithFailedReceiptRevertsToHolding(t *testing.T) {
	txHash := common.HexToHash("0x2").Hex()
	snap := emptySnapshot()
	snap.Bots = append(snap.Bots, &botmodel.BotInstance{
		ID: "bot-1",
		Positions: []botmodel.Position{
			{ID: 0, Status: botmodel.StatusSelling, SellTxHash: txHash},
		},
	})

	rpc := &fakeReceiptRPC{receipts: map[string]*onchain.Receipt{
		txHash: {Success: false},
	}}

	Reconcile(context.Background(), snap, rpc)

	assert.Equal(t, botmodel.StatusHolding, snap.Bots[0].Positions[0].Status)
}

func TestReconcile_BuyingPositionWithNoReceiptRevertsToEmpty(t *testing.T) {
	snap := emptySnapshot()
	snap.Bots = append(snap.Bots, &botmodel.BotInstance{
		ID: "bot-1",
		Positions: []botmodel.Position{
			{ID: 0, Status: botmodel.StatusBuying, BuyTxHash: common.HexToHash("0x3").Hex()},
		},
	})

	rpc := &fakeReceiptRPC{receipts: map[string]*onchain.Receipt{}}
	Reconcile(context.Background(), snap, rpc)

	assert.Equal(t, botmodel.StatusEmpty, snap.Bots[0].Positions[0].Status)
}
