package oracle

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/polybot/internal/onchain"
)

type fakeRPC struct {
	callFn func(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

func (f *fakeRPC) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}
func (f *fakeRPC) SuggestGasPrice(ctx context.Context) (*big.Int, error) { return big.NewInt(0), nil }
func (f *fakeRPC) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return f.callFn(ctx, to, data)
}
func (f *fakeRPC) SendTransaction(ctx context.Context, signer *onchain.SigningAccount, to common.Address, data []byte, value *big.Int) (common.Hash, error) {
	return common.Hash{}, nil
}
func (f *fakeRPC) WaitForReceipt(ctx context.Context, txHash common.Hash) (*onchain.Receipt, error) {
	return nil, nil
}

func decimalFromString(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	v, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return v
}

func word(n int64) []byte {
	return common.LeftPadBytes(big.NewInt(n).Bytes(), 32)
}

func latestRoundDataResponse(roundID, answer, updatedAt, answeredInRound int64) []byte {
	out := append([]byte{}, word(roundID)...)
	out = append(out, word(answer)...)
	out = append(out, word(0)...) // startedAt, unused
	out = append(out, word(updatedAt)...)
	out = append(out, word(answeredInRound)...)
	return out
}

func TestChainlinkReader_FreshRound(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	rpc := &fakeRPC{callFn: func(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
		return latestRoundDataResponse(10, 150_000_000, now.Unix()-60, 10), nil
	}}
	reader := NewChainlinkReader(rpc, common.HexToAddress("0xFeed"), 8)

	price, confidence, err := reader.Read(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1.0, confidence)
	assert.True(t, price.Price.Equal(decimalFromString(t, "1.5")))
}

func TestChainlinkReader_StaleRoundHalvesConfidence(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	rpc := &fakeRPC{callFn: func(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
		return latestRoundDataResponse(10, 150_000_000, now.Add(-defaultStaleThreshold).Unix(), 10), nil
	}}
	reader := NewChainlinkReader(rpc, common.HexToAddress("0xFeed"), 8)

	_, confidence, err := reader.Read(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 0.5, confidence, "boundary-exact staleness must count as stale")
}

func TestChainlinkReader_RoundMismatchPenalizes(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	rpc := &fakeRPC{callFn: func(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
		return latestRoundDataResponse(10, 150_000_000, now.Unix()-60, 9), nil
	}}
	reader := NewChainlinkReader(rpc, common.HexToAddress("0xFeed"), 8)

	_, confidence, err := reader.Read(context.Background(), now)
	require.NoError(t, err)
	assert.InDelta(t, 0.7, confidence, 1e-9)
}

func TestChainlinkReader_NonPositiveAnswerRejected(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	rpc := &fakeRPC{callFn: func(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
		return latestRoundDataResponse(10, 0, now.Unix(), 10), nil
	}}
	reader := NewChainlinkReader(rpc, common.HexToAddress("0xFeed"), 8)

	_, _, err := reader.Read(context.Background(), now)
	assert.Error(t, err)
}
