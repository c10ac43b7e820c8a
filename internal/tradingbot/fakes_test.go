package tradingbot

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/web3guy0/polybot/internal/onchain"
)

// fakeRPC is a minimal onchain.RPCClient double for controller tests.
type fakeRPC struct {
	balance      *big.Int
	balanceErr   error
	receipt      *onchain.Receipt
	receiptErr   error
	sendErr      error
	lastSendTo   common.Address
	lastSendData []byte
}

func (f *fakeRPC) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	return f.balance, nil
}

func (f *fakeRPC) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeRPC) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return nil, nil
}

func (f *fakeRPC) SendTransaction(ctx context.Context, signer *onchain.SigningAccount, to common.Address, data []byte, value *big.Int) (common.Hash, error) {
	f.lastSendTo = to
	f.lastSendData = data
	if f.sendErr != nil {
		return common.Hash{}, f.sendErr
	}
	return common.HexToHash("0xabc"), nil
}

func (f *fakeRPC) WaitForReceipt(ctx context.Context, txHash common.Hash) (*onchain.Receipt, error) {
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	return f.receipt, nil
}

// fakeDEX is a minimal onchain.DEXAggregator double that returns a fixed
// quote or error.
type fakeDEX struct {
	quote    *onchain.Quote
	quoteErr error
	lastReq  onchain.QuoteRequest
}

func (f *fakeDEX) Quote(ctx context.Context, req onchain.QuoteRequest) (*onchain.Quote, error) {
	f.lastReq = req
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	return f.quote, nil
}

// fakeVault always unlocks to the same signer.
type fakeVault struct {
	signer *onchain.SigningAccount
	err    error
}

func (f *fakeVault) Unlock(ctx context.Context, botID string) (*onchain.SigningAccount, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.signer, nil
}

// recordingNotifier collects every Event handed to it.
type recordingNotifier struct {
	events []Event
}

func (n *recordingNotifier) Notify(e Event) {
	n.events = append(n.events, e)
}
