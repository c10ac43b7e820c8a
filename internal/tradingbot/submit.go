package tradingbot

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/web3guy0/polybot/internal/botmodel"
	"github.com/web3guy0/polybot/internal/onchain"
)

// submit signs and sends a quote's swap transaction, awaiting its receipt.
// In dry-run mode it synthesizes a successful receipt without touching the
// chain, per spec.md §4.5.2 — same log shapes, no state advance past here.
func (c *Controller) submit(ctx context.Context, bot *botmodel.BotInstance, quote *onchain.Quote) (*onchain.Receipt, error) {
	if bot.DryRun {
		return &onchain.Receipt{
			TxHash:    common.HexToHash(fmt.Sprintf("0x%x", time.Now().UnixNano())),
			Success:   true,
			GasUsed:   quote.Gas,
			GasPrice:  quote.GasPrice,
			BlockTime: time.Now().Unix(),
		}, nil
	}

	signer, err := c.Vault.Unlock(ctx, bot.ID)
	if err != nil {
		return nil, fmt.Errorf("vault unlock: %w", err)
	}

	txHash, err := c.RPC.SendTransaction(ctx, signer, quote.To, quote.Data, quote.Value)
	if err != nil {
		return nil, fmt.Errorf("send transaction: %w", err)
	}

	// Detached from ctx deliberately: once a transaction is submitted,
	// shutdown must not cancel the receipt wait, per spec.md §5 — losing
	// this would mean losing accounting for a confirmed on-chain trade.
	waitCtx, cancel := context.WithTimeout(context.Background(), c.receiptTimeout())
	defer cancel()
	receipt, err := c.RPC.WaitForReceipt(waitCtx, txHash)
	if err != nil {
		return nil, fmt.Errorf("await receipt: %w", err)
	}
	return receipt, nil
}
