package oracle

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/polybot/internal/botmodel"
	"github.com/web3guy0/polybot/internal/onchain"
)

// latestRoundData() function selector.
const latestRoundDataSelector = "feaf968c"

// defaultStaleThreshold matches spec.md §4.2's default of one hour.
const defaultStaleThreshold = 1 * time.Hour

// ChainlinkReader reads a Chainlink aggregator proxy via eth_call and
// scores its confidence per spec.md §4.2.
type ChainlinkReader struct {
	rpc            onchain.RPCClient
	feed           common.Address
	decimals       int32
	staleThreshold time.Duration
}

// NewChainlinkReader constructs a reader for one feed address.
func NewChainlinkReader(rpc onchain.RPCClient, feed common.Address, decimals int32) *ChainlinkReader {
	return &ChainlinkReader{
		rpc:            rpc,
		feed:           feed,
		decimals:       decimals,
		staleThreshold: defaultStaleThreshold,
	}
}

// chainlinkRound is the parsed latestRoundData() response.
type chainlinkRound struct {
	RoundID         *big.Int
	Answer          *big.Int
	UpdatedAt       int64
	AnsweredInRound *big.Int
}

// Read fetches and scores the latest Chainlink round.
func (c *ChainlinkReader) Read(ctx context.Context, now time.Time) (botmodel.PriceData, float64, error) {
	round, err := c.fetchLatestRoundData(ctx)
	if err != nil {
		return botmodel.PriceData{}, 0, fmt.Errorf("chainlink read: %w", err)
	}

	if round.Answer.Sign() <= 0 {
		return botmodel.PriceData{}, 0, fmt.Errorf("chainlink read: non-positive answer")
	}

	price := decimal.NewFromBigInt(round.Answer, -c.decimals)

	confidence := 1.0
	staleAt := now.Add(-c.staleThreshold)
	if time.Unix(round.UpdatedAt, 0).Before(staleAt) || time.Unix(round.UpdatedAt, 0).Equal(staleAt) {
		// Inclusive of the boundary per spec.md §8's boundary behavior.
		confidence *= 0.5
	}
	if round.AnsweredInRound.Cmp(round.RoundID) < 0 {
		confidence *= 0.7
	}

	log.Debug().
		Str("price", price.String()).
		Float64("confidence", confidence).
		Msg("chainlink price read")

	return botmodel.PriceData{
		Price:     price,
		Source:    botmodel.SourceChainlink,
		Timestamp: now,
	}, confidence, nil
}

func (c *ChainlinkReader) fetchLatestRoundData(ctx context.Context) (*chainlinkRound, error) {
	data := common.FromHex("0x" + latestRoundDataSelector)
	result, err := c.rpc.Call(ctx, c.feed, data)
	if err != nil {
		return nil, err
	}
	if len(result) < 160 {
		return nil, fmt.Errorf("unexpected latestRoundData response length %d", len(result))
	}

	roundID := new(big.Int).SetBytes(result[0:32])
	answer := new(big.Int).SetBytes(result[32:64])
	if answer.Bit(255) == 1 {
		// Two's complement negative; latestRoundData's int256 answer can
		// be negative on a feed fault.
		answer = new(big.Int).Sub(answer, new(big.Int).Lsh(big.NewInt(1), 256))
	}
	updatedAt := new(big.Int).SetBytes(result[96:128]).Int64()
	answeredInRound := new(big.Int).SetBytes(result[128:160])

	return &chainlinkRound{
		RoundID:         roundID,
		Answer:          answer,
		UpdatedAt:       updatedAt,
		AnsweredInRound: answeredInRound,
	}, nil
}
