package ledger

import (
	"encoding/csv"
	"io"
	"math/big"
	"strconv"
)

var csvHeader = []string{
	"Date", "Time", "Bot Id", "Bot Name", "Token Symbol", "Token Address",
	"Action", "Amount", "Price", "ETH Value", "Gas Cost", "Profit",
	"Profit %", "Position Id", "Tx Hash",
}

// WriteCSV exports every trade as a row-per-trade CSV with the fixed column
// set of spec.md §4.3 (ISO-8601 UTC timestamps, fixed-point wei-to-ETH).
func (l *Ledger) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for _, t := range l.All() {
		row := []string{
			t.Timestamp.UTC().Format("2006-01-02"),
			t.Timestamp.UTC().Format("15:04:05Z"),
			t.BotID,
			t.BotName,
			t.TokenSymbol,
			t.TokenAddress,
			string(t.Action),
			weiString(t.Amount),
			t.Price.String(),
			weiToEth(t.EthValue).String(),
			weiToEth(t.GasCost).String(),
			weiToEth(t.Profit).String(),
			t.ProfitPercent.StringFixed(2),
			strconv.Itoa(t.PositionID),
			t.TxHash,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func weiString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
