package broker

import (
	"encoding/json"

	"github.com/shopspring/decimal"
	ydecimal "github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"
)

// tickerPayload is the exchange-format ticker message. Exchanges send
// prices as strings; ydecimal decodes them without float drift.
type tickerPayload struct {
	Symbol string           `json:"symbol"`
	Last   ydecimal.Decimal `json:"last"`
	Bid    ydecimal.Decimal `json:"bid"`
	Ask    ydecimal.Decimal `json:"ask"`
}

// ParseTickerPayload decodes one exchange ticker message into a symbol
// and its last price.
func ParseTickerPayload(data []byte) (string, decimal.Decimal, error) {
	var p tickerPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return "", decimal.Zero, errors.Wrap(err, "unmarshal ticker payload")
	}
	if p.Symbol == "" {
		return "", decimal.Zero, errors.New("ticker payload missing symbol")
	}
	price, err := decimal.NewFromString(p.Last.String())
	if err != nil {
		return "", decimal.Zero, errors.Wrap(err, "convert ticker price")
	}
	return p.Symbol, price, nil
}
