package quote

import (
	"context"
	"math/rand/v2"

	"QuonkLedger/internal/money"
)

// RandomSource quotes every ticker at 100 or 200, coin-flip. Dev mode for
// running the bot without a market-data upstream.
type RandomSource struct{}

func NewRandomSource() RandomSource { return RandomSource{} }

func (RandomSource) Quote(_ context.Context, _ string) (money.Amount, error) {
	if rand.IntN(2) == 0 {
		return money.FromInt(100), nil
	}
	return money.FromInt(200), nil
}

// StaticSource quotes from a fixed table; tickers not in the table fail as
// unavailable. Used in tests.
type StaticSource map[string]money.Amount

func (s StaticSource) Quote(_ context.Context, ticker string) (money.Amount, error) {
	price, ok := s[ticker]
	if !ok {
		return money.Amount{}, Unavailable(ticker, nil)
	}
	return price, nil
}
