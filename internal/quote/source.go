// Package quote resolves market prices for tickers. The ledger core treats
// a failed quote as fatal to the requested operation; there is no fallback
// price.
package quote

import (
	"context"
	"errors"
	"fmt"

	"QuonkLedger/internal/money"
)

// Source resolves the current market price of a ticker.
type Source interface {
	Quote(ctx context.Context, ticker string) (money.Amount, error)
}

// Error reports that no price could be resolved for a ticker, whether the
// ticker is unknown or the upstream is down. It propagates unchanged to
// the caller.
type Error struct {
	Ticker string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unable to quote %s: %v", e.Ticker, e.Err)
	}
	return fmt.Sprintf("unable to quote %s", e.Ticker)
}

func (e *Error) Unwrap() error { return e.Err }

// IsUnavailable reports whether err is a quote failure.
func IsUnavailable(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// Unavailable wraps cause as a quote failure for ticker.
func Unavailable(ticker string, cause error) error {
	return &Error{Ticker: ticker, Err: cause}
}
