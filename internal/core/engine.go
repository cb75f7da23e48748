// Package core holds the valuation and settlement rules: price observation
// accumulates |Δprice| value onto open positions, and the trade executor
// settles buys and sells against the ledger under solvency and share-count
// checks. Every multi-step operation runs inside one storage transaction.
package core

import (
	"context"

	"github.com/google/uuid"

	"QuonkLedger/internal/ledger"
	"QuonkLedger/internal/money"
)

// Engine composes the price observation engine and the trade executor on
// top of an explicit Ledger handle.
type Engine struct {
	store ledger.Ledger
}

func NewEngine(store ledger.Ledger) *Engine {
	return &Engine{store: store}
}

// BuyReceipt confirms a settled buy.
type BuyReceipt struct {
	TradeID  uuid.UUID
	MemberID int64
	Ticker   string
	Shares   int64
	Price    money.Amount // market price paid per share
	Cost     money.Amount
}

// SellReceipt confirms a settled sell. SettlementPrice is the per-share
// value the position settled at, distinct from the raw market quote.
type SellReceipt struct {
	TradeID         uuid.UUID
	MemberID        int64
	Ticker          string
	Shares          int64
	SettlementPrice money.Amount
	Proceeds        money.Amount
}

// Observe records a new market price against the member's open position:
// value += shares * |price - last|, last = price. A move in either
// direction adds value, never subtracts — the position is simultaneously
// long and short, so any deviation from the last-seen price is realized as
// gain. Fails with UnknownPosition when the pair was never held;
// observation never creates a position.
func (e *Engine) Observe(ctx context.Context, memberID int64, ticker string, price money.Amount) error {
	return e.store.WithTx(ctx, func(tx ledger.Ledger) error {
		if err := tx.RequireExists(ctx, memberID); err != nil {
			return err
		}
		return observe(ctx, tx, memberID, ticker, price)
	})
}

// observe runs the observation against an already-open transaction.
func observe(ctx context.Context, tx ledger.Ledger, memberID int64, ticker string, price money.Amount) error {
	pos, ok, err := tx.Position(ctx, memberID, ticker)
	if err != nil {
		return err
	}
	if !ok {
		return ledger.ErrUnknownPosition(memberID, ticker)
	}

	delta := price.Sub(pos.LastPrice).Abs()
	pos.Value = pos.Value.Add(delta.MulShares(pos.Shares))
	pos.LastPrice = price
	return tx.PutPosition(ctx, pos)
}

// ObserveTicker fans an externally published price out to every holder of
// the ticker. Each holder observes in its own transaction so one failure
// does not block the rest; the first error is reported after the sweep.
func (e *Engine) ObserveTicker(ctx context.Context, ticker string, price money.Amount) (int, error) {
	holders, err := e.store.Holders(ctx, ticker)
	if err != nil {
		return 0, err
	}

	var observed int
	var firstErr error
	for _, memberID := range holders {
		obErr := e.store.WithTx(ctx, func(tx ledger.Ledger) error {
			return observe(ctx, tx, memberID, ticker, price)
		})
		if obErr != nil {
			if firstErr == nil {
				firstErr = obErr
			}
			continue
		}
		observed++
	}
	return observed, firstErr
}

// Buy settles a purchase: debits shares*price from cash and merges the
// shares into the member's position. Preconditions are checked before any
// mutation; a rejection leaves the ledger untouched.
func (e *Engine) Buy(ctx context.Context, memberID int64, ticker string, shares int64, price money.Amount) (BuyReceipt, error) {
	var receipt BuyReceipt

	if shares <= 0 {
		return receipt, ledger.ErrInvalidShares("share count must be positive")
	}

	err := e.store.WithTx(ctx, func(tx ledger.Ledger) error {
		if err := tx.RequireExists(ctx, memberID); err != nil {
			return err
		}

		cash, err := tx.Cash(ctx, memberID)
		if err != nil {
			return err
		}

		cost := price.MulShares(shares)
		if cost.GreaterThan(cash) {
			return ledger.ErrInsufficientFunds(memberID, ticker, cash.SharesAffordable(price))
		}

		if err := tx.AddCash(ctx, memberID, cost.Neg()); err != nil {
			return err
		}

		// An existing position observes the buy price first, so its value
		// is current before the new shares join. The new shares enter at
		// the buy price with zero deviation: the upsert adds only their
		// principal, shares*price.
		_, held, err := tx.Position(ctx, memberID, ticker)
		if err != nil {
			return err
		}
		if held {
			if err := observe(ctx, tx, memberID, ticker, price); err != nil {
				return err
			}
		}

		if err := tx.UpsertPosition(ctx, ledger.Position{
			MemberID:  memberID,
			Ticker:    ticker,
			Shares:    shares,
			LastPrice: price,
			Value:     price.MulShares(shares),
		}, ledger.MergeKeepLastPrice); err != nil {
			return err
		}

		receipt = BuyReceipt{
			TradeID:  uuid.New(),
			MemberID: memberID,
			Ticker:   ticker,
			Shares:   shares,
			Price:    price,
			Cost:     cost,
		}
		return nil
	})
	return receipt, err
}

// Sell settles a sale at the position's per-share value: the price
// observation brings the accumulated value current, then
// truncate(value/shares) is the settlement price. Proceeds are credited,
// shares and value decrement proportionally, and the position is removed
// when its share count reaches zero.
func (e *Engine) Sell(ctx context.Context, memberID int64, ticker string, shares int64, price money.Amount) (SellReceipt, error) {
	var receipt SellReceipt

	if shares <= 0 {
		return receipt, ledger.ErrInvalidShares("share count must be positive")
	}

	err := e.store.WithTx(ctx, func(tx ledger.Ledger) error {
		if err := tx.RequireExists(ctx, memberID); err != nil {
			return err
		}

		pos, held, err := tx.Position(ctx, memberID, ticker)
		if err != nil {
			return err
		}
		if !held || pos.Shares < shares {
			return ledger.ErrInvalidShares("cannot sell more shares than you own")
		}

		if err := observe(ctx, tx, memberID, ticker, price); err != nil {
			return err
		}
		pos, _, err = tx.Position(ctx, memberID, ticker)
		if err != nil {
			return err
		}

		perShare := pos.Value.DivShares(pos.Shares)
		proceeds := perShare.MulShares(shares)

		if err := tx.AddCash(ctx, memberID, proceeds); err != nil {
			return err
		}

		pos.Shares -= shares
		pos.Value = pos.Value.Sub(proceeds)
		if pos.Shares == 0 {
			if err := tx.DeletePosition(ctx, memberID, ticker); err != nil {
				return err
			}
		} else if err := tx.PutPosition(ctx, pos); err != nil {
			return err
		}

		receipt = SellReceipt{
			TradeID:         uuid.New(),
			MemberID:        memberID,
			Ticker:          ticker,
			Shares:          shares,
			SettlementPrice: perShare,
			Proceeds:        proceeds,
		}
		return nil
	})
	return receipt, err
}
