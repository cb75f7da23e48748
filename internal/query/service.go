// Package query serves the read side: the quote-driven holdings report and
// the leaderboard. Both are computed fresh on every call; nothing here is
// incrementally maintained.
package query

import (
	"context"
	"sort"

	"QuonkLedger/internal/core"
	"QuonkLedger/internal/ledger"
	"QuonkLedger/internal/money"
	"QuonkLedger/internal/quote"
)

// DefaultLeaderboardLimit caps leaderboard output when the caller does not
// ask for a specific size.
const DefaultLeaderboardLimit = 10

// Service reads member holdings and ranks net worth.
type Service struct {
	store  ledger.Ledger
	engine *core.Engine
	quotes quote.Source
}

func NewService(store ledger.Ledger, engine *core.Engine, quotes quote.Source) *Service {
	return &Service{store: store, engine: engine, quotes: quotes}
}

// HoldingRow is one ticker line of a holdings report.
type HoldingRow struct {
	Ticker string
	Shares int64
	Value  money.Amount
}

// HoldingsReport is a member's positions valued at the latest quotes, plus
// cash and the combined total.
type HoldingsReport struct {
	MemberID int64
	Rows     []HoldingRow
	Cash     money.Amount
	Total    money.Amount
}

// Leader is one leaderboard entry: cash plus accumulated position value.
type Leader struct {
	MemberID int64
	NetWorth money.Amount
}

// Holdings quotes every ticker the member holds, observes each price so
// accumulated values are current, and reports the resulting rows (ticker
// ascending), cash and total. A single unavailable quote fails the whole
// report; there is no fallback price.
func (s *Service) Holdings(ctx context.Context, memberID int64) (HoldingsReport, error) {
	report := HoldingsReport{MemberID: memberID}

	if err := s.store.RequireExists(ctx, memberID); err != nil {
		return report, err
	}

	var tickers []string
	for pos, err := range s.store.Positions(ctx, memberID) {
		if err != nil {
			return report, err
		}
		tickers = append(tickers, pos.Ticker)
	}

	// Quote and observe outside any transaction: each observation commits
	// on its own, and a quote failure aborts before the report is built.
	for _, ticker := range tickers {
		price, err := s.quotes.Quote(ctx, ticker)
		if err != nil {
			return report, err
		}
		if err := s.engine.Observe(ctx, memberID, ticker, price); err != nil {
			return report, err
		}
	}

	total := money.Amount{}
	for pos, err := range s.store.Positions(ctx, memberID) {
		if err != nil {
			return report, err
		}
		report.Rows = append(report.Rows, HoldingRow{
			Ticker: pos.Ticker,
			Shares: pos.Shares,
			Value:  pos.Value,
		})
		total = total.Add(pos.Value)
	}

	cash, err := s.store.Cash(ctx, memberID)
	if err != nil {
		return report, err
	}
	report.Cash = cash
	report.Total = total.Add(cash)
	return report, nil
}

// Leaderboard ranks members by net worth (cash plus accumulated position
// value), descending, at most limit entries. Ties keep storage iteration
// order. Members with a cash account and no positions still rank.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]Leader, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}

	var leaders []Leader
	for memberID, err := range s.store.Members(ctx) {
		if err != nil {
			return nil, err
		}

		net, err := s.store.Cash(ctx, memberID)
		if err != nil {
			return nil, err
		}
		for pos, err := range s.store.Positions(ctx, memberID) {
			if err != nil {
				return nil, err
			}
			net = net.Add(pos.Value)
		}
		leaders = append(leaders, Leader{MemberID: memberID, NetWorth: net})
	}

	sort.SliceStable(leaders, func(i, j int) bool {
		return leaders[i].NetWorth.GreaterThan(leaders[j].NetWorth)
	})
	if len(leaders) > limit {
		leaders = leaders[:limit]
	}
	return leaders, nil
}
