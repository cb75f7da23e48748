package ledger_test

import (
	"context"
	"testing"

	"QuonkLedger/internal/ledger"
	"QuonkLedger/internal/money"
	"QuonkLedger/internal/testutil"
)

// Integration tests against a real Postgres; they skip when no test
// database is reachable. The MemStore tests cover the same contract, so
// what matters here is the SQL: upsert policies, truncation in the
// database, and rollback through real transactions.

func setupStore(t *testing.T) (*ledger.Store, context.Context) {
	t.Helper()
	db, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)
	return ledger.NewStore(db), context.Background()
}

func TestStore_Register_SeedsStartingCash(t *testing.T) {
	store, ctx := setupStore(t)

	if err := store.Register(ctx, 42); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	cash, err := store.Cash(ctx, 42)
	if err != nil {
		t.Fatalf("Cash failed: %v", err)
	}
	if !cash.Equal(money.StartingCash) {
		t.Errorf("cash: got %s, want %s", cash, money.StartingCash)
	}
}

func TestStore_Register_DuplicateMapsUniqueViolation(t *testing.T) {
	store, ctx := setupStore(t)

	if err := store.Register(ctx, 42); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}

	err := store.Register(ctx, 42)
	if ledger.KindOf(err) != ledger.KindAlreadyRegistered {
		t.Errorf("got %v, want KindAlreadyRegistered", err)
	}
}

func TestStore_AddCash_UnknownMember(t *testing.T) {
	store, ctx := setupStore(t)

	err := store.AddCash(ctx, 999, money.FromInt(1))
	if ledger.KindOf(err) != ledger.KindUnknownMember {
		t.Errorf("got %v, want KindUnknownMember", err)
	}
}

func TestStore_Upsert_MergeKeepLastPrice(t *testing.T) {
	store, ctx := setupStore(t)
	store.Register(ctx, 1)

	store.UpsertPosition(ctx, ledger.Position{
		MemberID: 1, Ticker: "ABC", Shares: 10,
		LastPrice: money.FromInt(10), Value: money.FromInt(100),
	}, ledger.MergeKeepLastPrice)
	store.UpsertPosition(ctx, ledger.Position{
		MemberID: 1, Ticker: "ABC", Shares: 5,
		LastPrice: money.FromInt(20), Value: money.FromInt(100),
	}, ledger.MergeKeepLastPrice)

	pos, ok, err := store.Position(ctx, 1, "ABC")
	if err != nil || !ok {
		t.Fatalf("Position: ok=%v err=%v", ok, err)
	}
	if pos.Shares != 15 {
		t.Errorf("shares: got %d, want 15", pos.Shares)
	}
	if !pos.LastPrice.Equal(money.FromInt(20)) {
		t.Errorf("last price: got %s, want 20", pos.LastPrice)
	}
	if !pos.Value.Equal(money.FromInt(200)) {
		t.Errorf("value: got %s, want 200", pos.Value)
	}
}

func TestStore_Upsert_MergeWeightedValue_TruncatesInSQL(t *testing.T) {
	store, ctx := setupStore(t)
	store.Register(ctx, 1)

	store.UpsertPosition(ctx, ledger.Position{
		MemberID: 1, Ticker: "ABC", Shares: 1,
		LastPrice: money.FromInt(10), Value: money.FromInt(10),
	}, ledger.MergeWeightedValue)
	store.UpsertPosition(ctx, ledger.Position{
		MemberID: 1, Ticker: "ABC", Shares: 2,
		LastPrice: money.FromInt(11), Value: money.FromInt(22),
	}, ledger.MergeWeightedValue)

	pos, _, _ := store.Position(ctx, 1, "ABC")
	if !pos.LastPrice.Equal(money.MustParse("10.666666")) {
		t.Errorf("weighted last price: got %s, want 10.666666", pos.LastPrice)
	}
}

func TestStore_PutPosition_UnknownPosition(t *testing.T) {
	store, ctx := setupStore(t)
	store.Register(ctx, 1)

	err := store.PutPosition(ctx, ledger.Position{
		MemberID: 1, Ticker: "NONE", Shares: 1,
		LastPrice: money.FromInt(1), Value: money.FromInt(1),
	})
	if ledger.KindOf(err) != ledger.KindUnknownPosition {
		t.Errorf("got %v, want KindUnknownPosition", err)
	}
}

func TestStore_Positions_OrderedByTicker(t *testing.T) {
	store, ctx := setupStore(t)
	store.Register(ctx, 1)

	for _, ticker := range []string{"ZZZ", "AAA", "MMM"} {
		store.UpsertPosition(ctx, ledger.Position{
			MemberID: 1, Ticker: ticker, Shares: 1,
			LastPrice: money.FromInt(1), Value: money.FromInt(1),
		}, ledger.MergeKeepLastPrice)
	}

	var got []string
	for pos, err := range store.Positions(ctx, 1) {
		if err != nil {
			t.Fatalf("Positions failed: %v", err)
		}
		got = append(got, pos.Ticker)
	}
	want := []string{"AAA", "MMM", "ZZZ"}
	for i := range want {
		if i >= len(got) || got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestStore_WithTx_RollsBackOnError(t *testing.T) {
	store, ctx := setupStore(t)
	store.Register(ctx, 1)

	err := store.WithTx(ctx, func(tx ledger.Ledger) error {
		if err := tx.AddCash(ctx, 1, money.FromInt(-5_000)); err != nil {
			return err
		}
		return ledger.ErrInvalidShares("forced failure")
	})
	if ledger.KindOf(err) != ledger.KindInvalidShares {
		t.Fatalf("got %v, want KindInvalidShares", err)
	}

	cash, _ := store.Cash(ctx, 1)
	if !cash.Equal(money.StartingCash) {
		t.Errorf("cash after rollback: got %s, want %s", cash, money.StartingCash)
	}
}

func TestStore_CashTruncation_RoundTrip(t *testing.T) {
	store, ctx := setupStore(t)
	store.Register(ctx, 1)

	// NUMERIC(18,6) holds all six digits; nothing rounds on the way through.
	if err := store.AddCash(ctx, 1, money.MustParse("-0.000001")); err != nil {
		t.Fatalf("AddCash failed: %v", err)
	}
	cash, _ := store.Cash(ctx, 1)
	if !cash.Equal(money.MustParse("9999.999999")) {
		t.Errorf("cash: got %s, want 9999.999999", cash)
	}
}
