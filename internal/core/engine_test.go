package core_test

import (
	"context"
	"errors"
	"testing"

	"QuonkLedger/internal/core"
	"QuonkLedger/internal/ledger"
	"QuonkLedger/internal/money"
)

const member = int64(1001)

func newTestEngine(t *testing.T) (*core.Engine, *ledger.MemStore, context.Context) {
	t.Helper()
	store := ledger.NewMemStore()
	ctx := context.Background()
	if err := store.Register(ctx, member); err != nil {
		t.Fatalf("register: %v", err)
	}
	return core.NewEngine(store), store, ctx
}

func mustBuy(t *testing.T, e *core.Engine, ctx context.Context, ticker string, shares int64, price money.Amount) core.BuyReceipt {
	t.Helper()
	receipt, err := e.Buy(ctx, member, ticker, shares, price)
	if err != nil {
		t.Fatalf("Buy %d %s @ %s failed: %v", shares, ticker, price, err)
	}
	return receipt
}

// ============================================================================
// Test: Buy
// ============================================================================

func TestBuy_DebitsCashAndOpensPosition(t *testing.T) {
	engine, store, ctx := newTestEngine(t)

	receipt := mustBuy(t, engine, ctx, "ABC", 10, money.FromInt(10))

	if !receipt.Cost.Equal(money.FromInt(100)) {
		t.Errorf("cost: got %s, want 100", receipt.Cost)
	}

	cash, _ := store.Cash(ctx, member)
	if !cash.Equal(money.FromInt(9_900)) {
		t.Errorf("cash: got %s, want 9900", cash)
	}

	pos, ok, _ := store.Position(ctx, member, "ABC")
	if !ok {
		t.Fatal("position should exist")
	}
	if pos.Shares != 10 {
		t.Errorf("shares: got %d, want 10", pos.Shares)
	}
	if !pos.LastPrice.Equal(money.FromInt(10)) {
		t.Errorf("last price: got %s, want 10", pos.LastPrice)
	}
	if !pos.Value.Equal(money.FromInt(100)) {
		t.Errorf("value: got %s, want 100", pos.Value)
	}
}

func TestBuy_InsufficientFunds_CarriesAffordableLimit(t *testing.T) {
	engine, store, ctx := newTestEngine(t)

	// 10,000 cash at 3,000 per share affords exactly 3.
	_, err := engine.Buy(ctx, member, "ABC", 4, money.FromInt(3_000))
	if ledger.KindOf(err) != ledger.KindInsufficientFunds {
		t.Fatalf("got %v, want KindInsufficientFunds", err)
	}
	var lerr *ledger.Error
	if !errors.As(err, &lerr) {
		t.Fatal("expected *ledger.Error")
	}
	if lerr.Limit != 3 {
		t.Errorf("affordable limit: got %d, want 3", lerr.Limit)
	}

	// Rejection leaves the ledger untouched.
	cash, _ := store.Cash(ctx, member)
	if !cash.Equal(money.StartingCash) {
		t.Errorf("cash after rejection: got %s, want %s", cash, money.StartingCash)
	}
	if _, ok, _ := store.Position(ctx, member, "ABC"); ok {
		t.Error("no position should exist after a rejected buy")
	}
}

func TestBuy_InvalidShares(t *testing.T) {
	engine, store, ctx := newTestEngine(t)

	for _, shares := range []int64{0, -5} {
		_, err := engine.Buy(ctx, member, "ABC", shares, money.FromInt(10))
		if ledger.KindOf(err) != ledger.KindInvalidShares {
			t.Errorf("shares=%d: got %v, want KindInvalidShares", shares, err)
		}
	}

	cash, _ := store.Cash(ctx, member)
	if !cash.Equal(money.StartingCash) {
		t.Errorf("cash: got %s, want %s", cash, money.StartingCash)
	}
}

func TestBuy_UnregisteredMember(t *testing.T) {
	engine, _, ctx := newTestEngine(t)

	_, err := engine.Buy(ctx, 9999, "ABC", 1, money.FromInt(10))
	if ledger.KindOf(err) != ledger.KindUnknownMember {
		t.Errorf("got %v, want KindUnknownMember", err)
	}
}

func TestBuy_MergeObservesThenAddsPrincipal(t *testing.T) {
	engine, store, ctx := newTestEngine(t)

	// 10 shares at 10: value 100.
	mustBuy(t, engine, ctx, "ABC", 10, money.FromInt(10))

	// Buying 5 more at 20 first observes the move (10 shares * |20-10| = 100
	// accrues), then adds the new principal 5*20 = 100.
	mustBuy(t, engine, ctx, "ABC", 5, money.FromInt(20))

	pos, _, _ := store.Position(ctx, member, "ABC")
	if pos.Shares != 15 {
		t.Errorf("shares: got %d, want 15", pos.Shares)
	}
	if !pos.Value.Equal(money.FromInt(300)) {
		t.Errorf("value: got %s, want 300", pos.Value)
	}
	if !pos.LastPrice.Equal(money.FromInt(20)) {
		t.Errorf("last price: got %s, want 20", pos.LastPrice)
	}
}

// ============================================================================
// Test: Observe
// ============================================================================

func TestObserve_AccruesAbsoluteDeviation(t *testing.T) {
	engine, store, ctx := newTestEngine(t)
	mustBuy(t, engine, ctx, "ABC", 10, money.FromInt(10))

	// Up move: 10 * |20-10| = 100 accrues.
	if err := engine.Observe(ctx, member, "ABC", money.FromInt(20)); err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	pos, _, _ := store.Position(ctx, member, "ABC")
	if !pos.Value.Equal(money.FromInt(200)) {
		t.Errorf("value after up move: got %s, want 200", pos.Value)
	}

	// Down move accrues the same way: 10 * |10-20| = 100.
	if err := engine.Observe(ctx, member, "ABC", money.FromInt(10)); err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	pos, _, _ = store.Position(ctx, member, "ABC")
	if !pos.Value.Equal(money.FromInt(300)) {
		t.Errorf("value after down move: got %s, want 300", pos.Value)
	}
	if !pos.LastPrice.Equal(money.FromInt(10)) {
		t.Errorf("last price: got %s, want 10", pos.LastPrice)
	}
}

func TestObserve_SamePriceIsNoOp(t *testing.T) {
	engine, store, ctx := newTestEngine(t)
	mustBuy(t, engine, ctx, "ABC", 10, money.FromInt(10))

	if err := engine.Observe(ctx, member, "ABC", money.FromInt(10)); err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	pos, _, _ := store.Position(ctx, member, "ABC")
	if !pos.Value.Equal(money.FromInt(100)) {
		t.Errorf("value: got %s, want 100", pos.Value)
	}
}

func TestObserve_NeverCreatesPosition(t *testing.T) {
	engine, store, ctx := newTestEngine(t)

	err := engine.Observe(ctx, member, "NONE", money.FromInt(10))
	if ledger.KindOf(err) != ledger.KindUnknownPosition {
		t.Errorf("got %v, want KindUnknownPosition", err)
	}
	if _, ok, _ := store.Position(ctx, member, "NONE"); ok {
		t.Error("observation must not create a position")
	}
}

func TestObserve_UnregisteredMember(t *testing.T) {
	engine, _, ctx := newTestEngine(t)

	err := engine.Observe(ctx, 9999, "ABC", money.FromInt(10))
	if ledger.KindOf(err) != ledger.KindUnknownMember {
		t.Errorf("got %v, want KindUnknownMember", err)
	}
}

func TestObserveTicker_FansOutToAllHolders(t *testing.T) {
	store := ledger.NewMemStore()
	engine := core.NewEngine(store)
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3} {
		store.Register(ctx, id)
	}
	for _, id := range []int64{1, 2} {
		if _, err := engine.Buy(ctx, id, "ABC", 10, money.FromInt(10)); err != nil {
			t.Fatalf("buy for %d: %v", id, err)
		}
	}

	observed, err := engine.ObserveTicker(ctx, "ABC", money.FromInt(15))
	if err != nil {
		t.Fatalf("ObserveTicker failed: %v", err)
	}
	if observed != 2 {
		t.Errorf("observed: got %d, want 2", observed)
	}

	for _, id := range []int64{1, 2} {
		pos, _, _ := store.Position(ctx, id, "ABC")
		if !pos.Value.Equal(money.FromInt(150)) {
			t.Errorf("member %d value: got %s, want 150", id, pos.Value)
		}
	}
	// Member 3 never held the ticker and stays untouched.
	if _, ok, _ := store.Position(ctx, 3, "ABC"); ok {
		t.Error("member 3 should have no position")
	}
}

// ============================================================================
// Test: Sell
// ============================================================================

func TestSell_SettlesAtPerShareValue(t *testing.T) {
	engine, store, ctx := newTestEngine(t)

	// The canonical ride: buy 10 at 10, price swings 10→20→10, sell all 10
	// back at market price 10. The position is worth 300 by then, so the
	// settlement price is 30 per share even though the market never left
	// the 10-20 band.
	mustBuy(t, engine, ctx, "ABC", 10, money.FromInt(10))
	engine.Observe(ctx, member, "ABC", money.FromInt(20))

	receipt, err := engine.Sell(ctx, member, "ABC", 10, money.FromInt(10))
	if err != nil {
		t.Fatalf("Sell failed: %v", err)
	}
	if !receipt.SettlementPrice.Equal(money.FromInt(30)) {
		t.Errorf("settlement price: got %s, want 30", receipt.SettlementPrice)
	}
	if !receipt.Proceeds.Equal(money.FromInt(300)) {
		t.Errorf("proceeds: got %s, want 300", receipt.Proceeds)
	}

	cash, _ := store.Cash(ctx, member)
	if !cash.Equal(money.FromInt(10_200)) {
		t.Errorf("cash: got %s, want 10200", cash)
	}
	if _, ok, _ := store.Position(ctx, member, "ABC"); ok {
		t.Error("fully sold position should be removed")
	}
}

func TestSell_PartialKeepsRemainder(t *testing.T) {
	engine, store, ctx := newTestEngine(t)
	mustBuy(t, engine, ctx, "ABC", 10, money.FromInt(10))

	receipt, err := engine.Sell(ctx, member, "ABC", 4, money.FromInt(10))
	if err != nil {
		t.Fatalf("Sell failed: %v", err)
	}
	if !receipt.SettlementPrice.Equal(money.FromInt(10)) {
		t.Errorf("settlement price: got %s, want 10", receipt.SettlementPrice)
	}

	pos, ok, _ := store.Position(ctx, member, "ABC")
	if !ok {
		t.Fatal("partial position should remain")
	}
	if pos.Shares != 6 {
		t.Errorf("remaining shares: got %d, want 6", pos.Shares)
	}
	if !pos.Value.Equal(money.FromInt(60)) {
		t.Errorf("remaining value: got %s, want 60", pos.Value)
	}
}

func TestSell_TruncatedSettlement(t *testing.T) {
	engine, store, ctx := newTestEngine(t)

	// Build a position whose value is not divisible by its share count:
	// 1 share at 100 (value 100), then 2 more at 50 — the merge observes the
	// drop first (1 * |50-100| = 50 accrues) and adds the new principal 100,
	// landing at 3 shares worth 250.
	mustBuy(t, engine, ctx, "ABC", 1, money.FromInt(100))
	mustBuy(t, engine, ctx, "ABC", 2, money.FromInt(50))

	// 250/3 = 83.333333... — the settlement price keeps six digits,
	// truncated, and the proceeds come up a fraction short of the value.
	receipt, err := engine.Sell(ctx, member, "ABC", 3, money.FromInt(50))
	if err != nil {
		t.Fatalf("Sell failed: %v", err)
	}
	if !receipt.SettlementPrice.Equal(money.MustParse("83.333333")) {
		t.Errorf("settlement price: got %s, want 83.333333", receipt.SettlementPrice)
	}
	if !receipt.Proceeds.Equal(money.MustParse("249.999999")) {
		t.Errorf("proceeds: got %s, want 249.999999", receipt.Proceeds)
	}

	cash, _ := store.Cash(ctx, member)
	if !cash.Equal(money.MustParse("10049.999999")) {
		t.Errorf("cash: got %s, want 10049.999999", cash)
	}
	if _, ok, _ := store.Position(ctx, member, "ABC"); ok {
		t.Error("fully sold position should be removed")
	}
}

func TestSell_MoreThanOwned(t *testing.T) {
	engine, store, ctx := newTestEngine(t)
	mustBuy(t, engine, ctx, "ABC", 5, money.FromInt(10))

	_, err := engine.Sell(ctx, member, "ABC", 6, money.FromInt(10))
	if ledger.KindOf(err) != ledger.KindInvalidShares {
		t.Fatalf("got %v, want KindInvalidShares", err)
	}

	// Rejection leaves everything as it was, the last price included.
	pos, _, _ := store.Position(ctx, member, "ABC")
	if pos.Shares != 5 || !pos.Value.Equal(money.FromInt(50)) {
		t.Errorf("position mutated by rejected sell: %+v", pos)
	}
}

func TestSell_TickerNeverHeld(t *testing.T) {
	engine, _, ctx := newTestEngine(t)

	_, err := engine.Sell(ctx, member, "NONE", 1, money.FromInt(10))
	if ledger.KindOf(err) != ledger.KindInvalidShares {
		t.Errorf("got %v, want KindInvalidShares", err)
	}
}

func TestSell_InvalidShares(t *testing.T) {
	engine, _, ctx := newTestEngine(t)
	mustBuy(t, engine, ctx, "ABC", 5, money.FromInt(10))

	for _, shares := range []int64{0, -1} {
		_, err := engine.Sell(ctx, member, "ABC", shares, money.FromInt(10))
		if ledger.KindOf(err) != ledger.KindInvalidShares {
			t.Errorf("shares=%d: got %v, want KindInvalidShares", shares, err)
		}
	}
}

// ============================================================================
// Test: Conservation
// ============================================================================

func TestRoundTrip_FlatPriceConservesCash(t *testing.T) {
	engine, store, ctx := newTestEngine(t)

	// Buy and immediately sell at the same price: no deviation ever
	// accrues, so cash comes back exactly.
	mustBuy(t, engine, ctx, "XYZ", 7, money.MustParse("142.857142"))
	if _, err := engine.Sell(ctx, member, "XYZ", 7, money.MustParse("142.857142")); err != nil {
		t.Fatalf("Sell failed: %v", err)
	}

	cash, _ := store.Cash(ctx, member)
	if !cash.Equal(money.StartingCash) {
		t.Errorf("cash: got %s, want %s", cash, money.StartingCash)
	}
}
