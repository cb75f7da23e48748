package ledger

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"slices"
	"strings"
	"sync"

	"QuonkLedger/internal/money"
)

type posKey struct {
	memberID int64
	ticker   string
}

// memState is the raw map-keyed ledger state. All methods assume the
// caller holds the owning MemStore's lock.
type memState struct {
	members   []int64 // insertion order, the store's stable iteration order
	memberSet map[int64]bool
	cash      map[int64]money.Amount
	positions map[posKey]Position
}

func newMemState() memState {
	return memState{
		memberSet: make(map[int64]bool),
		cash:      make(map[int64]money.Amount),
		positions: make(map[posKey]Position),
	}
}

func (st *memState) clone() memState {
	return memState{
		members:   slices.Clone(st.members),
		memberSet: maps.Clone(st.memberSet),
		cash:      maps.Clone(st.cash),
		positions: maps.Clone(st.positions),
	}
}

// MemStore is an in-memory Ledger. It backs unit tests and the
// postgres-free dev mode; the original system ran against an embedded
// database the same way. WithTx snapshots the state and restores it when
// the callback fails, so failed trades leave nothing behind.
type MemStore struct {
	mu sync.Mutex
	st memState
}

func NewMemStore() *MemStore {
	return &MemStore{st: newMemState()}
}

// memView exposes the state as a Ledger without locking; it is only ever
// handed out while the MemStore lock is held.
type memView struct {
	st *memState
}

func (m *MemStore) locked(fn func(v *memView) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&memView{st: &m.st})
}

func (m *MemStore) Register(ctx context.Context, memberID int64) error {
	return m.locked(func(v *memView) error { return v.Register(ctx, memberID) })
}

func (m *MemStore) Exists(ctx context.Context, memberID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memView{st: &m.st}).Exists(ctx, memberID)
}

func (m *MemStore) RequireExists(ctx context.Context, memberID int64) error {
	return m.locked(func(v *memView) error { return v.RequireExists(ctx, memberID) })
}

func (m *MemStore) Cash(ctx context.Context, memberID int64) (money.Amount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memView{st: &m.st}).Cash(ctx, memberID)
}

func (m *MemStore) AddCash(ctx context.Context, memberID int64, delta money.Amount) error {
	return m.locked(func(v *memView) error { return v.AddCash(ctx, memberID, delta) })
}

func (m *MemStore) Shares(ctx context.Context, memberID int64, ticker string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memView{st: &m.st}).Shares(ctx, memberID, ticker)
}

func (m *MemStore) Position(ctx context.Context, memberID int64, ticker string) (Position, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memView{st: &m.st}).Position(ctx, memberID, ticker)
}

func (m *MemStore) Positions(ctx context.Context, memberID int64) iter.Seq2[Position, error] {
	return func(yield func(Position, error) bool) {
		m.mu.Lock()
		ordered := (&memView{st: &m.st}).orderedPositions(memberID)
		m.mu.Unlock()
		for _, p := range ordered {
			if !yield(p, nil) {
				return
			}
		}
	}
}

func (m *MemStore) PutPosition(ctx context.Context, pos Position) error {
	return m.locked(func(v *memView) error { return v.PutPosition(ctx, pos) })
}

func (m *MemStore) UpsertPosition(ctx context.Context, pos Position, policy UpsertPolicy) error {
	return m.locked(func(v *memView) error { return v.UpsertPosition(ctx, pos, policy) })
}

func (m *MemStore) DeletePosition(ctx context.Context, memberID int64, ticker string) error {
	return m.locked(func(v *memView) error { return v.DeletePosition(ctx, memberID, ticker) })
}

func (m *MemStore) Members(ctx context.Context) iter.Seq2[int64, error] {
	return func(yield func(int64, error) bool) {
		m.mu.Lock()
		ids := slices.Clone(m.st.members)
		m.mu.Unlock()
		for _, id := range ids {
			if !yield(id, nil) {
				return
			}
		}
	}
}

func (m *MemStore) Holders(ctx context.Context, ticker string) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memView{st: &m.st}).Holders(ctx, ticker)
}

func (m *MemStore) WithTx(ctx context.Context, fn func(tx Ledger) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	saved := m.st.clone()
	if err := fn(&memView{st: &m.st}); err != nil {
		m.st = saved
		return err
	}
	return nil
}

// --- memView: the unlocked implementation ---

func (v *memView) Register(_ context.Context, memberID int64) error {
	if v.st.memberSet[memberID] {
		return ErrAlreadyRegistered(memberID)
	}
	v.st.memberSet[memberID] = true
	v.st.members = append(v.st.members, memberID)
	v.st.cash[memberID] = money.StartingCash
	return nil
}

func (v *memView) Exists(_ context.Context, memberID int64) (bool, error) {
	return v.st.memberSet[memberID], nil
}

func (v *memView) RequireExists(_ context.Context, memberID int64) error {
	if !v.st.memberSet[memberID] {
		return ErrUnknownMember(memberID)
	}
	return nil
}

func (v *memView) Cash(_ context.Context, memberID int64) (money.Amount, error) {
	if !v.st.memberSet[memberID] {
		return money.Amount{}, ErrUnknownMember(memberID)
	}
	return v.st.cash[memberID], nil
}

func (v *memView) AddCash(_ context.Context, memberID int64, delta money.Amount) error {
	if !v.st.memberSet[memberID] {
		return ErrUnknownMember(memberID)
	}
	v.st.cash[memberID] = v.st.cash[memberID].Add(delta)
	return nil
}

func (v *memView) Shares(_ context.Context, memberID int64, ticker string) (int64, error) {
	return v.st.positions[posKey{memberID, ticker}].Shares, nil
}

func (v *memView) Position(_ context.Context, memberID int64, ticker string) (Position, bool, error) {
	p, ok := v.st.positions[posKey{memberID, ticker}]
	return p, ok, nil
}

func (v *memView) orderedPositions(memberID int64) []Position {
	var out []Position
	for k, p := range v.st.positions {
		if k.memberID == memberID {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b Position) int {
		return strings.Compare(a.Ticker, b.Ticker)
	})
	return out
}

func (v *memView) Positions(ctx context.Context, memberID int64) iter.Seq2[Position, error] {
	return func(yield func(Position, error) bool) {
		for _, p := range v.orderedPositions(memberID) {
			if !yield(p, nil) {
				return
			}
		}
	}
}

func (v *memView) PutPosition(_ context.Context, pos Position) error {
	key := posKey{pos.MemberID, pos.Ticker}
	if _, ok := v.st.positions[key]; !ok {
		return ErrUnknownPosition(pos.MemberID, pos.Ticker)
	}
	v.st.positions[key] = pos
	return nil
}

func (v *memView) UpsertPosition(_ context.Context, pos Position, policy UpsertPolicy) error {
	key := posKey{pos.MemberID, pos.Ticker}
	cur, ok := v.st.positions[key]
	if !ok {
		v.st.positions[key] = pos
		return nil
	}

	merged := Position{
		MemberID: pos.MemberID,
		Ticker:   pos.Ticker,
		Shares:   cur.Shares + pos.Shares,
		Value:    cur.Value.Add(pos.Value),
	}
	switch policy {
	case MergeKeepLastPrice:
		merged.LastPrice = pos.LastPrice
	case MergeWeightedValue:
		merged.LastPrice = money.WeightedAvg(cur.Shares, cur.LastPrice, pos.Shares, pos.LastPrice)
	default:
		return fmt.Errorf("unknown upsert policy %d", policy)
	}
	v.st.positions[key] = merged
	return nil
}

func (v *memView) DeletePosition(_ context.Context, memberID int64, ticker string) error {
	delete(v.st.positions, posKey{memberID, ticker})
	return nil
}

func (v *memView) Members(_ context.Context) iter.Seq2[int64, error] {
	return func(yield func(int64, error) bool) {
		for _, id := range v.st.members {
			if !yield(id, nil) {
				return
			}
		}
	}
}

func (v *memView) Holders(_ context.Context, ticker string) ([]int64, error) {
	var ids []int64
	for k := range v.st.positions {
		if k.ticker == ticker {
			ids = append(ids, k.memberID)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// WithTx inside an open transaction just reuses it; rollback belongs to
// the outermost scope.
func (v *memView) WithTx(_ context.Context, fn func(tx Ledger) error) error {
	return fn(v)
}
