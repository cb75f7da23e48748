package ledger

import (
	"context"
	"iter"

	"QuonkLedger/internal/money"
)

// Position is a member's standing in one ticker. Shares is strictly
// positive for any persisted row: a position is deleted the instant its
// share count reaches zero.
type Position struct {
	MemberID  int64
	Ticker    string
	Shares    int64
	LastPrice money.Amount // last observed market price
	Value     money.Amount // accumulated value: principal plus every |Δprice| observed
}

// UpsertPolicy selects how UpsertPosition merges into an existing row.
// The trade executor chooses the policy explicitly; implementations must
// not mix them.
type UpsertPolicy uint8

const (
	// MergeKeepLastPrice adds the incoming shares and principal and takes
	// the incoming price as the new last-observed price. This is the policy
	// the trade executor uses on a buy into an existing position (which has
	// already been observed at the incoming price).
	MergeKeepLastPrice UpsertPolicy = iota
	// MergeWeightedValue adds shares and principal but records the
	// share-weighted average of the old and incoming prices. Historical
	// alternate policy; implemented and tested, not used by the executor.
	MergeWeightedValue
)

// Ledger is the durable store of members, cash balances and positions.
// One logical ledger is shared by all callers; every multi-step trade runs
// against the view passed to WithTx so the sequence commits or rolls back
// as a unit.
type Ledger interface {
	// Register creates the member and seeds its cash account with
	// money.StartingCash. Registering an existing id fails with
	// KindAlreadyRegistered; idempotency is deliberately not provided.
	Register(ctx context.Context, memberID int64) error

	Exists(ctx context.Context, memberID int64) (bool, error)

	// RequireExists fails with KindUnknownMember when absent. Guard for
	// every trade or holdings read.
	RequireExists(ctx context.Context, memberID int64) error

	// Cash returns the member's balance, KindUnknownMember when absent.
	Cash(ctx context.Context, memberID int64) (money.Amount, error)

	// AddCash truncates delta and adds it to the balance. No floor check:
	// callers validate solvency before debiting.
	AddCash(ctx context.Context, memberID int64, delta money.Amount) error

	// Shares returns the held share count, 0 when no position exists
	// (absence is not an error here).
	Shares(ctx context.Context, memberID int64, ticker string) (int64, error)

	// Position returns the position and whether it exists.
	Position(ctx context.Context, memberID int64, ticker string) (Position, bool, error)

	// Positions yields the member's positions ordered by ticker ascending.
	// The sequence is lazy and re-iterable: each range issues a fresh read,
	// reflecting the store at that moment rather than a frozen snapshot.
	Positions(ctx context.Context, memberID int64) iter.Seq2[Position, error]

	// PutPosition overwrites shares, last price and value of an existing
	// row in one logical update (the observation write-back).
	PutPosition(ctx context.Context, pos Position) error

	// UpsertPosition inserts pos, or merges it into the existing row for
	// (member, ticker) under the given policy. At most one row per pair.
	UpsertPosition(ctx context.Context, pos Position, policy UpsertPolicy) error

	// DeletePosition removes the row; idempotent.
	DeletePosition(ctx context.Context, memberID int64, ticker string) error

	// Members yields every registered member id in stable storage order.
	Members(ctx context.Context) iter.Seq2[int64, error]

	// Holders returns the ids of every member holding ticker.
	Holders(ctx context.Context, ticker string) ([]int64, error)

	// WithTx runs fn against a transactional view of the ledger. fn's
	// writes are discarded when it returns an error.
	WithTx(ctx context.Context, fn func(tx Ledger) error) error
}
