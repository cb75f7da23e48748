package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/lib/pq"

	"QuonkLedger/internal/money"
)

// pgUniqueViolation is the Postgres error code raised on duplicate keys.
const pgUniqueViolation = "23505"

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx, so
// the same query methods serve both the store and its transactional view.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the Postgres-backed Ledger. It owns an explicit *sql.DB handle;
// nothing here reaches for ambient process-wide state.
type Store struct {
	db *sql.DB
	q  querier
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

// Open connects to Postgres, applies pool limits and verifies the
// connection before handing back a Store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return NewStore(db), nil
}

// DB exposes the underlying handle for migrations and health checks.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Register(ctx context.Context, memberID int64) error {
	return s.WithTx(ctx, func(tx Ledger) error {
		ts := tx.(*Store)
		if _, err := ts.q.ExecContext(ctx,
			`INSERT INTO members (id) VALUES ($1)`, memberID,
		); err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
				return ErrAlreadyRegistered(memberID)
			}
			return fmt.Errorf("insert member: %w", err)
		}

		if _, err := ts.q.ExecContext(ctx,
			`INSERT INTO cash (member_id, balance) VALUES ($1, $2)`,
			memberID, money.StartingCash,
		); err != nil {
			return fmt.Errorf("insert cash account: %w", err)
		}
		return nil
	})
}

func (s *Store) Exists(ctx context.Context, memberID int64) (bool, error) {
	var exists bool
	err := s.q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM members WHERE id = $1)`, memberID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("member exists: %w", err)
	}
	return exists, nil
}

func (s *Store) RequireExists(ctx context.Context, memberID int64) error {
	exists, err := s.Exists(ctx, memberID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrUnknownMember(memberID)
	}
	return nil
}

func (s *Store) Cash(ctx context.Context, memberID int64) (money.Amount, error) {
	var balance money.Amount
	err := s.q.QueryRowContext(ctx,
		`SELECT balance FROM cash WHERE member_id = $1`, memberID,
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return money.Amount{}, ErrUnknownMember(memberID)
	}
	if err != nil {
		return money.Amount{}, fmt.Errorf("select cash: %w", err)
	}
	return balance, nil
}

func (s *Store) AddCash(ctx context.Context, memberID int64, delta money.Amount) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE cash SET balance = balance + $2 WHERE member_id = $1`,
		memberID, delta,
	)
	if err != nil {
		return fmt.Errorf("update cash: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update cash: %w", err)
	}
	if n == 0 {
		return ErrUnknownMember(memberID)
	}
	return nil
}

func (s *Store) Shares(ctx context.Context, memberID int64, ticker string) (int64, error) {
	var shares int64
	err := s.q.QueryRowContext(ctx,
		`SELECT shares FROM positions WHERE member_id = $1 AND ticker = $2`,
		memberID, ticker,
	).Scan(&shares)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("select shares: %w", err)
	}
	return shares, nil
}

func (s *Store) Position(ctx context.Context, memberID int64, ticker string) (Position, bool, error) {
	var p Position
	err := s.q.QueryRowContext(ctx,
		`SELECT member_id, ticker, shares, last_price, value
		 FROM positions WHERE member_id = $1 AND ticker = $2`,
		memberID, ticker,
	).Scan(&p.MemberID, &p.Ticker, &p.Shares, &p.LastPrice, &p.Value)
	if errors.Is(err, sql.ErrNoRows) {
		return Position{}, false, nil
	}
	if err != nil {
		return Position{}, false, fmt.Errorf("select position: %w", err)
	}
	return p, true, nil
}

func (s *Store) Positions(ctx context.Context, memberID int64) iter.Seq2[Position, error] {
	return func(yield func(Position, error) bool) {
		rows, err := s.q.QueryContext(ctx,
			`SELECT member_id, ticker, shares, last_price, value
			 FROM positions WHERE member_id = $1 ORDER BY ticker ASC`,
			memberID,
		)
		if err != nil {
			yield(Position{}, fmt.Errorf("select positions: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var p Position
			if err := rows.Scan(&p.MemberID, &p.Ticker, &p.Shares, &p.LastPrice, &p.Value); err != nil {
				yield(Position{}, fmt.Errorf("scan position: %w", err))
				return
			}
			if !yield(p, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Position{}, fmt.Errorf("iterate positions: %w", err))
		}
	}
}

func (s *Store) PutPosition(ctx context.Context, pos Position) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE positions SET shares = $3, last_price = $4, value = $5
		 WHERE member_id = $1 AND ticker = $2`,
		pos.MemberID, pos.Ticker, pos.Shares, pos.LastPrice, pos.Value,
	)
	if err != nil {
		return fmt.Errorf("update position: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update position: %w", err)
	}
	if n == 0 {
		return ErrUnknownPosition(pos.MemberID, pos.Ticker)
	}
	return nil
}

func (s *Store) UpsertPosition(ctx context.Context, pos Position, policy UpsertPolicy) error {
	var query string
	switch policy {
	case MergeKeepLastPrice:
		query = `INSERT INTO positions (member_id, ticker, shares, last_price, value)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (member_id, ticker) DO UPDATE SET
				shares     = positions.shares + EXCLUDED.shares,
				last_price = EXCLUDED.last_price,
				value      = positions.value + EXCLUDED.value`
	case MergeWeightedValue:
		query = `INSERT INTO positions (member_id, ticker, shares, last_price, value)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (member_id, ticker) DO UPDATE SET
				shares     = positions.shares + EXCLUDED.shares,
				last_price = TRUNC(
					(positions.shares * positions.last_price + EXCLUDED.shares * EXCLUDED.last_price)
					/ (positions.shares + EXCLUDED.shares), 6),
				value      = positions.value + EXCLUDED.value`
	default:
		return fmt.Errorf("unknown upsert policy %d", policy)
	}

	if _, err := s.q.ExecContext(ctx, query,
		pos.MemberID, pos.Ticker, pos.Shares, pos.LastPrice, pos.Value,
	); err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}
	return nil
}

func (s *Store) DeletePosition(ctx context.Context, memberID int64, ticker string) error {
	if _, err := s.q.ExecContext(ctx,
		`DELETE FROM positions WHERE member_id = $1 AND ticker = $2`,
		memberID, ticker,
	); err != nil {
		return fmt.Errorf("delete position: %w", err)
	}
	return nil
}

func (s *Store) Members(ctx context.Context) iter.Seq2[int64, error] {
	return func(yield func(int64, error) bool) {
		rows, err := s.q.QueryContext(ctx, `SELECT id FROM members ORDER BY id ASC`)
		if err != nil {
			yield(0, fmt.Errorf("select members: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				yield(0, fmt.Errorf("scan member: %w", err))
				return
			}
			if !yield(id, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(0, fmt.Errorf("iterate members: %w", err))
		}
	}
}

func (s *Store) Holders(ctx context.Context, ticker string) ([]int64, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT member_id FROM positions WHERE ticker = $1 ORDER BY member_id ASC`,
		ticker,
	)
	if err != nil {
		return nil, fmt.Errorf("select holders: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan holder: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// WithTx runs fn against a transactional view. Nested calls reuse the
// outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx Ledger) error) error {
	if _, nested := s.q.(*sql.Tx); nested {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	view := &Store{db: s.db, q: tx}
	if err := fn(view); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
