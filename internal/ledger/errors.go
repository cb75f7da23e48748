package ledger

import (
	"errors"
	"fmt"
)

// Kind enumerates every failure the ledger and trade executor can produce.
// The set is closed: callers can switch over it exhaustively and render a
// user-facing message per case.
type Kind uint8

const (
	KindAlreadyRegistered Kind = iota + 1
	KindUnknownMember
	KindUnknownPosition
	KindInvalidShares
	KindInsufficientFunds
)

func (k Kind) String() string {
	switch k {
	case KindAlreadyRegistered:
		return "already_registered"
	case KindUnknownMember:
		return "unknown_member"
	case KindUnknownPosition:
		return "unknown_position"
	case KindInvalidShares:
		return "invalid_shares"
	case KindInsufficientFunds:
		return "insufficient_funds"
	}
	return "unknown"
}

// Error is the tagged failure value for ledger operations. Ticker and Limit
// are populated only where the kind calls for them; Limit is the affordable
// share count carried by KindInsufficientFunds (may be 0).
type Error struct {
	Kind     Kind
	MemberID int64
	Ticker   string
	Limit    int64
	Reason   string
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindAlreadyRegistered:
		return fmt.Sprintf("member %d is already registered", e.MemberID)
	case KindUnknownMember:
		return fmt.Sprintf("member %d is not registered", e.MemberID)
	case KindUnknownPosition:
		return fmt.Sprintf("member %d holds no position in %s", e.MemberID, e.Ticker)
	case KindInvalidShares:
		if e.Reason != "" {
			return e.Reason
		}
		return "share count must be positive"
	case KindInsufficientFunds:
		if e.Limit > 0 {
			return fmt.Sprintf("only enough cash for %d shares of %s", e.Limit, e.Ticker)
		}
		return fmt.Sprintf("not enough cash for any shares of %s", e.Ticker)
	}
	return "ledger error"
}

// Is lets errors.Is match on kind alone: errors.Is(err, &Error{Kind: k}).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf extracts the failure kind, or 0 when err is not a ledger failure.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func ErrAlreadyRegistered(memberID int64) error {
	return &Error{Kind: KindAlreadyRegistered, MemberID: memberID}
}

func ErrUnknownMember(memberID int64) error {
	return &Error{Kind: KindUnknownMember, MemberID: memberID}
}

func ErrUnknownPosition(memberID int64, ticker string) error {
	return &Error{Kind: KindUnknownPosition, MemberID: memberID, Ticker: ticker}
}

func ErrInvalidShares(reason string) error {
	return &Error{Kind: KindInvalidShares, Reason: reason}
}

func ErrInsufficientFunds(memberID int64, ticker string, limit int64) error {
	return &Error{Kind: KindInsufficientFunds, MemberID: memberID, Ticker: ticker, Limit: limit}
}
