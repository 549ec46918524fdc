package wallet

import (
	"fmt"
	"time"

	"github.com/cuepool/backend/internal/money"
)

// Kind is the closed set of ledger entry kinds. Each kind carries only the
// optional fields relevant to it: match kinds set MatchID, gateway kinds may
// set GatewayRef once the external event arrives.
type Kind string

const (
	KindDeposit      Kind = "deposit"
	KindWithdrawal   Kind = "withdrawal"
	KindStakeLock    Kind = "stake_lock"
	KindStakeDebit   Kind = "stake_debit"
	KindPayoutCredit Kind = "payout_credit"
	KindRefundCredit Kind = "refund_credit"
	KindFeeCredit    Kind = "fee_credit"
)

// Status of a ledger entry. A completed entry is immutable evidence of a
// balance change that already happened.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Entry is one append-only ledger record. Amount is always positive paise;
// the kind says which direction the money moved.
type Entry struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Kind        Kind       `json:"kind"`
	Amount      int64      `json:"amount"`
	MatchID     string     `json:"match_id,omitempty"`
	GatewayRef  string     `json:"gateway_ref,omitempty"`
	Status      Status     `json:"status"`
	Reason      string     `json:"reason,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Balance is the caller-facing view of one account.
type Balance struct {
	UserID    string    `json:"user_id"`
	Balance   int64     `json:"balance"`
	Locked    int64     `json:"locked"`
	Available int64     `json:"available"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InsufficientFundsError reports a clean, side-effect-free rejection with
// the concrete amounts so the caller can show a specific reason.
type InsufficientFundsError struct {
	UserID    string
	Required  int64
	Available int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds for %s: required %s, available %s",
		e.UserID, money.FormatINR(e.Required), money.FormatINR(e.Available))
}

// ConsistencyError marks a state the ledger should never reach given correct
// callers (escrow/debit mismatch, double settlement). It must never be
// silently absorbed.
type ConsistencyError struct {
	Op      string
	UserID  string
	MatchID string
	Detail  string
}

func (e *ConsistencyError) Error() string {
	if e.MatchID != "" {
		return fmt.Sprintf("ledger consistency violation in %s (user=%s match=%s): %s", e.Op, e.UserID, e.MatchID, e.Detail)
	}
	return fmt.Sprintf("ledger consistency violation in %s (user=%s): %s", e.Op, e.UserID, e.Detail)
}
