package queue

import (
	"errors"
	"testing"

	"github.com/cuepool/backend/internal/store"
	"github.com/cuepool/backend/internal/wallet"
)

var testTiers = []int64{1000, 2000, 5000, 10000}

func newTestQueue(t *testing.T) (*wallet.Ledger, *Queue) {
	t.Helper()
	ledger := wallet.NewLedger(store.NewMemory())
	return ledger, New(ledger, testTiers)
}

func fund(t *testing.T, l *wallet.Ledger, userID string, amount int64) {
	t.Helper()
	entry, err := l.RequestDeposit(userID, amount)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := l.ConfirmExternal(entry.ID, "gw"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
}

func TestJoinWaitsThenPairsFIFO(t *testing.T) {
	ledger, q := newTestQueue(t)
	for _, u := range []string{"p1", "p2", "p3"} {
		fund(t, ledger, u, 10000)
	}

	r1, err := q.Join("p1", "P1", 1000)
	if err != nil || r1.Status != StatusWaiting {
		t.Fatalf("first join should wait: %v %v", r1, err)
	}
	r2, err := q.Join("p2", "P2", 1000)
	if err != nil || r2.Status != StatusWaiting {
		t.Fatalf("second join should wait behind p1: %v %v", r2, err)
	}

	// p3 joins: the oldest waiter (p1) is paired first.
	r3, err := q.Join("p3", "P3", 1000)
	if err != nil || r3.Status != StatusMatched {
		t.Fatalf("third join should match: %v %v", r3, err)
	}
	if r3.Opponent.UserID != "p1" {
		t.Errorf("FIFO violated: expected opponent p1, got %s", r3.Opponent.UserID)
	}
	if q.Depth(1000) != 1 || !q.Waiting("p2", 1000) {
		t.Errorf("p2 should still be waiting")
	}
}

func TestCrossTierNeverPairs(t *testing.T) {
	ledger, q := newTestQueue(t)
	fund(t, ledger, "p1", 10000)
	fund(t, ledger, "p2", 10000)

	q.Join("p1", "P1", 1000)
	r, err := q.Join("p2", "P2", 2000)
	if err != nil || r.Status != StatusWaiting {
		t.Fatalf("different tier must not pair: %v %v", r, err)
	}
	if q.Depth(1000) != 1 || q.Depth(2000) != 1 {
		t.Errorf("both tiers should hold one waiter")
	}
}

func TestJoinEscrowsStake(t *testing.T) {
	ledger, q := newTestQueue(t)
	fund(t, ledger, "p1", 5000)

	if _, err := q.Join("p1", "P1", 2000); err != nil {
		t.Fatalf("join: %v", err)
	}
	b := ledger.BalanceOf("p1")
	if b.Locked != 2000 || b.Available != 3000 {
		t.Errorf("join should escrow the stake: %+v", b)
	}
}

func TestInsufficientFundsLeavesQueueUntouched(t *testing.T) {
	ledger, q := newTestQueue(t)
	fund(t, ledger, "poor", 500)

	_, err := q.Join("poor", "Poor", 1000)
	var ife *wallet.InsufficientFundsError
	if !errors.As(err, &ife) {
		t.Fatalf("expected InsufficientFundsError, got %v", err)
	}
	if q.Depth(1000) != 0 {
		t.Errorf("failed join must not enqueue")
	}
	if b := ledger.BalanceOf("poor"); b.Locked != 0 {
		t.Errorf("failed join must not lock funds: %+v", b)
	}
}

func TestInvalidTierRejected(t *testing.T) {
	ledger, q := newTestQueue(t)
	fund(t, ledger, "p1", 100000)

	_, err := q.Join("p1", "P1", 1234)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for unknown tier, got %v", err)
	}
	if b := ledger.BalanceOf("p1"); b.Locked != 0 {
		t.Errorf("invalid tier must not escrow: %+v", b)
	}
}

func TestLeaveReleasesEscrow(t *testing.T) {
	ledger, q := newTestQueue(t)
	fund(t, ledger, "p1", 5000)

	q.Join("p1", "P1", 1000)
	q.Leave("p1", 1000)

	if q.Depth(1000) != 0 {
		t.Errorf("leave should remove the entry")
	}
	if b := ledger.BalanceOf("p1"); b.Locked != 0 || b.Available != 5000 {
		t.Errorf("leave should restore available exactly: %+v", b)
	}

	// Leaving again is a no-op.
	q.Leave("p1", 1000)
	if b := ledger.BalanceOf("p1"); b.Available != 5000 {
		t.Errorf("repeat leave must not change balances: %+v", b)
	}
}

func TestDoubleJoinSameTierRejected(t *testing.T) {
	ledger, q := newTestQueue(t)
	fund(t, ledger, "p1", 10000)

	q.Join("p1", "P1", 1000)
	_, err := q.Join("p1", "P1", 1000)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError on double join, got %v", err)
	}
	if b := ledger.BalanceOf("p1"); b.Locked != 1000 {
		t.Errorf("double join must not escrow twice: %+v", b)
	}
}
