package wallet

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cuepool/backend/internal/store"
)

func newTestLedger() *Ledger {
	return NewLedger(store.NewMemory())
}

func fund(t *testing.T, l *Ledger, userID string, amount int64) {
	t.Helper()
	entry, err := l.RequestDeposit(userID, amount)
	if err != nil {
		t.Fatalf("RequestDeposit failed: %v", err)
	}
	if err := l.ConfirmExternal(entry.ID, "gw_test"); err != nil {
		t.Fatalf("ConfirmExternal failed: %v", err)
	}
}

func TestEscrowReleaseRoundTrip(t *testing.T) {
	l := newTestLedger()
	fund(t, l, "u1", 100000)

	if err := l.Escrow("u1", 500); err != nil {
		t.Fatalf("escrow failed: %v", err)
	}
	l.ReleaseEscrow("u1", 500)

	b := l.BalanceOf("u1")
	if b.Available != 100000 || b.Locked != 0 {
		t.Errorf("round trip did not restore available: %+v", b)
	}
}

func TestEscrowBoundary(t *testing.T) {
	l := newTestLedger()
	fund(t, l, "u1", 5000)

	// Exactly available succeeds
	if err := l.Escrow("u1", 5000); err != nil {
		t.Fatalf("escrow equal to available should succeed: %v", err)
	}
	l.ReleaseEscrow("u1", 5000)

	// available+1 fails and changes nothing
	err := l.Escrow("u1", 5001)
	var ife *InsufficientFundsError
	if !errors.As(err, &ife) {
		t.Fatalf("expected InsufficientFundsError, got %v", err)
	}
	if ife.Required != 5001 || ife.Available != 5000 {
		t.Errorf("error should carry amounts, got %+v", ife)
	}
	b := l.BalanceOf("u1")
	if b.Balance != 5000 || b.Locked != 0 {
		t.Errorf("failed escrow must have no side effect: %+v", b)
	}
}

func TestBalanceInvariantUnderOperations(t *testing.T) {
	l := newTestLedger()
	fund(t, l, "u1", 10000)

	check := func(step string) {
		b := l.BalanceOf("u1")
		if b.Balance < b.Locked || b.Locked < 0 {
			t.Fatalf("%s violated balance >= locked >= 0: %+v", step, b)
		}
	}

	l.Escrow("u1", 4000)
	check("escrow")
	l.SettleDebit("u1", 4000, "m1")
	check("settle")
	l.Credit("u1", 6400, KindPayoutCredit, "m1")
	check("credit")
	l.ReleaseEscrow("u1", 99999)
	check("clamped release")
}

func TestSettleDebitRequiresEscrow(t *testing.T) {
	l := newTestLedger()
	fund(t, l, "u1", 10000)

	err := l.SettleDebit("u1", 1000, "m1")
	var cerr *ConsistencyError
	if !errors.As(err, &cerr) {
		t.Fatalf("settle without escrow must be a ConsistencyError, got %v", err)
	}
	b := l.BalanceOf("u1")
	if b.Balance != 10000 {
		t.Errorf("failed settle must not move money: %+v", b)
	}
}

func TestSettleDebitMovesBalanceAndLocked(t *testing.T) {
	l := newTestLedger()
	fund(t, l, "u1", 100000)

	if err := l.Escrow("u1", 5000); err != nil {
		t.Fatalf("escrow: %v", err)
	}
	if err := l.SettleDebit("u1", 5000, "m1"); err != nil {
		t.Fatalf("settle: %v", err)
	}
	b := l.BalanceOf("u1")
	if b.Balance != 95000 || b.Locked != 0 {
		t.Errorf("expected {95000,0}, got {%d,%d}", b.Balance, b.Locked)
	}
}

func TestHistoryMostRecentFirst(t *testing.T) {
	l := newTestLedger()
	fund(t, l, "u1", 10000)
	l.Escrow("u1", 1000)
	l.SettleDebit("u1", 1000, "m1")
	l.Credit("u1", 1600, KindPayoutCredit, "m1")

	h := l.History("u1", 0)
	if len(h) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(h))
	}
	if h[0].Kind != KindPayoutCredit {
		t.Errorf("newest entry should be first, got %s", h[0].Kind)
	}
	for i := 1; i < len(h); i++ {
		if h[i].CreatedAt.After(h[i-1].CreatedAt) {
			t.Errorf("history out of order at %d", i)
		}
	}

	limited := l.History("u1", 2)
	if len(limited) != 2 || limited[0].Kind != KindPayoutCredit {
		t.Errorf("limit should keep newest entries, got %v", limited)
	}
}

func TestEntryAccompaniesEveryMutation(t *testing.T) {
	l := newTestLedger()
	fund(t, l, "u1", 10000)
	l.Escrow("u1", 2000)
	l.SettleDebit("u1", 2000, "m1")
	l.Credit("u1", 3200, KindPayoutCredit, "m1")

	kinds := map[Kind]int{}
	for _, e := range l.History("u1", 0) {
		kinds[e.Kind]++
		if e.Status == StatusCompleted && e.CompletedAt == nil {
			t.Errorf("completed entry %s missing completed_at", e.ID)
		}
	}
	for _, k := range []Kind{KindDeposit, KindStakeLock, KindStakeDebit, KindPayoutCredit} {
		if kinds[k] != 1 {
			t.Errorf("expected exactly one %s entry, got %d", k, kinds[k])
		}
	}
}

func TestWithdrawalConfirmAndFail(t *testing.T) {
	l := newTestLedger()
	fund(t, l, "u1", 10000)

	// Confirmed withdrawal stays deducted
	w1, err := l.RequestWithdrawal("u1", 3000)
	if err != nil {
		t.Fatalf("withdrawal: %v", err)
	}
	if b := l.BalanceOf("u1"); b.Balance != 7000 {
		t.Fatalf("withdrawal should deduct immediately, balance=%d", b.Balance)
	}
	if err := l.ConfirmExternal(w1.ID, "gw_1"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if b := l.BalanceOf("u1"); b.Balance != 7000 {
		t.Errorf("confirm must not move money again, balance=%d", b.Balance)
	}

	// Failed withdrawal refunds
	w2, _ := l.RequestWithdrawal("u1", 2000)
	if err := l.FailExternal(w2.ID, "gw_2", "bank transfer failed"); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if b := l.BalanceOf("u1"); b.Balance != 7000 {
		t.Errorf("failed withdrawal must refund, balance=%d", b.Balance)
	}

	// Second event for the same entry is rejected
	if err := l.ConfirmExternal(w2.ID, "gw_2"); !errors.Is(err, ErrEntryFinalized) {
		t.Errorf("expected ErrEntryFinalized, got %v", err)
	}
}

func TestDepositOnlyCreditsOnConfirm(t *testing.T) {
	l := newTestLedger()

	d, err := l.RequestDeposit("u1", 5000)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if b := l.BalanceOf("u1"); b.Balance != 0 {
		t.Fatalf("pending deposit must not credit, balance=%d", b.Balance)
	}
	if err := l.ConfirmExternal(d.ID, "gw_ok"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if b := l.BalanceOf("u1"); b.Balance != 5000 {
		t.Errorf("confirmed deposit should credit, balance=%d", b.Balance)
	}

	// Failed deposit never credits
	d2, _ := l.RequestDeposit("u1", 700)
	l.FailExternal(d2.ID, "gw_bad", "card declined")
	if b := l.BalanceOf("u1"); b.Balance != 5000 {
		t.Errorf("failed deposit must not credit, balance=%d", b.Balance)
	}
}

func TestConcurrentEscrowNeverOversells(t *testing.T) {
	l := newTestLedger()
	fund(t, l, "u1", 10000)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Escrow("u1", 1000); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 10 {
		t.Errorf("expected exactly 10 successful escrows of 1000 from 10000, got %d", succeeded)
	}
	b := l.BalanceOf("u1")
	if b.Locked != 10000 || b.Available != 0 {
		t.Errorf("unexpected final state: %+v", b)
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	db := store.NewMemory()
	l := NewLedger(db)
	fund(t, l, "u1", 8000)
	l.Escrow("u1", 2000)

	// Async persistence; give the writers a moment.
	time.Sleep(200 * time.Millisecond)

	l2 := NewLedger(db)
	if err := l2.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	b := l2.BalanceOf("u1")
	if b.Balance != 8000 || b.Locked != 2000 {
		t.Errorf("restored state mismatch: %+v", b)
	}
	h := l2.History("u1", 0)
	if len(h) != 2 || h[0].Kind != KindStakeLock {
		t.Errorf("restored history mismatch: %v", h)
	}
}
