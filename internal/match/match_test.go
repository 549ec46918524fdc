package match

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cuepool/backend/internal/matchlog"
	"github.com/cuepool/backend/internal/store"
	"github.com/cuepool/backend/internal/wallet"
)

const operatorID = "operator"

func newFixture(t *testing.T) (*wallet.Ledger, *matchlog.Archive, *Lifecycle) {
	t.Helper()
	db := store.NewMemory()
	ledger := wallet.NewLedger(db)
	archive := matchlog.NewArchive(db)
	lc, err := NewLifecycle(ledger, archive, Split{WinnerPercent: 80, OperatorPercent: 20}, operatorID)
	if err != nil {
		t.Fatalf("NewLifecycle: %v", err)
	}
	return ledger, archive, lc
}

func fundAndEscrow(t *testing.T, l *wallet.Ledger, userID string, balance, stake int64) {
	t.Helper()
	entry, err := l.RequestDeposit(userID, balance)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := l.ConfirmExternal(entry.ID, "gw"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := l.Escrow(userID, stake); err != nil {
		t.Fatalf("escrow: %v", err)
	}
}

func TestFullSettlementScenario(t *testing.T) {
	ledger, _, lc := newFixture(t)
	fundAndEscrow(t, ledger, "alice", 100000, 5000)
	fundAndEscrow(t, ledger, "bob", 100000, 5000)

	m, err := lc.Create(Player{UserID: "alice", Username: "Alice"}, Player{UserID: "bob", Username: "Bob"}, 5000)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if m.Pool != 10000 {
		t.Errorf("pool = %d, want 10000", m.Pool)
	}
	for _, u := range []string{"alice", "bob"} {
		b := ledger.BalanceOf(u)
		if b.Balance != 95000 || b.Locked != 0 {
			t.Errorf("%s after debit: got {%d,%d}, want {95000,0}", u, b.Balance, b.Locked)
		}
	}

	lc.UpdateScore(m.MatchID, "alice", 10)
	lc.UpdateScore(m.MatchID, "bob", 7)

	s, err := lc.End(m.MatchID)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if s.WinnerID != "alice" || s.WinnerPayout != 8000 || s.OperatorFee != 2000 {
		t.Errorf("unexpected settlement: %+v", s)
	}
	if b := ledger.BalanceOf("alice"); b.Balance != 103000 {
		t.Errorf("winner balance = %d, want 103000", b.Balance)
	}
	if b := ledger.BalanceOf("bob"); b.Balance != 95000 {
		t.Errorf("loser balance = %d, want 95000", b.Balance)
	}
	if b := ledger.BalanceOf(operatorID); b.Balance != 2000 {
		t.Errorf("operator balance = %d, want 2000", b.Balance)
	}
}

func TestEndIsIdempotent(t *testing.T) {
	ledger, _, lc := newFixture(t)
	fundAndEscrow(t, ledger, "a", 10000, 1000)
	fundAndEscrow(t, ledger, "b", 10000, 1000)

	m, _ := lc.Create(Player{UserID: "a"}, Player{UserID: "b"}, 1000)
	lc.UpdateScore(m.MatchID, "a", 3)

	if _, err := lc.End(m.MatchID); err != nil {
		t.Fatalf("first end: %v", err)
	}
	winnerBalance := ledger.BalanceOf("a").Balance

	if _, err := lc.End(m.MatchID); !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("second end should report already settled, got %v", err)
	}
	if err := lc.Cancel(m.MatchID); !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("cancel after end should report already settled, got %v", err)
	}
	if got := ledger.BalanceOf("a").Balance; got != winnerBalance {
		t.Errorf("balance changed on repeat settle: %d -> %d", winnerBalance, got)
	}
}

func TestConcurrentEndSettlesOnce(t *testing.T) {
	ledger, _, lc := newFixture(t)
	fundAndEscrow(t, ledger, "a", 10000, 1000)
	fundAndEscrow(t, ledger, "b", 10000, 1000)

	m, _ := lc.Create(Player{UserID: "a"}, Player{UserID: "b"}, 1000)
	lc.UpdateScore(m.MatchID, "a", 5)

	var wg sync.WaitGroup
	var mu sync.Mutex
	settled := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := lc.End(m.MatchID); err == nil {
				mu.Lock()
				settled++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if settled != 1 {
		t.Errorf("match settled %d times, want exactly once", settled)
	}
	// pool 2000, winner 1600: 9000 + 1600
	if b := ledger.BalanceOf("a"); b.Balance != 10600 {
		t.Errorf("winner credited more than once: balance=%d", b.Balance)
	}
}

func TestDrawRefundsWithoutFee(t *testing.T) {
	ledger, _, lc := newFixture(t)
	fundAndEscrow(t, ledger, "a", 10000, 2000)
	fundAndEscrow(t, ledger, "b", 10000, 2000)

	m, _ := lc.Create(Player{UserID: "a"}, Player{UserID: "b"}, 2000)
	lc.UpdateScore(m.MatchID, "a", 4)
	lc.UpdateScore(m.MatchID, "b", 4)

	s, err := lc.End(m.MatchID)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if !s.Draw || s.RefundEach != 2000 || s.OperatorFee != 0 {
		t.Errorf("unexpected draw settlement: %+v", s)
	}
	for _, u := range []string{"a", "b"} {
		if b := ledger.BalanceOf(u); b.Balance != 10000 {
			t.Errorf("%s should be made whole on a draw, balance=%d", u, b.Balance)
		}
	}
	if b := ledger.BalanceOf(operatorID); b.Balance != 0 {
		t.Errorf("draw must not pay the operator, balance=%d", b.Balance)
	}
}

func TestCancelRefundsBoth(t *testing.T) {
	ledger, _, lc := newFixture(t)
	fundAndEscrow(t, ledger, "a", 5000, 1000)
	fundAndEscrow(t, ledger, "b", 5000, 1000)

	m, _ := lc.Create(Player{UserID: "a"}, Player{UserID: "b"}, 1000)
	if err := lc.Cancel(m.MatchID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	for _, u := range []string{"a", "b"} {
		if b := ledger.BalanceOf(u); b.Balance != 5000 || b.Locked != 0 {
			t.Errorf("%s after cancel: {%d,%d}, want {5000,0}", u, b.Balance, b.Locked)
		}
	}
	if _, err := lc.End(m.MatchID); !errors.Is(err, ErrAlreadySettled) {
		t.Errorf("end after cancel should report already settled, got %v", err)
	}
}

func TestScoreRules(t *testing.T) {
	ledger, _, lc := newFixture(t)
	fundAndEscrow(t, ledger, "a", 5000, 1000)
	fundAndEscrow(t, ledger, "b", 5000, 1000)

	m, _ := lc.Create(Player{UserID: "a"}, Player{UserID: "b"}, 1000)

	if err := lc.UpdateScore(m.MatchID, "stranger", 9); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("non-participant should be rejected, got %v", err)
	}
	if err := lc.UpdateScore("m_missing", "a", 1); !errors.Is(err, ErrMatchNotFound) {
		t.Errorf("unknown match should be rejected, got %v", err)
	}

	lc.End(m.MatchID)
	if err := lc.UpdateScore(m.MatchID, "a", 2); !errors.Is(err, ErrAlreadySettled) {
		t.Errorf("score after settlement should be rejected, got %v", err)
	}
}

func TestCreateRollsBackWhenEscrowMissing(t *testing.T) {
	ledger, _, lc := newFixture(t)
	fundAndEscrow(t, ledger, "a", 5000, 1000)
	// b has funds but no escrow: debit b must fail as a consistency error.
	entry, _ := ledger.RequestDeposit("b", 5000)
	ledger.ConfirmExternal(entry.ID, "gw")

	_, err := lc.Create(Player{UserID: "a"}, Player{UserID: "b"}, 1000)
	if err == nil {
		t.Fatalf("create should fail when player B holds no escrow")
	}
	var cerr *wallet.ConsistencyError
	if !errors.As(err, &cerr) {
		t.Errorf("expected ConsistencyError, got %v", err)
	}

	// Fail-safe rollback: A was debited then refunded, nothing stays locked.
	if b := ledger.BalanceOf("a"); b.Balance != 5000 || b.Locked != 0 {
		t.Errorf("player A not made whole: {%d,%d}", b.Balance, b.Locked)
	}
	if b := ledger.BalanceOf("b"); b.Balance != 5000 || b.Locked != 0 {
		t.Errorf("player B not made whole: {%d,%d}", b.Balance, b.Locked)
	}
	if lc.ActiveCount() != 0 {
		t.Errorf("no match should exist after rollback")
	}
}

func TestActiveMatchForAndExpiry(t *testing.T) {
	ledger, _, lc := newFixture(t)
	fundAndEscrow(t, ledger, "a", 5000, 1000)
	fundAndEscrow(t, ledger, "b", 5000, 1000)

	m, _ := lc.Create(Player{UserID: "a"}, Player{UserID: "b"}, 1000)

	if got, ok := lc.ActiveMatchFor("a"); !ok || got.MatchID != m.MatchID {
		t.Errorf("ActiveMatchFor(a) = %v %v", got, ok)
	}
	if _, ok := lc.ActiveMatchFor("stranger"); ok {
		t.Errorf("stranger should have no active match")
	}

	if ids := lc.ActiveOlderThan(time.Now().Add(time.Minute)); len(ids) != 1 {
		t.Errorf("match should be older than a future cutoff, got %v", ids)
	}
	if ids := lc.ActiveOlderThan(time.Now().Add(-time.Minute)); len(ids) != 0 {
		t.Errorf("fresh match should not be expired, got %v", ids)
	}

	lc.End(m.MatchID)
	if _, ok := lc.ActiveMatchFor("a"); ok {
		t.Errorf("settled match should no longer be active")
	}
}

func TestArchiveRecordsTerminalMatches(t *testing.T) {
	ledger, archive, lc := newFixture(t)
	fundAndEscrow(t, ledger, "a", 5000, 1000)
	fundAndEscrow(t, ledger, "b", 5000, 1000)

	m, _ := lc.Create(Player{UserID: "a", Username: "A"}, Player{UserID: "b", Username: "B"}, 1000)
	lc.UpdateScore(m.MatchID, "a", 8)
	lc.UpdateScore(m.MatchID, "b", 3)
	lc.End(m.MatchID)

	hist := archive.History("a", 0)
	if len(hist) != 1 {
		t.Fatalf("expected 1 archived match, got %d", len(hist))
	}
	rec := hist[0]
	if rec.WinnerID != "a" || rec.WinnerPayout != 1600 || rec.OperatorFee != 400 {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.WinnerPayout+rec.OperatorFee != rec.Pool {
		t.Errorf("archived payout and fee must sum to the pool")
	}

	stats := archive.StatsFor("a")
	if stats.Wins != 1 || stats.NetEarnings != 600 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}
