package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuepool/backend/internal/store"
)

const (
	bucketAccounts = "accounts"
	bucketLedger   = "ledger"

	persistAttempts = 3
	persistBackoff  = 100 * time.Millisecond
)

var (
	// ErrEntryNotFound is returned when a gateway event references an
	// unknown ledger entry.
	ErrEntryNotFound = errors.New("wallet: ledger entry not found")
	// ErrEntryFinalized is returned when a gateway event arrives for an
	// entry that already completed or failed.
	ErrEntryFinalized = errors.New("wallet: ledger entry already finalized")
)

// account is the arena record for one user. Its mutex serializes every
// balance mutation for that user; the map-level lock only guards lookup.
type account struct {
	mu        sync.Mutex
	balance   int64
	locked    int64
	updatedAt time.Time
	entries   []Entry // append order, oldest first
}

type accountSnapshot struct {
	UserID    string    `json:"user_id"`
	Balance   int64     `json:"balance"`
	Locked    int64     `json:"locked"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ledger owns every account's balance/locked pair. Other components mutate
// balances only through its methods. Persistence happens through the injected
// Store after state changes, outside the account critical section, so store
// latency never couples to ledger mutation latency.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[string]*account
	owners   map[string]string // entry ID -> user ID, for gateway callbacks

	db  store.Store
	seq uint64
}

// NewLedger creates a ledger persisting through db.
func NewLedger(db store.Store) *Ledger {
	return &Ledger{
		accounts: make(map[string]*account),
		owners:   make(map[string]string),
		db:       db,
	}
}

// getAccount returns the account for userID, creating it on first reference.
func (l *Ledger) getAccount(userID string) *account {
	l.mu.RLock()
	acct, ok := l.accounts[userID]
	l.mu.RUnlock()
	if ok {
		return acct
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if acct, ok = l.accounts[userID]; ok {
		return acct
	}
	acct = &account{updatedAt: time.Now()}
	l.accounts[userID] = acct
	return acct
}

func (l *Ledger) nextEntryID() string {
	n := atomic.AddUint64(&l.seq, 1)
	return fmt.Sprintf("txn_%d_%06d", time.Now().UnixMilli(), n)
}

// Escrow reserves amount against a pending match. It succeeds iff
// available >= amount and has no side effect otherwise.
func (l *Ledger) Escrow(userID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("wallet: escrow amount must be positive, got %d", amount)
	}

	acct := l.getAccount(userID)
	acct.mu.Lock()

	available := acct.balance - acct.locked
	if available < amount {
		acct.mu.Unlock()
		return &InsufficientFundsError{UserID: userID, Required: amount, Available: available}
	}

	acct.locked += amount
	entry := l.appendLocked(acct, userID, Entry{
		Kind:   KindStakeLock,
		Amount: amount,
		Status: StatusCompleted,
	})
	snap := snapshotLocked(acct, userID)
	acct.mu.Unlock()

	l.persistAsync(userID, snap, entry)
	return nil
}

// ReleaseEscrow unlocks up to amount of the user's locked funds. It is
// clamped and idempotent: releasing more than is locked releases everything.
// Used before any debit occurs (e.g. queue leave), so no entry is written.
func (l *Ledger) ReleaseEscrow(userID string, amount int64) {
	if amount <= 0 {
		return
	}

	acct := l.getAccount(userID)
	acct.mu.Lock()
	if amount > acct.locked {
		amount = acct.locked
	}
	acct.locked -= amount
	acct.updatedAt = time.Now()
	snap := snapshotLocked(acct, userID)
	acct.mu.Unlock()

	l.persistAsync(userID, snap, nil)
}

// SettleDebit converts locked funds into a permanent debit toward a match
// pool. Insufficient escrow here is a consistency violation, not a
// user-facing failure: correct callers escrow before settling.
func (l *Ledger) SettleDebit(userID string, amount int64, matchID string) error {
	if amount <= 0 {
		return fmt.Errorf("wallet: settle amount must be positive, got %d", amount)
	}

	acct := l.getAccount(userID)
	acct.mu.Lock()

	if acct.locked < amount {
		detail := fmt.Sprintf("locked %d < debit %d", acct.locked, amount)
		acct.mu.Unlock()
		cerr := &ConsistencyError{Op: "settle_debit", UserID: userID, MatchID: matchID, Detail: detail}
		log.Printf("[WALLET] CONSISTENCY: %v", cerr)
		return cerr
	}

	acct.balance -= amount
	acct.locked -= amount
	entry := l.appendLocked(acct, userID, Entry{
		Kind:    KindStakeDebit,
		Amount:  amount,
		MatchID: matchID,
		Status:  StatusCompleted,
	})
	snap := snapshotLocked(acct, userID)
	acct.mu.Unlock()

	l.persistAsync(userID, snap, entry)
	return nil
}

// Credit increases the balance and appends a completed entry of the given
// kind. It always succeeds for non-negative amounts.
func (l *Ledger) Credit(userID string, amount int64, kind Kind, matchID string) error {
	if amount < 0 {
		return fmt.Errorf("wallet: credit amount must be non-negative, got %d", amount)
	}

	acct := l.getAccount(userID)
	acct.mu.Lock()
	acct.balance += amount
	entry := l.appendLocked(acct, userID, Entry{
		Kind:    kind,
		Amount:  amount,
		MatchID: matchID,
		Status:  StatusCompleted,
	})
	snap := snapshotLocked(acct, userID)
	acct.mu.Unlock()

	l.persistAsync(userID, snap, entry)
	return nil
}

// RequestDeposit records a pending deposit awaiting the payment gateway's
// confirmed/failed event. No balance changes until confirmation. The entry
// ID doubles as the reference handed to the gateway.
func (l *Ledger) RequestDeposit(userID string, amount int64) (Entry, error) {
	if amount <= 0 {
		return Entry{}, fmt.Errorf("wallet: deposit amount must be positive, got %d", amount)
	}

	acct := l.getAccount(userID)
	acct.mu.Lock()
	entry := l.appendLocked(acct, userID, Entry{
		Kind:   KindDeposit,
		Amount: amount,
		Status: StatusPending,
	})
	snap := snapshotLocked(acct, userID)
	acct.mu.Unlock()

	l.persistAsync(userID, snap, entry)
	return *entry, nil
}

// RequestWithdrawal deducts the balance immediately and records a pending
// withdrawal; a failed gateway event refunds it.
func (l *Ledger) RequestWithdrawal(userID string, amount int64) (Entry, error) {
	if amount <= 0 {
		return Entry{}, fmt.Errorf("wallet: withdrawal amount must be positive, got %d", amount)
	}

	acct := l.getAccount(userID)
	acct.mu.Lock()

	available := acct.balance - acct.locked
	if available < amount {
		acct.mu.Unlock()
		return Entry{}, &InsufficientFundsError{UserID: userID, Required: amount, Available: available}
	}

	acct.balance -= amount
	entry := l.appendLocked(acct, userID, Entry{
		Kind:   KindWithdrawal,
		Amount: amount,
		Status: StatusPending,
	})
	snap := snapshotLocked(acct, userID)
	acct.mu.Unlock()

	l.persistAsync(userID, snap, entry)
	return *entry, nil
}

// ConfirmExternal applies the gateway's "confirmed" event to a pending
// deposit or withdrawal entry.
func (l *Ledger) ConfirmExternal(entryID, gatewayRef string) error {
	return l.finalizeExternal(entryID, gatewayRef, "", true)
}

// FailExternal applies the gateway's "failed" event. Failed withdrawals are
// refunded in full; failed deposits never touched the balance.
func (l *Ledger) FailExternal(entryID, gatewayRef, reason string) error {
	return l.finalizeExternal(entryID, gatewayRef, reason, false)
}

func (l *Ledger) finalizeExternal(entryID, gatewayRef, reason string, confirmed bool) error {
	l.mu.RLock()
	userID, ok := l.owners[entryID]
	l.mu.RUnlock()
	if !ok {
		return ErrEntryNotFound
	}

	acct := l.getAccount(userID)
	acct.mu.Lock()

	var entry *Entry
	for i := range acct.entries {
		if acct.entries[i].ID == entryID {
			entry = &acct.entries[i]
			break
		}
	}
	if entry == nil {
		acct.mu.Unlock()
		return ErrEntryNotFound
	}
	if entry.Status != StatusPending {
		acct.mu.Unlock()
		return ErrEntryFinalized
	}

	now := time.Now()
	entry.GatewayRef = gatewayRef
	entry.CompletedAt = &now
	if confirmed {
		entry.Status = StatusCompleted
		if entry.Kind == KindDeposit {
			acct.balance += entry.Amount
		}
		// Withdrawals were deducted up front; nothing more to move.
	} else {
		entry.Status = StatusFailed
		entry.Reason = reason
		if entry.Kind == KindWithdrawal {
			acct.balance += entry.Amount // refund
		}
	}
	acct.updatedAt = now
	final := *entry
	snap := snapshotLocked(acct, userID)
	acct.mu.Unlock()

	l.persistAsync(userID, snap, &final)
	log.Printf("[WALLET] gateway event applied: entry=%s kind=%s status=%s ref=%s", final.ID, final.Kind, final.Status, gatewayRef)
	return nil
}

// BalanceOf returns the current balance view, creating the account on first
// reference.
func (l *Ledger) BalanceOf(userID string) Balance {
	acct := l.getAccount(userID)
	acct.mu.Lock()
	defer acct.mu.Unlock()
	return Balance{
		UserID:    userID,
		Balance:   acct.balance,
		Locked:    acct.locked,
		Available: acct.balance - acct.locked,
		UpdatedAt: acct.updatedAt,
	}
}

// History returns the user's ledger entries, most recent first. limit <= 0
// returns everything.
func (l *Ledger) History(userID string, limit int) []Entry {
	acct := l.getAccount(userID)
	acct.mu.Lock()
	defer acct.mu.Unlock()

	out := make([]Entry, 0, len(acct.entries))
	for i := len(acct.entries) - 1; i >= 0; i-- {
		out = append(out, acct.entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Restore reloads account snapshots and ledger entries from the store.
// Called once at startup, before the ledger is shared.
func (l *Ledger) Restore(ctx context.Context) error {
	snaps, err := l.db.Scan(ctx, bucketAccounts, "")
	if err != nil {
		return fmt.Errorf("wallet: restore accounts: %w", err)
	}

	for key, raw := range snaps {
		var snap accountSnapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			log.Printf("[WALLET] skipping corrupt account snapshot %q: %v", key, err)
			continue
		}
		l.accounts[snap.UserID] = &account{
			balance:   snap.Balance,
			locked:    snap.Locked,
			updatedAt: snap.UpdatedAt,
		}
	}

	rows, err := l.db.Scan(ctx, bucketLedger, "")
	if err != nil {
		return fmt.Errorf("wallet: restore entries: %w", err)
	}

	byUser := make(map[string][]Entry)
	for key, raw := range rows {
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			log.Printf("[WALLET] skipping corrupt ledger entry %q: %v", key, err)
			continue
		}
		byUser[e.UserID] = append(byUser[e.UserID], e)
	}
	for userID, entries := range byUser {
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
				return entries[i].ID < entries[j].ID
			}
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		})
		acct, ok := l.accounts[userID]
		if !ok {
			acct = &account{updatedAt: time.Now()}
			l.accounts[userID] = acct
		}
		acct.entries = entries
		for _, e := range entries {
			l.owners[e.ID] = userID
		}
	}

	log.Printf("[WALLET] restored %d accounts, %d ledger entries", len(snaps), len(rows))
	return nil
}

// appendLocked stamps and appends an entry. Caller holds the account mutex;
// the balance mutation and its entry are committed together under that lock.
func (l *Ledger) appendLocked(acct *account, userID string, e Entry) *Entry {
	e.ID = l.nextEntryID()
	e.UserID = userID
	e.CreatedAt = time.Now()
	if e.Status == StatusCompleted {
		t := e.CreatedAt
		e.CompletedAt = &t
	}
	acct.entries = append(acct.entries, e)
	acct.updatedAt = e.CreatedAt

	l.mu.Lock()
	l.owners[e.ID] = userID
	l.mu.Unlock()

	return &acct.entries[len(acct.entries)-1]
}

func snapshotLocked(acct *account, userID string) accountSnapshot {
	return accountSnapshot{
		UserID:    userID,
		Balance:   acct.balance,
		Locked:    acct.locked,
		UpdatedAt: acct.updatedAt,
	}
}

// persistAsync writes the account snapshot and (optionally) one entry to the
// store with bounded retry. In-memory state stays authoritative; exhausted
// retries are logged, never propagated into the money path.
func (l *Ledger) persistAsync(userID string, snap accountSnapshot, entry *Entry) {
	var entryCopy *Entry
	if entry != nil {
		c := *entry
		entryCopy = &c
	}

	go func() {
		ctx := context.Background()

		if raw, err := json.Marshal(snap); err == nil {
			l.putWithRetry(ctx, bucketAccounts, userID, raw)
		} else {
			log.Printf("[WALLET] marshal account %s failed: %v", userID, err)
		}

		if entryCopy == nil {
			return
		}
		key := fmt.Sprintf("%s/%s", userID, entryCopy.ID)
		if raw, err := json.Marshal(entryCopy); err == nil {
			l.putWithRetry(ctx, bucketLedger, key, raw)
		} else {
			log.Printf("[WALLET] marshal entry %s failed: %v", entryCopy.ID, err)
		}
	}()
}

func (l *Ledger) putWithRetry(ctx context.Context, bucket, key string, value []byte) {
	var err error
	for attempt := 1; attempt <= persistAttempts; attempt++ {
		if err = l.db.Put(ctx, bucket, key, value); err == nil {
			return
		}
		time.Sleep(time.Duration(attempt) * persistBackoff)
	}
	log.Printf("[WALLET] persist %s/%s failed after %d attempts: %v", bucket, key, persistAttempts, err)
}
