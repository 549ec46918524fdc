package queue

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cuepool/backend/internal/money"
	"github.com/cuepool/backend/internal/wallet"
)

// Entry is a player waiting for an opponent at one stake tier. It exists
// only between join and pairing (or leave).
type Entry struct {
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	Stake    int64     `json:"stake"`
	JoinedAt time.Time `json:"joined_at"`
}

// JoinStatus is the outcome of a join attempt.
type JoinStatus string

const (
	StatusMatched JoinStatus = "matched"
	StatusWaiting JoinStatus = "waiting"
)

// JoinResult reports what happened. On StatusMatched, Opponent is the entry
// that was waiting (it joined first, so it plays as player A).
type JoinResult struct {
	Status   JoinStatus
	Opponent *Entry
}

// ValidationError rejects a join synchronously with no state change.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// Queue holds one strict-FIFO line of waiting players per stake tier.
// Stakes must match exactly; cross-tier pairing never happens. The single
// mutex serializes all tier mutations so no waiter is ever paired twice.
type Queue struct {
	mu     sync.Mutex
	tiers  map[int64][]Entry
	stakes map[int64]bool

	ledger *wallet.Ledger
}

// New creates a queue over the allowed stake tiers (paise). Escrow goes
// through the given ledger before any queue mutation.
func New(ledger *wallet.Ledger, stakeTiers []int64) *Queue {
	stakes := make(map[int64]bool, len(stakeTiers))
	for _, s := range stakeTiers {
		stakes[s] = true
	}
	return &Queue{
		tiers:  make(map[int64][]Entry),
		stakes: stakes,
		ledger: ledger,
	}
}

// Tiers lists the allowed stake tiers in ascending order.
func (q *Queue) Tiers() []int64 {
	out := make([]int64, 0, len(q.stakes))
	for s := range q.stakes {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (q *Queue) tierList() string {
	tiers := q.Tiers()
	parts := make([]string, len(tiers))
	for i, s := range tiers {
		parts[i] = money.FormatINR(s)
	}
	return strings.Join(parts, ", ")
}

// Join escrows the stake and then either pairs the caller with the oldest
// waiter at the same tier or parks them. A failed escrow leaves the queue
// untouched.
func (q *Queue) Join(userID, username string, stake int64) (JoinResult, error) {
	if !q.stakes[stake] {
		return JoinResult{}, &ValidationError{
			Reason: fmt.Sprintf("invalid stake tier %s; allowed tiers: %s", money.FormatINR(stake), q.tierList()),
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for _, e := range q.tiers[stake] {
		if e.UserID == userID {
			return JoinResult{}, &ValidationError{Reason: "already waiting in this stake tier"}
		}
	}

	// Escrow first: an insufficient-funds rejection must not touch the
	// queue. The ledger never blocks on I/O, so holding the tier lock
	// across this call keeps join strictly serialized per tier.
	if err := q.ledger.Escrow(userID, stake); err != nil {
		return JoinResult{}, err
	}

	waiting := q.tiers[stake]
	if len(waiting) > 0 {
		opponent := waiting[0]
		q.tiers[stake] = waiting[1:]
		log.Printf("[QUEUE] paired %s with %s at stake %d", opponent.UserID, userID, stake)
		return JoinResult{Status: StatusMatched, Opponent: &opponent}, nil
	}

	q.tiers[stake] = append(waiting, Entry{
		UserID:   userID,
		Username: username,
		Stake:    stake,
		JoinedAt: time.Now(),
	})
	log.Printf("[QUEUE] %s waiting at stake %d (depth=%d)", userID, stake, len(q.tiers[stake]))
	return JoinResult{Status: StatusWaiting}, nil
}

// Leave removes the caller's waiting entry, if any, and releases the
// escrow. A no-op when the caller is not waiting (e.g. already matched).
func (q *Queue) Leave(userID string, stake int64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	waiting := q.tiers[stake]
	for i, e := range waiting {
		if e.UserID == userID {
			q.tiers[stake] = append(waiting[:i:i], waiting[i+1:]...)
			q.ledger.ReleaseEscrow(userID, stake)
			log.Printf("[QUEUE] %s left stake %d, escrow released", userID, stake)
			return
		}
	}
}

// Depth reports how many players are waiting at a stake tier.
func (q *Queue) Depth(stake int64) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tiers[stake])
}

// Waiting reports whether the user is parked at the given tier.
func (q *Queue) Waiting(userID string, stake int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, e := range q.tiers[stake] {
		if e.UserID == userID {
			return true
		}
	}
	return false
}
