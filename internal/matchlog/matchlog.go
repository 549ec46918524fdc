package matchlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/cuepool/backend/internal/store"
)

const bucketMatches = "matches"

// Record is the archived form of a terminal match. Once written it is never
// updated; a match never re-enters play.
type Record struct {
	MatchID      string    `json:"match_id"`
	PlayerAID    string    `json:"player_a_id"`
	PlayerAName  string    `json:"player_a_name"`
	PlayerBID    string    `json:"player_b_id"`
	PlayerBName  string    `json:"player_b_name"`
	Stake        int64     `json:"stake"`
	Pool         int64     `json:"pool"`
	PlayerAScore int       `json:"player_a_score"`
	PlayerBScore int       `json:"player_b_score"`
	WinnerID     string    `json:"winner_id,omitempty"` // empty on draw or cancel
	WinnerPayout int64     `json:"winner_payout"`
	OperatorFee  int64     `json:"operator_fee"`
	Status       string    `json:"status"` // completed | cancelled
	StartedAt    time.Time `json:"started_at"`
	EndedAt      time.Time `json:"ended_at"`
	DurationSecs int64     `json:"duration_secs"`
}

// PlayerStats aggregates a player's archived matches.
type PlayerStats struct {
	UserID       string  `json:"user_id"`
	TotalMatches int     `json:"total_matches"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	Draws        int     `json:"draws"`
	WinRate      float64 `json:"win_rate"`
	TotalStaked  int64   `json:"total_staked"`
	NetEarnings  int64   `json:"net_earnings"`
}

// Archive keeps terminal match records: in memory for queries, and through
// the persistence port for durability.
type Archive struct {
	mu      sync.RWMutex
	records []Record
	byUser  map[string][]int // user ID -> indexes into records

	db store.Store
}

// NewArchive creates an archive persisting through db.
func NewArchive(db store.Store) *Archive {
	return &Archive{byUser: make(map[string][]int), db: db}
}

// Add archives a terminal match. Best effort on the store side: the record
// is always queryable in memory even if the write needs operator attention.
func (a *Archive) Add(rec Record) {
	a.mu.Lock()
	idx := len(a.records)
	a.records = append(a.records, rec)
	a.byUser[rec.PlayerAID] = append(a.byUser[rec.PlayerAID], idx)
	a.byUser[rec.PlayerBID] = append(a.byUser[rec.PlayerBID], idx)
	a.mu.Unlock()

	go func() {
		raw, err := json.Marshal(rec)
		if err != nil {
			log.Printf("[MATCHLOG] marshal record %s failed: %v", rec.MatchID, err)
			return
		}
		if err := a.db.Put(context.Background(), bucketMatches, rec.MatchID, raw); err != nil {
			log.Printf("[MATCHLOG] persist record %s failed: %v", rec.MatchID, err)
		}
	}()
}

// History returns the user's archived matches, most recent first.
func (a *Archive) History(userID string, limit int) []Record {
	a.mu.RLock()
	defer a.mu.RUnlock()

	idxs := a.byUser[userID]
	out := make([]Record, 0, len(idxs))
	for i := len(idxs) - 1; i >= 0; i-- {
		out = append(out, a.records[idxs[i]])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// StatsFor computes aggregate stats over the user's completed matches.
// Cancelled matches moved no money and are skipped.
func (a *Archive) StatsFor(userID string) PlayerStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := PlayerStats{UserID: userID}
	for _, idx := range a.byUser[userID] {
		rec := a.records[idx]
		if rec.Status != "completed" {
			continue
		}
		stats.TotalMatches++
		stats.TotalStaked += rec.Stake
		switch {
		case rec.WinnerID == userID:
			stats.Wins++
			stats.NetEarnings += rec.WinnerPayout - rec.Stake
		case rec.WinnerID == "":
			stats.Draws++ // stake refunded, net zero
		default:
			stats.Losses++
			stats.NetEarnings -= rec.Stake
		}
	}
	if stats.TotalMatches > 0 {
		stats.WinRate = float64(stats.Wins) / float64(stats.TotalMatches) * 100
	}
	return stats
}

// OperatorTotals aggregates platform-wide archive numbers.
type OperatorTotals struct {
	TotalMatches     int   `json:"total_matches"`
	CompletedMatches int   `json:"completed_matches"`
	CancelledMatches int   `json:"cancelled_matches"`
	TotalFees        int64 `json:"total_fees"`
	TotalStaked      int64 `json:"total_staked"`
}

// OperatorSummary totals matches and fee revenue across the whole archive.
func (a *Archive) OperatorSummary() OperatorTotals {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var t OperatorTotals
	for _, rec := range a.records {
		t.TotalMatches++
		switch rec.Status {
		case "completed":
			t.CompletedMatches++
			t.TotalFees += rec.OperatorFee
			t.TotalStaked += 2 * rec.Stake
		case "cancelled":
			t.CancelledMatches++
		}
	}
	return t
}

// Restore reloads archived records from the store at startup.
func (a *Archive) Restore(ctx context.Context) error {
	rows, err := a.db.Scan(ctx, bucketMatches, "")
	if err != nil {
		return fmt.Errorf("matchlog: restore: %w", err)
	}

	recs := make([]Record, 0, len(rows))
	for key, raw := range rows {
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			log.Printf("[MATCHLOG] skipping corrupt record %q: %v", key, err)
			continue
		}
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].EndedAt.Before(recs[j].EndedAt) })

	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = recs
	a.byUser = make(map[string][]int)
	for i, rec := range recs {
		a.byUser[rec.PlayerAID] = append(a.byUser[rec.PlayerAID], i)
		a.byUser[rec.PlayerBID] = append(a.byUser[rec.PlayerBID], i)
	}

	log.Printf("[MATCHLOG] restored %d match records", len(recs))
	return nil
}
