package game

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cuepool/backend/internal/config"
	"github.com/cuepool/backend/internal/match"
	"github.com/cuepool/backend/internal/matchlog"
	"github.com/cuepool/backend/internal/notify"
	"github.com/cuepool/backend/internal/queue"
	"github.com/cuepool/backend/internal/wallet"
)

// Manager is the orchestrator: it owns the flow from queue join through
// match creation to settlement, delegating money movement to the ledger and
// state transitions to the lifecycle. Handlers and the websocket layer talk
// to the Manager, never to the queue or lifecycle directly.
type Manager struct {
	cfg      *config.Config
	ledger   *wallet.Ledger
	queue    *queue.Queue
	matches  *match.Lifecycle
	archive  *matchlog.Archive
	notifier notify.Notifier
	rdb      *redis.Client
}

func NewManager(cfg *config.Config, ledger *wallet.Ledger, q *queue.Queue, lc *match.Lifecycle, archive *matchlog.Archive, notifier notify.Notifier, rdb *redis.Client) *Manager {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Manager{
		cfg:      cfg,
		ledger:   ledger,
		queue:    q,
		matches:  lc,
		archive:  archive,
		notifier: notifier,
		rdb:      rdb,
	}
}

// JoinOutcome is what a join attempt produced: either a parked queue entry
// or a freshly created match.
type JoinOutcome struct {
	Status queue.JoinStatus `json:"status"`
	Match  *match.Match     `json:"match,omitempty"`
}

// JoinQueue puts the player in the matchmaking queue at the given stake. If
// an opponent is already waiting, the match is created immediately: the
// waiter plays as player A (they joined first) and both sides are notified.
func (mgr *Manager) JoinQueue(userID, username string, stake int64) (JoinOutcome, error) {
	if _, ok := mgr.matches.ActiveMatchFor(userID); ok {
		return JoinOutcome{}, &queue.ValidationError{Reason: "already in an active match"}
	}

	res, err := mgr.queue.Join(userID, username, stake)
	if err != nil {
		return JoinOutcome{}, err
	}

	if res.Status == queue.StatusWaiting {
		mgr.mirrorQueueDepth(stake)
		return JoinOutcome{Status: queue.StatusWaiting}, nil
	}

	opponent := res.Opponent
	m, err := mgr.matches.Create(
		match.Player{UserID: opponent.UserID, Username: opponent.Username},
		match.Player{UserID: userID, Username: username},
		stake,
	)
	if err != nil {
		// Both escrows were rolled back by Create; the waiter has to
		// rejoin. This only fires on ledger inconsistency.
		log.Printf("[GAME] match creation failed after pairing %s vs %s: %v", opponent.UserID, userID, err)
		return JoinOutcome{}, err
	}

	mgr.mirrorQueueDepth(stake)
	mgr.notifier.Notify(opponent.UserID, "match_found", map[string]interface{}{
		"match_id": m.MatchID,
		"opponent": username,
		"stake":    stake,
	})
	mgr.notifier.Notify(userID, "match_found", map[string]interface{}{
		"match_id": m.MatchID,
		"opponent": opponent.Username,
		"stake":    stake,
	})

	return JoinOutcome{Status: queue.StatusMatched, Match: &m}, nil
}

// LeaveQueue removes the player from the queue at the given stake and
// releases their escrow. Safe to call when not queued.
func (mgr *Manager) LeaveQueue(userID string, stake int64) {
	mgr.queue.Leave(userID, stake)
	mgr.mirrorQueueDepth(stake)
}

// QueueStatus reports whether the player is still waiting at the stake.
func (mgr *Manager) QueueStatus(userID string, stake int64) (waiting bool, depth int) {
	return mgr.queue.Waiting(userID, stake), mgr.queue.Depth(stake)
}

// ReportScore records a participant's score on an active match.
func (mgr *Manager) ReportScore(matchID, userID string, score int) error {
	return mgr.matches.UpdateScore(matchID, userID, score)
}

// EndMatch settles the match (exactly once) and notifies both players.
func (mgr *Manager) EndMatch(matchID string) (match.Settlement, error) {
	m, ok := mgr.matches.Get(matchID)
	if !ok {
		return match.Settlement{}, match.ErrMatchNotFound
	}

	s, err := mgr.matches.End(matchID)
	if err != nil {
		return match.Settlement{}, err
	}

	payload := map[string]interface{}{
		"match_id":      matchID,
		"draw":          s.Draw,
		"winner_id":     s.WinnerID,
		"winner_payout": s.WinnerPayout,
		"refund_each":   s.RefundEach,
	}
	mgr.notifier.Notify(m.PlayerA.UserID, "match_ended", payload)
	mgr.notifier.Notify(m.PlayerB.UserID, "match_ended", payload)
	return s, nil
}

// CancelMatch voids the match and refunds both stakes.
func (mgr *Manager) CancelMatch(matchID string) error {
	m, ok := mgr.matches.Get(matchID)
	if !ok {
		return match.ErrMatchNotFound
	}

	if err := mgr.matches.Cancel(matchID); err != nil {
		return err
	}

	payload := map[string]interface{}{"match_id": matchID, "refund": m.Stake}
	mgr.notifier.Notify(m.PlayerA.UserID, "match_cancelled", payload)
	mgr.notifier.Notify(m.PlayerB.UserID, "match_cancelled", payload)
	return nil
}

// ActiveMatchFor returns the player's in-flight match, if any.
func (mgr *Manager) ActiveMatchFor(userID string) (match.Match, bool) {
	return mgr.matches.ActiveMatchFor(userID)
}

// Match returns a match by ID, active or settled.
func (mgr *Manager) Match(matchID string) (match.Match, bool) {
	return mgr.matches.Get(matchID)
}

// History returns the player's archived matches, newest first.
func (mgr *Manager) History(userID string, limit int) []matchlog.Record {
	return mgr.archive.History(userID, limit)
}

// StatsFor aggregates the player's archived results.
func (mgr *Manager) StatsFor(userID string) matchlog.PlayerStats {
	return mgr.archive.StatsFor(userID)
}

// StakeTiers lists the allowed stakes in ascending order.
func (mgr *Manager) StakeTiers() []int64 {
	return mgr.queue.Tiers()
}

// mirrorQueueDepth publishes the current queue depth to Redis so other
// instances and dashboards can read it. Best effort.
func (mgr *Manager) mirrorQueueDepth(stake int64) {
	if mgr.rdb == nil {
		return
	}
	depth := mgr.queue.Depth(stake)
	go func() {
		key := fmt.Sprintf("cuepool:queue_depth:%d", stake)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := mgr.rdb.Set(ctx, key, depth, 0).Err(); err != nil {
			log.Printf("[GAME] queue depth mirror failed for stake %d: %v", stake, err)
		}
	}()
}
