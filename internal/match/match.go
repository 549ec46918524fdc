package match

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cuepool/backend/internal/matchlog"
	"github.com/cuepool/backend/internal/wallet"
)

// Status of a match. Terminal states are never left; repeat terminal calls
// report ErrAlreadySettled.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

var (
	ErrMatchNotFound  = errors.New("match: not found")
	ErrAlreadySettled = errors.New("match: already settled")
	ErrNotParticipant = errors.New("match: user is not a participant")
)

// Player is one side of a match.
type Player struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Score    int    `json:"score"`
}

// Match is a head-to-head wagered game.
type Match struct {
	MatchID   string    `json:"match_id"`
	PlayerA   Player    `json:"player_a"`
	PlayerB   Player    `json:"player_b"`
	Stake     int64     `json:"stake"`
	Pool      int64     `json:"pool"`
	Status    Status    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
}

// Settlement is the outcome of End. On a draw both stakes are refunded and
// no fee is taken.
type Settlement struct {
	MatchID      string `json:"match_id"`
	Draw         bool   `json:"draw"`
	WinnerID     string `json:"winner_id,omitempty"`
	WinnerName   string `json:"winner_name,omitempty"`
	LoserID      string `json:"loser_id,omitempty"`
	WinnerPayout int64  `json:"winner_payout"`
	OperatorFee  int64  `json:"operator_fee"`
	RefundEach   int64  `json:"refund_each,omitempty"`
	PlayerAScore int    `json:"player_a_score"`
	PlayerBScore int    `json:"player_b_score"`
}

type matchState struct {
	mu sync.Mutex
	m  Match
}

// Lifecycle owns every match's state machine. Transitions for one match are
// serialized by its mutex; the terminal flip happens before any credit so
// concurrent End/Cancel can never double-pay.
type Lifecycle struct {
	mu      sync.RWMutex
	matches map[string]*matchState

	ledger     *wallet.Ledger
	archive    *matchlog.Archive
	split      Split
	operatorID string
}

// NewLifecycle wires the state machine to its collaborators.
func NewLifecycle(ledger *wallet.Ledger, archive *matchlog.Archive, split Split, operatorID string) (*Lifecycle, error) {
	if err := split.Validate(); err != nil {
		return nil, err
	}
	if operatorID == "" {
		return nil, fmt.Errorf("match: operator account id is required")
	}
	return &Lifecycle{
		matches:    make(map[string]*matchState),
		ledger:     ledger,
		archive:    archive,
		split:      split,
		operatorID: operatorID,
	}, nil
}

func newMatchID() string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("m_%d", time.Now().UnixNano())
	}
	return "m_" + hex.EncodeToString(b)
}

// Create debits both players' escrowed stakes into the match pool and opens
// the match. Both players must already hold an escrow of exactly stake; a
// failed debit (unreachable with correct callers) rolls back fail-safe and
// no match exists afterwards.
func (lc *Lifecycle) Create(playerA, playerB Player, stake int64) (Match, error) {
	matchID := newMatchID()

	if err := lc.ledger.SettleDebit(playerA.UserID, stake, matchID); err != nil {
		lc.ledger.ReleaseEscrow(playerA.UserID, stake)
		lc.ledger.ReleaseEscrow(playerB.UserID, stake)
		return Match{}, fmt.Errorf("match: debit player A: %w", err)
	}
	if err := lc.ledger.SettleDebit(playerB.UserID, stake, matchID); err != nil {
		// Player A's debit already happened; put the stake back.
		lc.ledger.Credit(playerA.UserID, stake, wallet.KindRefundCredit, matchID)
		lc.ledger.ReleaseEscrow(playerB.UserID, stake)
		return Match{}, fmt.Errorf("match: debit player B: %w", err)
	}

	playerA.Score = 0
	playerB.Score = 0
	m := Match{
		MatchID:   matchID,
		PlayerA:   playerA,
		PlayerB:   playerB,
		Stake:     stake,
		Pool:      2 * stake,
		Status:    StatusActive,
		StartedAt: time.Now(),
	}

	lc.mu.Lock()
	lc.matches[matchID] = &matchState{m: m}
	lc.mu.Unlock()

	log.Printf("[MATCH] created %s: %s vs %s stake=%d pool=%d", matchID, playerA.UserID, playerB.UserID, stake, m.Pool)
	return m, nil
}

func (lc *Lifecycle) state(matchID string) (*matchState, error) {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	st, ok := lc.matches[matchID]
	if !ok {
		return nil, ErrMatchNotFound
	}
	return st, nil
}

// UpdateScore sets a participant's score. Permitted only while active.
func (lc *Lifecycle) UpdateScore(matchID, userID string, score int) error {
	st, err := lc.state(matchID)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.m.Status != StatusActive {
		return ErrAlreadySettled
	}
	switch userID {
	case st.m.PlayerA.UserID:
		st.m.PlayerA.Score = score
	case st.m.PlayerB.UserID:
		st.m.PlayerB.Score = score
	default:
		return ErrNotParticipant
	}
	return nil
}

// End settles an active match. Strictly higher score wins; equal scores are
// a draw refunding each player their stake with no operator fee. The status
// flip to completed happens under the match lock before any credit, so the
// settlement is exactly-once.
func (lc *Lifecycle) End(matchID string) (Settlement, error) {
	st, err := lc.state(matchID)
	if err != nil {
		return Settlement{}, err
	}

	st.mu.Lock()
	if st.m.Status != StatusActive {
		st.mu.Unlock()
		return Settlement{}, ErrAlreadySettled
	}
	st.m.Status = StatusCompleted
	st.m.EndedAt = time.Now()
	m := st.m
	st.mu.Unlock()

	settlement := Settlement{
		MatchID:      matchID,
		PlayerAScore: m.PlayerA.Score,
		PlayerBScore: m.PlayerB.Score,
	}

	var winner, loser Player
	switch {
	case m.PlayerA.Score > m.PlayerB.Score:
		winner, loser = m.PlayerA, m.PlayerB
	case m.PlayerB.Score > m.PlayerA.Score:
		winner, loser = m.PlayerB, m.PlayerA
	default:
		// Draw: full refund, no fee, no prize distribution.
		lc.ledger.Credit(m.PlayerA.UserID, m.Stake, wallet.KindRefundCredit, matchID)
		lc.ledger.Credit(m.PlayerB.UserID, m.Stake, wallet.KindRefundCredit, matchID)
		settlement.Draw = true
		settlement.RefundEach = m.Stake
		lc.archiveTerminal(m, "")
		log.Printf("[MATCH] %s ended in a draw (%d-%d), refunded %d each", matchID, m.PlayerA.Score, m.PlayerB.Score, m.Stake)
		return settlement, nil
	}

	dist := Distribute(m.Stake, lc.split)
	lc.ledger.Credit(winner.UserID, dist.WinnerAmount, wallet.KindPayoutCredit, matchID)
	lc.ledger.Credit(lc.operatorID, dist.OperatorFee, wallet.KindFeeCredit, matchID)

	settlement.WinnerID = winner.UserID
	settlement.WinnerName = winner.Username
	settlement.LoserID = loser.UserID
	settlement.WinnerPayout = dist.WinnerAmount
	settlement.OperatorFee = dist.OperatorFee

	lc.archiveTerminal(m, winner.UserID)
	log.Printf("[MATCH] %s settled: winner=%s payout=%d fee=%d (%d-%d)",
		matchID, winner.UserID, dist.WinnerAmount, dist.OperatorFee, m.PlayerA.Score, m.PlayerB.Score)
	return settlement, nil
}

// Cancel refunds both players their stake and closes the match. Permitted
// only from active; the flip precedes the refunds.
func (lc *Lifecycle) Cancel(matchID string) error {
	st, err := lc.state(matchID)
	if err != nil {
		return err
	}

	st.mu.Lock()
	if st.m.Status != StatusActive {
		st.mu.Unlock()
		return ErrAlreadySettled
	}
	st.m.Status = StatusCancelled
	st.m.EndedAt = time.Now()
	m := st.m
	st.mu.Unlock()

	lc.ledger.Credit(m.PlayerA.UserID, m.Stake, wallet.KindRefundCredit, matchID)
	lc.ledger.Credit(m.PlayerB.UserID, m.Stake, wallet.KindRefundCredit, matchID)

	lc.archiveTerminal(m, "")
	log.Printf("[MATCH] %s cancelled, refunded %d each", matchID, m.Stake)
	return nil
}

// Get returns a copy of the match, active or terminal.
func (lc *Lifecycle) Get(matchID string) (Match, bool) {
	st, err := lc.state(matchID)
	if err != nil {
		return Match{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.m, true
}

// ActiveMatchFor returns the user's active match, if any.
func (lc *Lifecycle) ActiveMatchFor(userID string) (Match, bool) {
	lc.mu.RLock()
	defer lc.mu.RUnlock()

	for _, st := range lc.matches {
		st.mu.Lock()
		m := st.m
		st.mu.Unlock()
		if m.Status == StatusActive && (m.PlayerA.UserID == userID || m.PlayerB.UserID == userID) {
			return m, true
		}
	}
	return Match{}, false
}

// ActiveCount returns how many matches are currently in play.
func (lc *Lifecycle) ActiveCount() int {
	lc.mu.RLock()
	defer lc.mu.RUnlock()

	n := 0
	for _, st := range lc.matches {
		st.mu.Lock()
		if st.m.Status == StatusActive {
			n++
		}
		st.mu.Unlock()
	}
	return n
}

// ActiveOlderThan returns IDs of active matches that started before the
// cutoff. The expiry worker drives these to settlement; the state machine
// itself keeps no timers.
func (lc *Lifecycle) ActiveOlderThan(cutoff time.Time) []string {
	lc.mu.RLock()
	defer lc.mu.RUnlock()

	var out []string
	for id, st := range lc.matches {
		st.mu.Lock()
		if st.m.Status == StatusActive && st.m.StartedAt.Before(cutoff) {
			out = append(out, id)
		}
		st.mu.Unlock()
	}
	return out
}

func (lc *Lifecycle) archiveTerminal(m Match, winnerID string) {
	if lc.archive == nil {
		return
	}
	rec := matchlog.Record{
		MatchID:      m.MatchID,
		PlayerAID:    m.PlayerA.UserID,
		PlayerAName:  m.PlayerA.Username,
		PlayerBID:    m.PlayerB.UserID,
		PlayerBName:  m.PlayerB.Username,
		Stake:        m.Stake,
		Pool:         m.Pool,
		PlayerAScore: m.PlayerA.Score,
		PlayerBScore: m.PlayerB.Score,
		WinnerID:     winnerID,
		Status:       string(m.Status),
		StartedAt:    m.StartedAt,
		EndedAt:      m.EndedAt,
		DurationSecs: int64(m.EndedAt.Sub(m.StartedAt).Seconds()),
	}
	if winnerID != "" {
		dist := Distribute(m.Stake, lc.split)
		rec.WinnerPayout = dist.WinnerAmount
		rec.OperatorFee = dist.OperatorFee
	}
	lc.archive.Add(rec)
}
