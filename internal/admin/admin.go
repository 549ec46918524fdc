package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/cuepool/backend/internal/matchlog"
	"github.com/cuepool/backend/internal/store"
	"github.com/cuepool/backend/internal/wallet"
)

const (
	bucketAdmin = "admin"
	bucketAudit = "admin_audit"

	keyOperatorToken = "operator_token_hash"
)

var ErrInvalidToken = errors.New("admin: invalid token")

// Service guards the operator surface: a single bcrypt-hashed token stored
// in the KV store, plus an audit trail of operator actions.
type Service struct {
	db         store.Store
	ledger     *wallet.Ledger
	archive    *matchlog.Archive
	operatorID string
}

func NewService(db store.Store, ledger *wallet.Ledger, archive *matchlog.Archive, operatorID string) *Service {
	return &Service{db: db, ledger: ledger, archive: archive, operatorID: operatorID}
}

// SetOperatorToken hashes and stores the operator token. Used by the seed
// command and token rotation.
func (s *Service) SetOperatorToken(ctx context.Context, plainToken string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plainToken), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash token: %w", err)
	}
	return s.db.Put(ctx, bucketAdmin, keyOperatorToken, hashed)
}

// VerifyOperatorToken checks the provided token against the stored hash.
func (s *Service) VerifyOperatorToken(ctx context.Context, plainToken string) error {
	hashed, err := s.db.Get(ctx, bucketAdmin, keyOperatorToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Println("[ADMIN] no operator token seeded; admin surface locked")
			return ErrInvalidToken
		}
		return err
	}
	if bcrypt.CompareHashAndPassword(hashed, []byte(plainToken)) != nil {
		return ErrInvalidToken
	}
	return nil
}

// AuditRecord is one operator action.
type AuditRecord struct {
	IP        string    `json:"ip"`
	Route     string    `json:"route"`
	Action    string    `json:"action"`
	Success   bool      `json:"success"`
	CreatedAt time.Time `json:"created_at"`
}

// LogAction records an operator action in the audit trail. Best effort.
func (s *Service) LogAction(ctx context.Context, ip, route, action string, success bool) {
	rec := AuditRecord{IP: ip, Route: route, Action: action, Success: success, CreatedAt: time.Now()}
	data, err := json.Marshal(rec)
	if err != nil {
		log.Printf("[ADMIN] failed to marshal audit record: %v", err)
		return
	}
	key := fmt.Sprintf("%d_%s", rec.CreatedAt.UnixNano(), action)
	if err := s.db.Put(ctx, bucketAudit, key, data); err != nil {
		log.Printf("[ADMIN] failed to store audit record: %v", err)
	}
}

// Summary is the operator's view of the platform economics.
type Summary struct {
	OperatorBalance  int64 `json:"operator_balance"`
	TotalMatches     int   `json:"total_matches"`
	CompletedMatches int   `json:"completed_matches"`
	CancelledMatches int   `json:"cancelled_matches"`
	TotalFees        int64 `json:"total_fees"`
	TotalStaked      int64 `json:"total_staked"`
}

// Summarize reports the accumulated operator revenue and match totals.
func (s *Service) Summarize() Summary {
	ops := s.archive.OperatorSummary()
	bal := s.ledger.BalanceOf(s.operatorID)
	return Summary{
		OperatorBalance:  bal.Balance,
		TotalMatches:     ops.TotalMatches,
		CompletedMatches: ops.CompletedMatches,
		CancelledMatches: ops.CancelledMatches,
		TotalFees:        ops.TotalFees,
		TotalStaked:      ops.TotalStaked,
	}
}
