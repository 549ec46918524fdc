package game

import (
	"context"
	"log"
	"time"

	"github.com/cuepool/backend/internal/match"
)

// StartExpiryWorker starts a background worker that force-settles matches
// that have run past the configured duration. An expired match is ended on
// current scores, which settles it like any other match (a tie refunds).
func StartExpiryWorker(ctx context.Context, mgr *Manager) {
	poll := time.Duration(mgr.cfg.ExpiryPollSec) * time.Second
	maxAge := time.Duration(mgr.cfg.MatchDurationSec) * time.Second

	log.Printf("[EXPIRY] Expiry worker started (poll every %v, max match age %v)", poll, maxAge)
	go func() {
		ticker := time.NewTicker(poll)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Println("[EXPIRY] Expiry worker stopping")
				return
			case <-ticker.C:
				cutoff := time.Now().Add(-maxAge)
				for _, id := range mgr.matches.ActiveOlderThan(cutoff) {
					s, err := mgr.EndMatch(id)
					if err != nil {
						// A racing End or Cancel got there first.
						if err == match.ErrAlreadySettled {
							continue
						}
						log.Printf("[EXPIRY] failed to settle expired match %s: %v", id, err)
						continue
					}
					log.Printf("[EXPIRY] force-settled expired match %s (draw=%v winner=%s)", id, s.Draw, s.WinnerID)
				}
			}
		}
	}()
}
