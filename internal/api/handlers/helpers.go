package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuepool/backend/internal/match"
	"github.com/cuepool/backend/internal/queue"
	"github.com/cuepool/backend/internal/wallet"
)

// currentUser reads the authenticated identity set by the session middleware.
func currentUser(c *gin.Context) (userID, username string, ok bool) {
	uidI, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", "", false
	}
	userID = uidI.(string)
	if nameI, exists := c.Get("username"); exists {
		username, _ = nameI.(string)
	}
	if username == "" {
		username = userID
	}
	return userID, username, true
}

// writeDomainError maps domain errors onto HTTP responses so every handler
// reports the same taxonomy.
func writeDomainError(c *gin.Context, err error) {
	var verr *queue.ValidationError
	var ife *wallet.InsufficientFundsError
	var cerr *wallet.ConsistencyError

	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Reason})
	case errors.As(err, &ife):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "insufficient funds",
			"detail":    ife.Error(),
			"required":  ife.Required,
			"available": ife.Available,
		})
	case errors.Is(err, match.ErrMatchNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "match not found"})
	case errors.Is(err, match.ErrAlreadySettled):
		c.JSON(http.StatusConflict, gin.H{"error": "already_settled"})
	case errors.Is(err, match.ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant in this match"})
	case errors.Is(err, wallet.ErrEntryNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "ledger entry not found"})
	case errors.Is(err, wallet.ErrEntryFinalized):
		c.JSON(http.StatusConflict, gin.H{"error": "ledger entry already finalized"})
	case errors.As(err, &cerr):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ledger inconsistency, flagged for review"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
