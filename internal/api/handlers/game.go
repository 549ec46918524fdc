package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cuepool/backend/internal/game"
)

// JoinQueue handles POST /queue/join: escrow the stake and wait or match.
func JoinQueue(mgr *game.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, username, ok := currentUser(c)
		if !ok {
			return
		}

		var req struct {
			Stake int64 `json:"stake"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "stake required"})
			return
		}

		out, err := mgr.JoinQueue(userID, username, req.Stake)
		if err != nil {
			writeDomainError(c, err)
			return
		}

		resp := gin.H{"status": out.Status}
		if out.Match != nil {
			resp["match"] = out.Match
		}
		c.JSON(http.StatusOK, resp)
	}
}

// LeaveQueue handles POST /queue/leave: remove the waiter and release escrow.
func LeaveQueue(mgr *game.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _, ok := currentUser(c)
		if !ok {
			return
		}

		var req struct {
			Stake int64 `json:"stake"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "stake required"})
			return
		}

		mgr.LeaveQueue(userID, req.Stake)
		c.JSON(http.StatusOK, gin.H{"status": "left"})
	}
}

// QueueStatus handles GET /queue/status?stake=N.
func QueueStatus(mgr *game.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _, ok := currentUser(c)
		if !ok {
			return
		}

		stake, err := strconv.ParseInt(c.Query("stake"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "stake query parameter required"})
			return
		}

		waiting, depth := mgr.QueueStatus(userID, stake)
		c.JSON(http.StatusOK, gin.H{
			"waiting": waiting,
			"depth":   depth,
			"tiers":   mgr.StakeTiers(),
		})
	}
}

// ActiveMatch handles GET /match/active: the caller's in-flight match.
func ActiveMatch(mgr *game.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _, ok := currentUser(c)
		if !ok {
			return
		}

		m, found := mgr.ActiveMatchFor(userID)
		if !found {
			c.JSON(http.StatusOK, gin.H{"active": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"active": true, "match": m})
	}
}

// GetMatch handles GET /match/:id.
func GetMatch(mgr *game.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, _, ok := currentUser(c); !ok {
			return
		}
		m, found := mgr.Match(c.Param("id"))
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "match not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"match": m})
	}
}

// ReportScore handles POST /match/:id/score.
func ReportScore(mgr *game.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _, ok := currentUser(c)
		if !ok {
			return
		}

		var req struct {
			Score int `json:"score"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "score required"})
			return
		}

		if err := mgr.ReportScore(c.Param("id"), userID, req.Score); err != nil {
			writeDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "recorded"})
	}
}

// EndMatch handles POST /match/:id/end: settle on current scores.
func EndMatch(mgr *game.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _, ok := currentUser(c)
		if !ok {
			return
		}
		matchID := c.Param("id")

		m, found := mgr.Match(matchID)
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "match not found"})
			return
		}
		if m.PlayerA.UserID != userID && m.PlayerB.UserID != userID {
			c.JSON(http.StatusForbidden, gin.H{"error": "not a participant in this match"})
			return
		}

		s, err := mgr.EndMatch(matchID)
		if err != nil {
			writeDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"settlement": s})
	}
}

// CancelMatch handles POST /match/:id/cancel: void the match, refund stakes.
func CancelMatch(mgr *game.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _, ok := currentUser(c)
		if !ok {
			return
		}
		matchID := c.Param("id")

		m, found := mgr.Match(matchID)
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "match not found"})
			return
		}
		if m.PlayerA.UserID != userID && m.PlayerB.UserID != userID {
			c.JSON(http.StatusForbidden, gin.H{"error": "not a participant in this match"})
			return
		}

		if err := mgr.CancelMatch(matchID); err != nil {
			writeDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
	}
}

// MatchHistory handles GET /match/history?limit=N.
func MatchHistory(mgr *game.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _, ok := currentUser(c)
		if !ok {
			return
		}

		limit := 20
		if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 {
			limit = l
		}
		c.JSON(http.StatusOK, gin.H{"matches": mgr.History(userID, limit)})
	}
}

// PlayerStats handles GET /player/stats.
func PlayerStats(mgr *game.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _, ok := currentUser(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, mgr.StatsFor(userID))
	}
}
