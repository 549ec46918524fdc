package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cuepool/backend/internal/config"
	"github.com/cuepool/backend/internal/money"
	"github.com/cuepool/backend/internal/wallet"
)

// GetBalance handles GET /wallet/balance.
func GetBalance(ledger *wallet.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _, ok := currentUser(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, ledger.BalanceOf(userID))
	}
}

// WalletHistory handles GET /wallet/history?limit=N, newest first.
func WalletHistory(ledger *wallet.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _, ok := currentUser(c)
		if !ok {
			return
		}

		limit := 50
		if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 {
			limit = l
		}
		c.JSON(http.StatusOK, gin.H{"entries": ledger.History(userID, limit)})
	}
}

// RequestDeposit handles POST /wallet/deposit: opens a pending deposit entry.
// The balance only moves when the gateway confirms.
func RequestDeposit(ledger *wallet.Ledger, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _, ok := currentUser(c)
		if !ok {
			return
		}

		var req struct {
			Amount int64 `json:"amount"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "amount required"})
			return
		}
		if err := money.ValidateAmount(req.Amount, cfg.MinDepositPaise, cfg.MaxDepositPaise); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		entry, err := ledger.RequestDeposit(userID, req.Amount)
		if err != nil {
			writeDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"entry": entry})
	}
}

// RequestWithdrawal handles POST /wallet/withdraw: deducts immediately and
// opens a pending withdrawal entry; a failed gateway event refunds.
func RequestWithdrawal(ledger *wallet.Ledger, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _, ok := currentUser(c)
		if !ok {
			return
		}

		var req struct {
			Amount int64 `json:"amount"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "amount required"})
			return
		}
		if err := money.ValidateAmount(req.Amount, cfg.MinWithdrawalPaise, cfg.MaxWithdrawalPaise); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		entry, err := ledger.RequestWithdrawal(userID, req.Amount)
		if err != nil {
			writeDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"entry": entry})
	}
}

// GatewayCallback handles POST /wallet/gateway/callback. The payment gateway
// reports the terminal status of a pending deposit or withdrawal. The
// endpoint is idempotent: a repeat event for a finalized entry is a 409.
func GatewayCallback(ledger *wallet.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			EntryID    string `json:"entry_id"`
			GatewayRef string `json:"gateway_ref"`
			Status     string `json:"status"` // confirmed | failed
			Reason     string `json:"reason"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "entry_id, gateway_ref and status required"})
			return
		}

		var err error
		switch req.Status {
		case "confirmed":
			err = ledger.ConfirmExternal(req.EntryID, req.GatewayRef)
		case "failed":
			err = ledger.FailExternal(req.EntryID, req.GatewayRef, req.Reason)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "status must be confirmed or failed"})
			return
		}
		if err != nil {
			writeDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "processed"})
	}
}
