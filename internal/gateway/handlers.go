package gateway

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/terminal-bench/launchpad/internal/engine"
	"github.com/terminal-bench/launchpad/pkg/messaging"
)

// Governance handlers. Each call is one approval; the response reports
// whether this approval executed the operation or left it pending.

func (g *Gateway) initLaunchpad(c *gin.Context) {
	var req engine.InitParams
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := g.engine.Init(req); err != nil {
		fail(c, err)
		return
	}
	g.record(c, "init", req)
	c.JSON(http.StatusCreated, gin.H{"status": "initialized"})
}

func (g *Gateway) getAdmins(c *gin.Context) {
	info, err := g.engine.Admins()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (g *Gateway) setAdminSigners(c *gin.Context) {
	var req engine.SetAdminSignersParams
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	g.govern(c, "set_admin_signers", req, func() (engine.GovStatus, error) {
		return g.engine.SetAdminSigners(caller(c), req)
	})
}

func (g *Gateway) setFees(c *gin.Context) {
	var req engine.Fees
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	g.govern(c, "set_fees", req, func() (engine.GovStatus, error) {
		return g.engine.SetFees(caller(c), req)
	})
}

func (g *Gateway) setPermissions(c *gin.Context) {
	var req engine.Permissions
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	g.govern(c, "set_permissions", req, func() (engine.GovStatus, error) {
		return g.engine.SetPermissions(caller(c), req)
	})
}

func (g *Gateway) setOracleConfig(c *gin.Context) {
	var req engine.SetOracleConfigParams
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	g.govern(c, "set_oracle_config", req, func() (engine.GovStatus, error) {
		return g.engine.SetOracleConfig(caller(c), req)
	})
}

func (g *Gateway) initCustody(c *gin.Context) {
	var req engine.InitCustodyParams
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	g.govern(c, "init_custody", req, func() (engine.GovStatus, error) {
		return g.engine.InitCustody(caller(c), req)
	})
}

func (g *Gateway) withdrawFees(c *gin.Context) {
	var req engine.WithdrawFeesParams
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	g.govern(c, "withdraw_fees", req, func() (engine.GovStatus, error) {
		status, err := g.engine.WithdrawFees(caller(c), req)
		if err == nil && status == engine.GovExecuted {
			g.metrics.RecordWithdrawal(c.Request.Context(), "fees", req.Asset, req.Amount)
			g.publish(messaging.SubjectFeesWithdrawn, messaging.WithdrawalEvent{
				Asset:       req.Asset,
				Amount:      req.Amount,
				Destination: req.Destination,
				Kind:        "fees",
				Timestamp:   time.Now(),
			})
		}
		return status, err
	})
}

func (g *Gateway) deleteAuction(c *gin.Context) {
	req := engine.DeleteAuctionParams{
		Name:    c.Param("name"),
		SweepTo: c.Query("sweep_to"),
	}
	g.govern(c, "delete_auction", req, func() (engine.GovStatus, error) {
		status, err := g.engine.DeleteAuction(caller(c), req)
		if err == nil && status == engine.GovExecuted {
			g.publish(messaging.SubjectAuctionDeleted, messaging.AuctionEvent{
				Auction:   req.Name,
				Timestamp: time.Now(),
			})
		}
		return status, err
	})
}

func (g *Gateway) cancelProposal(c *gin.Context) {
	if err := g.engine.CancelProposal(caller(c), c.Param("kind")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// govern runs one approval call, journals it and reports the outcome.
func (g *Gateway) govern(c *gin.Context, op string, payload interface{}, call func() (engine.GovStatus, error)) {
	status, err := call()
	if err != nil {
		fail(c, err)
		return
	}
	g.record(c, op, payload)
	g.publish(messaging.SubjectGovernanceEvent, messaging.GovernanceEvent{
		Operation: op,
		Admin:     caller(c),
		Status:    string(status),
		Timestamp: time.Now(),
	})
	c.JSON(http.StatusOK, gin.H{"status": string(status)})
}

// Auction handlers.

func (g *Gateway) initAuction(c *gin.Context) {
	var req engine.InitAuctionParams
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	a, err := g.engine.InitAuction(caller(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	g.record(c, "init_auction", req)
	g.publish(messaging.SubjectAuctionCreated, messaging.AuctionEvent{
		Auction:   a.Name,
		Owner:     a.Owner,
		State:     string(a.State),
		Timestamp: time.Now(),
	})
	c.JSON(http.StatusCreated, a)
}

func (g *Gateway) getAuction(c *gin.Context) {
	a, err := g.engine.GetAuction(c.Param("name"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (g *Gateway) updateAuction(c *gin.Context) {
	var req engine.UpdateAuctionParams
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	req.Name = c.Param("name")
	if err := g.engine.UpdateAuction(caller(c), req); err != nil {
		fail(c, err)
		return
	}
	g.record(c, "update_auction", req)
	g.publish(messaging.SubjectAuctionUpdated, messaging.AuctionEvent{
		Auction:   req.Name,
		Timestamp: time.Now(),
	})
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (g *Gateway) enableAuction(c *gin.Context) {
	g.toggleAuction(c, "enable_auction", g.engine.EnableAuction)
}

func (g *Gateway) disableAuction(c *gin.Context) {
	g.toggleAuction(c, "disable_auction", g.engine.DisableAuction)
}

func (g *Gateway) toggleAuction(c *gin.Context, op string, call func(caller, name string) error) {
	name := c.Param("name")
	if err := call(caller(c), name); err != nil {
		fail(c, err)
		return
	}
	g.record(c, op, gin.H{"auction": name})
	g.publish(messaging.SubjectAuctionUpdated, messaging.AuctionEvent{
		Auction:   name,
		Timestamp: time.Now(),
	})
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (g *Gateway) addTokens(c *gin.Context) {
	var req engine.AddTokensParams
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	req.Auction = c.Param("name")
	if err := g.engine.AddTokens(caller(c), req); err != nil {
		fail(c, err)
		return
	}
	g.record(c, "add_tokens", req)
	c.JSON(http.StatusOK, gin.H{"status": "funded"})
}

func (g *Gateway) removeTokens(c *gin.Context) {
	var req engine.RemoveTokensParams
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	req.Auction = c.Param("name")
	if err := g.engine.RemoveTokens(caller(c), req); err != nil {
		fail(c, err)
		return
	}
	g.record(c, "remove_tokens", req)
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

type whitelistRequest struct {
	Bidders []string `json:"bidders" binding:"required"`
}

func (g *Gateway) whitelistAdd(c *gin.Context) {
	var req whitelistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := g.engine.WhitelistAdd(caller(c), c.Param("name"), req.Bidders); err != nil {
		fail(c, err)
		return
	}
	g.record(c, "whitelist_add", req)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (g *Gateway) whitelistRemove(c *gin.Context) {
	var req whitelistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := g.engine.WhitelistRemove(caller(c), c.Param("name"), req.Bidders); err != nil {
		fail(c, err)
		return
	}
	g.record(c, "whitelist_remove", req)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Quote handlers.

func (g *Gateway) getAuctionPrice(c *gin.Context) {
	amount, err := strconv.ParseUint(c.Query("amount"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}
	price, err := g.engine.GetAuctionPrice(c.Request.Context(), c.Param("name"), c.Query("asset"), amount)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"amount": amount, "price": price})
}

func (g *Gateway) getAuctionAmount(c *gin.Context) {
	price, err := strconv.ParseUint(c.Query("price"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid price"})
		return
	}
	amount, err := g.engine.GetAuctionAmount(c.Request.Context(), c.Param("name"), c.Query("asset"), price)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"price": price, "amount": amount})
}

// Bid handlers.

func (g *Gateway) placeBid(c *gin.Context) {
	var req engine.PlaceBidParams
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	req.Auction = c.Param("name")
	receipt, err := g.engine.PlaceBid(c.Request.Context(), caller(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	g.record(c, "place_bid", req)
	g.metrics.RecordFill(c.Request.Context(), receipt.Auction, receipt.Asset, receipt.Filled, receipt.Paid, receipt.TradeFee)
	g.publish(messaging.SubjectBidPlaced, messaging.BidEvent{
		Auction:   receipt.Auction,
		Bidder:    receipt.Bidder,
		Asset:     receipt.Asset,
		Filled:    receipt.Filled,
		Paid:      receipt.Paid,
		TradeFee:  receipt.TradeFee,
		Timestamp: time.Now(),
	})
	c.JSON(http.StatusCreated, receipt)
}

func (g *Gateway) cancelBid(c *gin.Context) {
	name := c.Param("name")
	if err := g.engine.CancelBid(caller(c), name); err != nil {
		fail(c, err)
		return
	}
	g.record(c, "cancel_bid", gin.H{"auction": name})
	g.publish(messaging.SubjectBidCancelled, messaging.BidEvent{
		Auction:   name,
		Bidder:    caller(c),
		Timestamp: time.Now(),
	})
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (g *Gateway) getBid(c *gin.Context) {
	b, err := g.engine.GetBid(c.Param("bidder"), c.Param("name"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// Settlement handlers.

func (g *Gateway) withdrawFunds(c *gin.Context) {
	var req engine.WithdrawFundsParams
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := g.engine.WithdrawFunds(caller(c), req); err != nil {
		fail(c, err)
		return
	}
	g.record(c, "withdraw_funds", req)
	g.metrics.RecordWithdrawal(c.Request.Context(), "funds", req.Asset, req.Amount)
	g.publish(messaging.SubjectFundsWithdrawn, messaging.WithdrawalEvent{
		Asset:       req.Asset,
		Amount:      req.Amount,
		Destination: req.Destination,
		Kind:        "funds",
		Timestamp:   time.Now(),
	})
	c.JSON(http.StatusOK, gin.H{"status": "withdrawn"})
}

func (g *Gateway) getCustody(c *gin.Context) {
	custody, err := g.engine.GetCustody(c.Param("asset"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, custody)
}

func (g *Gateway) getSellerBalance(c *gin.Context) {
	balance := g.engine.GetSellerBalance(caller(c), c.Query("asset"))
	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

// Side channels; all best-effort.

func (g *Gateway) record(c *gin.Context, op string, payload interface{}) {
	if g.journal == nil {
		return
	}
	g.journal.Append(c.Request.Context(), op, caller(c), payload)
}

func (g *Gateway) publish(subject string, event interface{}) {
	if g.msg == nil {
		return
	}
	g.msg.Publish(context.Background(), subject, event)
}
