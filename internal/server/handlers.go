package server

import (
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/apexbay/nftmarket/internal/model"
	"github.com/apexbay/nftmarket/internal/version"
)

// listingResponse is the wire form of one listing. An inactive listing
// has price "0" and no seller.
type listingResponse struct {
	Collection string `json:"collection"`
	TokenID    uint64 `json:"token_id"`
	Price      string `json:"price"`
	Seller     string `json:"seller,omitempty"`
	Active     bool   `json:"active"`
}

func (s *Server) listingResponseFor(collection model.Address, tokenID uint64) listingResponse {
	resp := listingResponse{
		Collection: string(collection),
		TokenID:    tokenID,
		Price:      "0",
	}
	l := s.ledger.GetListing(collection, tokenID)
	if l.Active() {
		resp.Price = l.Price.String()
		resp.Seller = string(l.Seller)
		resp.Active = true
	}
	return resp
}

// handleListItem creates a listing.
//
// POST /api/v1/listings
func (s *Server) handleListItem(c *gin.Context) {
	var req struct {
		Collection string `json:"collection"`
		TokenID    uint64 `json:"token_id"`
		Price      string `json:"price"`
		Seller     string `json:"seller"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	collection, err := model.ParseAddress(req.Collection)
	if err != nil {
		badRequest(c, "invalid collection address")
		return
	}
	seller, err := model.ParseAddress(req.Seller)
	if err != nil {
		badRequest(c, "invalid seller address")
		return
	}
	price, ok := parsePrice(req.Price)
	if !ok {
		badRequest(c, "invalid price")
		return
	}

	if err := s.ledger.ListItem(c.Request.Context(), collection, req.TokenID, price, seller); err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, s.listingResponseFor(collection, req.TokenID))
}

// handleGetListing reads a listing. Absence is not an error: the
// response carries price "0" and no seller.
//
// GET /api/v1/listings/:collection/:token_id
func (s *Server) handleGetListing(c *gin.Context) {
	collection, tokenID, ok := tokenParams(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.listingResponseFor(collection, tokenID))
}

// handleUpdatePrice raises the asking price of a listing.
//
// PATCH /api/v1/listings/:collection/:token_id
func (s *Server) handleUpdatePrice(c *gin.Context) {
	collection, tokenID, ok := tokenParams(c)
	if !ok {
		return
	}

	var req struct {
		Price  string `json:"price"`
		Caller string `json:"caller"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	caller, err := model.ParseAddress(req.Caller)
	if err != nil {
		badRequest(c, "invalid caller address")
		return
	}
	price, ok := parsePrice(req.Price)
	if !ok {
		badRequest(c, "invalid price")
		return
	}

	if err := s.ledger.UpdateListingPrice(c.Request.Context(), collection, tokenID, price, caller); err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, s.listingResponseFor(collection, tokenID))
}

// handleCancelListing takes a listing down.
//
// DELETE /api/v1/listings/:collection/:token_id
func (s *Server) handleCancelListing(c *gin.Context) {
	collection, tokenID, ok := tokenParams(c)
	if !ok {
		return
	}

	var req struct {
		Caller string `json:"caller"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	caller, err := model.ParseAddress(req.Caller)
	if err != nil {
		badRequest(c, "invalid caller address")
		return
	}

	if err := s.ledger.CancelListing(c.Request.Context(), collection, tokenID, caller); err != nil {
		s.renderError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// handleBuyItem purchases a listing.
//
// POST /api/v1/listings/:collection/:token_id/buy
func (s *Server) handleBuyItem(c *gin.Context) {
	collection, tokenID, ok := tokenParams(c)
	if !ok {
		return
	}

	var req struct {
		Payment string `json:"payment"`
		Buyer   string `json:"buyer"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	buyer, err := model.ParseAddress(req.Buyer)
	if err != nil {
		badRequest(c, "invalid buyer address")
		return
	}
	payment, ok := parsePrice(req.Payment)
	if !ok {
		badRequest(c, "invalid payment")
		return
	}

	if err := s.ledger.BuyItem(c.Request.Context(), collection, tokenID, payment, buyer); err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"collection": string(collection),
		"token_id":   tokenID,
		"buyer":      string(buyer),
		"payment":    payment.String(),
	})
}

// handleGetProceeds reads a seller's withdrawable balance.
//
// GET /api/v1/proceeds/:address
func (s *Server) handleGetProceeds(c *gin.Context) {
	addr, err := model.ParseAddress(c.Param("address"))
	if err != nil {
		badRequest(c, "invalid address")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address":  string(addr),
		"proceeds": s.ledger.GetProceeds(addr).String(),
	})
}

// handleWithdraw pays out a seller's balance.
//
// POST /api/v1/proceeds/withdraw
func (s *Server) handleWithdraw(c *gin.Context) {
	var req struct {
		Address string `json:"address"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	addr, err := model.ParseAddress(req.Address)
	if err != nil {
		badRequest(c, "invalid address")
		return
	}

	amount, err := s.ledger.WithdrawProceeds(c.Request.Context(), addr)
	if err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address": string(addr),
		"amount":  amount.String(),
	})
}

// handleHealth reports liveness plus component counters.
//
// GET /healthz
func (s *Server) handleHealth(c *gin.Context) {
	stats := s.ledger.Stats()

	resp := gin.H{
		"status":  "ok",
		"version": version.String(),
		"uptime":  time.Since(s.started).String(),
		"ledger": gin.H{
			"active_listings":      stats.ActiveListings,
			"sales":                stats.Sales,
			"cancellations":        stats.Cancellations,
			"price_updates":        stats.PriceUpdates,
			"withdrawals":          stats.Withdrawals,
			"reentrant_rejections": stats.ReentrantRejections,
			"custody":              stats.Custody.String(),
			"volume":               stats.Volume.String(),
		},
	}

	if s.journal != nil {
		m := s.journal.Stats()
		resp["journal"] = gin.H{
			"inserts":   m.Inserts,
			"conflicts": m.Conflicts,
			"errors":    m.Errors,
			"flushes":   m.Flushes,
			"dropped":   m.Dropped,
		}
	}
	if s.hub != nil {
		resp["feed"] = gin.H{"clients": s.hub.ClientCount()}
	}

	c.JSON(http.StatusOK, resp)
}

// tokenParams parses the :collection/:token_id pair, writing a 400 on
// malformed input.
func tokenParams(c *gin.Context) (model.Address, uint64, bool) {
	collection, err := model.ParseAddress(c.Param("collection"))
	if err != nil {
		badRequest(c, "invalid collection address")
		return "", 0, false
	}
	tokenID, err := strconv.ParseUint(c.Param("token_id"), 10, 64)
	if err != nil {
		badRequest(c, "invalid token id")
		return "", 0, false
	}
	return collection, tokenID, true
}

// parsePrice parses a non-negative decimal string into a big.Int.
func parsePrice(s string) (*big.Int, bool) {
	if s == "" {
		return nil, false
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 {
		return nil, false
	}
	return n, true
}
