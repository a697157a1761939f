package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/apexbay/nftmarket/internal/ledger"
)

// statusForKind maps a settlement failure to an HTTP status.
func statusForKind(k ledger.Kind) int {
	switch k {
	case ledger.KindAlreadyListed, ledger.KindNotApproved,
		ledger.KindNoProceeds, ledger.KindReentrantCall:
		return http.StatusConflict
	case ledger.KindNotOwner:
		return http.StatusForbidden
	case ledger.KindNotListed:
		return http.StatusNotFound
	case ledger.KindPriceMustBeAboveZero:
		return http.StatusBadRequest
	case ledger.KindPriceNotMet:
		return http.StatusPaymentRequired
	case ledger.KindTransferFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// renderError writes a ledger failure as JSON. Anything that is not a
// *ledger.Error is a bug and reported as a 500.
func (s *Server) renderError(c *gin.Context, err error) {
	var lerr *ledger.Error
	if !errors.As(err, &lerr) {
		s.logger.Error("unclassified handler error", "error", err, "path", c.Request.URL.Path)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal",
			"message": "internal error",
		})
		return
	}

	body := gin.H{
		"error":   string(lerr.Kind),
		"message": lerr.Error(),
	}
	if !lerr.Collection.IsZero() {
		body["collection"] = string(lerr.Collection)
		body["token_id"] = lerr.TokenID
	}
	if lerr.Price != nil {
		body["price"] = lerr.Price.String()
	}
	if lerr.Offered != nil {
		body["offered"] = lerr.Offered.String()
	}

	c.JSON(statusForKind(lerr.Kind), body)
}

// badRequest rejects malformed input before it reaches the ledger.
func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "bad_request",
		"message": msg,
	})
}
