package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	waiverdomain "github.com/smallbiznis/estatebill/internal/waiver/domain"
)

type requestWaiverRequest struct {
	Type         string           `json:"waiver_type"`
	WaiverAmount *decimal.Decimal `json:"waiver_amount"`
	Reason       string           `json:"reason"`
}

func (s *Server) RequestWaiver(c *gin.Context) {
	invoiceID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req requestWaiverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	waiver, err := s.waiverSvc.Request(c.Request.Context(), waiverdomain.CreateRequest{
		InvoiceID:    invoiceID,
		Type:         waiverdomain.WaiverType(strings.TrimSpace(req.Type)),
		WaiverAmount: req.WaiverAmount,
		Reason:       strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": waiver})
}

type reviewWaiverRequest struct {
	Notes string `json:"notes"`
}

type reviewFunc func(ctx context.Context, req waiverdomain.ReviewRequest) (*waiverdomain.LateFeeWaiver, error)

func (s *Server) ApproveWaiver(c *gin.Context) {
	s.reviewWaiver(c, s.waiverSvc.Approve)
}

func (s *Server) RejectWaiver(c *gin.Context) {
	s.reviewWaiver(c, s.waiverSvc.Reject)
}

func (s *Server) reviewWaiver(c *gin.Context, review reviewFunc) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// notes are optional; an empty body is fine
	var req reviewWaiverRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	waiver, err := review(c.Request.Context(), waiverdomain.ReviewRequest{
		WaiverID: id,
		Notes:    strings.TrimSpace(req.Notes),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": waiver})
}

func (s *Server) GetWaiver(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	waiver, err := s.waiverSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": waiver})
}

func (s *Server) ListInvoiceWaivers(c *gin.Context) {
	invoiceID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	waivers, err := s.waiverSvc.ListByInvoice(c.Request.Context(), invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": waivers})
}
