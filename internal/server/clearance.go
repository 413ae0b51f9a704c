package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/estatebill/internal/providers/pdf"
)

// GetClearance computes the resident's clearance. notify=true also tells the
// resident, for offboarding callers.
func (s *Server) GetClearance(c *gin.Context) {
	residentID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	notify := false
	if raw := strings.TrimSpace(c.Query("notify")); raw != "" {
		notify, err = strconv.ParseBool(raw)
		if err != nil {
			AbortWithError(c, newValidationError("notify", "invalid_notify", "invalid notify"))
			return
		}
	}

	compute := s.clearanceSvc.Compute
	if notify {
		compute = s.clearanceSvc.ComputeAndNotify
	}
	result, err := compute(c.Request.Context(), residentID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) RenderClearance(c *gin.Context) {
	residentID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	resident, err := s.estateSvc.GetResident(ctx, residentID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	result, err := s.clearanceSvc.Compute(ctx, residentID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	doc := pdf.ClearanceDocument{
		EstateName:    s.cfg.EstateName,
		ResidentName:  resident.FullName,
		GeneratedAt:   result.ComputedAt.Format(time.RFC1123),
		WalletBalance: result.WalletBalance.StringFixed(2),
		TotalUnpaid:   result.TotalUnpaid.StringFixed(2),
		NetBalance:    result.NetBalance.StringFixed(2),
		CanProceed:    result.CanProceed,
	}
	for _, invoice := range result.UnpaidInvoices {
		doc.Unpaid = append(doc.Unpaid, pdf.Line{
			Description: invoice.InvoiceNumber,
			Amount:      invoice.Remaining().StringFixed(2),
		})
	}

	body, err := s.renderer.ClearanceLetter(ctx, doc)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", "clearance-"+residentID.String()+".pdf"))
	c.Data(http.StatusOK, "application/pdf", body)
}
