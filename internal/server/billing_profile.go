package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	approvaldomain "github.com/smallbiznis/estatebill/internal/approval/domain"
	billingprofiledomain "github.com/smallbiznis/estatebill/internal/billingprofile/domain"
)

func (s *Server) GetBillingProfile(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resolved, err := s.billingProfileSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"profile": resolved.Profile,
		"items":   resolved.Items,
		"total":   resolved.Total(),
	}})
}

type updateEffectiveDateRequest struct {
	EffectiveDate string `json:"effective_date"`
	Reason        string `json:"reason"`
}

// UpdateEffectiveDate answers 200 when applied and 202 when the change waits
// for approval.
func (s *Server) UpdateEffectiveDate(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req updateEffectiveDateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	effective, err := parseDate(req.EffectiveDate)
	if err != nil {
		AbortWithError(c, billingprofiledomain.ErrInvalidEffectiveDate)
		return
	}

	result, err := s.billingProfileSvc.UpdateEffectiveDate(c.Request.Context(), billingprofiledomain.UpdateEffectiveDateRequest{
		ProfileID:     id,
		EffectiveDate: effective,
		Reason:        strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if result.PendingApproval {
		status = http.StatusAccepted
	}
	c.JSON(status, gin.H{"data": result})
}

func (s *Server) GetApproval(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	request, err := s.approvalSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": request})
}

type decideApprovalRequest struct {
	Approve *bool  `json:"approve"`
	Notes   string `json:"notes"`
}

func (s *Server) DecideApproval(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req decideApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Approve == nil {
		AbortWithError(c, newValidationError("approve", "required", "approve is required"))
		return
	}

	request, err := s.approvalSvc.Decide(c.Request.Context(), approvaldomain.Decision{
		RequestID: id,
		Approve:   *req.Approve,
		Notes:     strings.TrimSpace(req.Notes),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": request})
}

// ApplyApproval executes an approved billing profile change.
func (s *Server) ApplyApproval(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	profile, err := s.billingProfileSvc.ApplyApprovedChange(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": profile})
}
