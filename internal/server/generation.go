package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	generationdomain "github.com/smallbiznis/estatebill/internal/generation/domain"
)

type runGenerationRequest struct {
	// TargetMonth is YYYY-MM; empty uses the configured or current month.
	TargetMonth      string `json:"target_month"`
	BillVacantHouses *bool  `json:"bill_vacant_houses"`
	DueWindowDays    *int   `json:"due_window_days"`
}

func (s *Server) RunGeneration(c *gin.Context) {
	var req runGenerationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	policy := s.billingCfg.Get()
	target, err := policy.Target(time.Now())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	month, err := parseOptionalMonth(req.TargetMonth)
	if err != nil {
		AbortWithError(c, newValidationError("target_month", "invalid_target_month", "target_month must be YYYY-MM"))
		return
	}
	if month != nil {
		target = *month
	}

	opts := generationdomain.Options{
		Target:           target,
		TriggerType:      generationdomain.TriggerAPI,
		BillVacantHouses: policy.BillVacantHouses,
		DueWindowDays:    policy.DueWindowDays,
	}
	if req.BillVacantHouses != nil {
		opts.BillVacantHouses = *req.BillVacantHouses
	}
	if req.DueWindowDays != nil {
		opts.DueWindowDays = *req.DueWindowDays
	}

	summary, err := s.generationSvc.Run(c.Request.Context(), opts)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

type listGenerationRunsQuery struct {
	TargetPeriod string `form:"target_period"`
	Limit        int    `form:"limit"`
}

func (s *Server) ListGenerationRuns(c *gin.Context) {
	var query listGenerationRunsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	logs, err := s.generationSvc.ListLogs(c.Request.Context(), generationdomain.ListLogsRequest{
		TargetPeriod: strings.TrimSpace(query.TargetPeriod),
		Limit:        query.Limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": logs})
}
