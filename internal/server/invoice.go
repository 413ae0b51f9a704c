package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/estatebill/internal/invoice/domain"
	"github.com/smallbiznis/estatebill/internal/providers/pdf"
	"github.com/smallbiznis/estatebill/pkg/db/pagination"
)

func (s *Server) GetInvoiceByID(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	detail, err := s.invoiceSvc.GetWithParent(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": detail})
}

func (s *Server) GetInvoiceOutstanding(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	outstanding, err := s.invoiceSvc.Outstanding(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": outstanding})
}

type listInvoicesQuery struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
	Status    string `form:"status"`
}

func (s *Server) ListResidentInvoices(c *gin.Context) {
	residentID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var query listInvoicesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.ListByResident(c.Request.Context(), invoicedomain.ListByResidentRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		ResidentID: residentID,
		Status:     invoicedomain.InvoiceStatus(strings.TrimSpace(query.Status)),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Invoices, "page_info": resp.PageInfo})
}

type createCorrectionRequest struct {
	Type   string                         `json:"type"`
	Items  []invoicedomain.CorrectionItem `json:"items"`
	Reason string                         `json:"reason"`
}

func (s *Server) CreateCorrection(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req createCorrectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	correction, err := s.invoiceSvc.CreateCorrection(c.Request.Context(), invoicedomain.CreateCorrectionRequest{
		InvoiceID: id,
		Type:      invoicedomain.CorrectionType(strings.TrimSpace(req.Type)),
		Items:     req.Items,
		Reason:    strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": correction})
}

type applyLateFeeRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (s *Server) ApplyLateFee(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req applyLateFeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	invoice, err := s.invoiceSvc.ApplyLateFee(c.Request.Context(), id, req.Amount)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

type voidInvoiceRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) VoidInvoice(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req voidInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	invoice, err := s.invoiceSvc.VoidInvoice(c.Request.Context(), id, strings.TrimSpace(req.Reason))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

// RenderInvoice streams the invoice statement as a PDF.
func (s *Server) RenderInvoice(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	detail, err := s.invoiceSvc.GetWithParent(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	invoice := detail.Invoice

	doc := pdf.InvoiceDocument{
		EstateName:    s.cfg.EstateName,
		InvoiceNumber: invoice.InvoiceNumber,
		InvoiceType:   string(invoice.InvoiceType),
		Status:        string(invoice.Status),
		IssueDate:     formatDate(invoice.CreatedAt),
		DueDate:       formatDate(invoice.DueDate),
		ServicePeriod: fmt.Sprintf("%s - %s", formatDate(invoice.PeriodStart), formatDate(invoice.PeriodEnd)),
		AmountDue:     invoice.AmountDue.StringFixed(2),
		AmountPaid:    invoice.AmountPaid.StringFixed(2),
		Remaining:     invoice.Remaining().StringFixed(2),
	}
	if detail.Parent != nil {
		doc.ParentNumber = detail.Parent.InvoiceNumber
	}
	if resident, err := s.estateSvc.GetResident(ctx, invoice.ResidentID); err == nil {
		doc.BillToName = resident.FullName
		doc.BillToEmail = resident.Email
	}
	if house, err := s.estateSvc.GetHouse(ctx, invoice.HouseID); err == nil {
		doc.HouseNumber = house.HouseNumber
	}
	for _, item := range detail.Items {
		doc.Items = append(doc.Items, pdf.Line{
			Description: item.Description,
			Amount:      item.Amount.StringFixed(2),
		})
	}

	body, err := s.renderer.InvoiceStatement(ctx, doc)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", invoice.InvoiceNumber+".pdf"))
	c.Data(http.StatusOK, "application/pdf", body)
}
