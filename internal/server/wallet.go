package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	walletdomain "github.com/smallbiznis/estatebill/internal/wallet/domain"
	"github.com/smallbiznis/estatebill/pkg/db/pagination"
)

func (s *Server) GetWallet(c *gin.Context) {
	residentID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	wallet, err := s.walletSvc.GetOrCreate(c.Request.Context(), residentID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": wallet})
}

type listTransactionsQuery struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
}

func (s *Server) ListWalletTransactions(c *gin.Context) {
	residentID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var query listTransactionsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.walletSvc.Transactions(c.Request.Context(), walletdomain.ListTransactionsRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		ResidentID: residentID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Transactions, "page_info": resp.PageInfo})
}

type postingRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

func (s *Server) CreditWallet(c *gin.Context) {
	s.postWallet(c, walletdomain.TransactionTypeCredit)
}

func (s *Server) DebitWallet(c *gin.Context) {
	s.postWallet(c, walletdomain.TransactionTypeDebit)
}

func (s *Server) postWallet(c *gin.Context, txType walletdomain.TransactionType) {
	residentID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req postingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	posting := walletdomain.PostingRequest{
		ResidentID:  residentID,
		Amount:      req.Amount,
		Description: strings.TrimSpace(req.Description),
	}

	var txn *walletdomain.Transaction
	if txType == walletdomain.TransactionTypeCredit {
		txn, err = s.walletSvc.Credit(c.Request.Context(), posting)
	} else {
		txn, err = s.walletSvc.Debit(c.Request.Context(), posting)
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": txn})
}

type settleInvoiceRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

func (s *Server) SettleInvoice(c *gin.Context) {
	residentID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	invoiceID, err := pathID(c, "invoice_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req settleInvoiceRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	result, err := s.walletSvc.SettleInvoice(c.Request.Context(), walletdomain.SettleRequest{
		ResidentID: residentID,
		InvoiceID:  invoiceID,
		Amount:     req.Amount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) ReconcileWallet(c *gin.Context) {
	residentID, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.walletSvc.Reconcile(c.Request.Context(), residentID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
