package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/estatebill/internal/authorization"
	"github.com/smallbiznis/estatebill/internal/authorization/authztest"
	"github.com/smallbiznis/estatebill/internal/config"
	generationdomain "github.com/smallbiznis/estatebill/internal/generation/domain"
	invoicedomain "github.com/smallbiznis/estatebill/internal/invoice/domain"
	walletdomain "github.com/smallbiznis/estatebill/internal/wallet/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeInvoiceService struct {
	invoicedomain.Service

	detail *invoicedomain.InvoiceDetail
	err    error
}

func (f *fakeInvoiceService) GetWithParent(ctx context.Context, id snowflake.ID) (*invoicedomain.InvoiceDetail, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.detail, nil
}

func (f *fakeInvoiceService) ApplyLateFee(ctx context.Context, id snowflake.ID, amount decimal.Decimal) (*invoicedomain.Invoice, error) {
	return nil, f.err
}

type fakeWalletService struct {
	walletdomain.Service

	posted []walletdomain.PostingRequest
}

func (f *fakeWalletService) Credit(ctx context.Context, req walletdomain.PostingRequest) (*walletdomain.Transaction, error) {
	f.posted = append(f.posted, req)
	return &walletdomain.Transaction{
		ResidentID: req.ResidentID,
		Type:       walletdomain.TransactionTypeCredit,
		Amount:     req.Amount,
	}, nil
}

type fakeGenerationService struct {
	generationdomain.Service

	opts []generationdomain.Options
	err  error
}

func (f *fakeGenerationService) Run(ctx context.Context, opts generationdomain.Options) (*generationdomain.RunSummary, error) {
	f.opts = append(f.opts, opts)
	if f.err != nil {
		return nil, f.err
	}
	return &generationdomain.RunSummary{}, nil
}

type testServer struct {
	engine     *gin.Engine
	authz      authorization.Service
	invoices   *fakeInvoiceService
	wallets    *fakeWalletService
	generation *fakeGenerationService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ts := &testServer{
		engine:     NewEngine(zap.NewNop()),
		authz:      authztest.NewService(t),
		invoices:   &fakeInvoiceService{},
		wallets:    &fakeWalletService{},
		generation: &fakeGenerationService{},
	}

	NewServer(ServerParams{
		Gin:           ts.engine,
		Cfg:           config.Config{EstateName: "Palm Court"},
		Log:           zap.NewNop(),
		AuthzSvc:      ts.authz,
		InvoiceSvc:    ts.invoices,
		WalletSvc:     ts.wallets,
		GenerationSvc: ts.generation,
		BillingCfg: config.NewStaticBillingConfigHolder(config.BillingConfig{
			DueWindowDays:    30,
			BillVacantHouses: false,
			TargetMonth:      "2026-01",
		}),
	})
	return ts
}

func (ts *testServer) grant(t *testing.T, userID, role string) {
	t.Helper()
	authztest.As(t, ts.authz, userID, role)
}

func (ts *testServer) do(method, path, actor string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != "" {
		req.Header.Set(HeaderActor, actor)
	}

	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestActorHeader(t *testing.T) {
	ts := newTestServer(t)
	ts.grant(t, "7", authorization.RoleResident)
	ts.invoices.detail = &invoicedomain.InvoiceDetail{
		Invoice: invoicedomain.Invoice{InvoiceNumber: "INV-202601-A12"},
	}

	t.Run("missing", func(t *testing.T) {
		rec := ts.do(http.MethodGet, "/api/invoices/1", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed", func(t *testing.T) {
		rec := ts.do(http.MethodGet, "/api/invoices/1", "user:", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "unauthorized", decodeError(t, rec).Type)
	})

	t.Run("role without permission", func(t *testing.T) {
		ts.grant(t, "8", authorization.RoleResident)
		rec := ts.do(http.MethodGet, "/api/audit-logs", "user:8", nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("granted", func(t *testing.T) {
		rec := ts.do(http.MethodGet, "/api/invoices/1", "user:7", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "INV-202601-A12")
	})
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		status   int
		errType  string
		message  string
		hasField bool
	}{
		{"not found", invoicedomain.ErrInvoiceNotFound, http.StatusNotFound, "not_found", "invoice_not_found", false},
		{"wrapped not found", fmt.Errorf("load: %w", invoicedomain.ErrInvoiceNotFound), http.StatusNotFound, "not_found", "invoice_not_found", false},
		{"domain rule", invoicedomain.ErrLateFeeAlreadyApplied, http.StatusConflict, "conflict", "late_fee_already_applied", false},
		{"validation", invoicedomain.ErrInvalidAmount, http.StatusBadRequest, "validation_error", "validation error", true},
		{"unexpected", fmt.Errorf("disk on fire"), http.StatusInternalServerError, "internal_error", "internal server error", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.grant(t, "1", authorization.RoleFinance)
			ts.invoices.err = tc.err

			rec := ts.do(http.MethodGet, "/api/invoices/5", "user:1", nil)
			require.Equal(t, tc.status, rec.Code)

			payload := decodeError(t, rec)
			assert.Equal(t, tc.errType, payload.Type)
			assert.Equal(t, tc.message, payload.Message)
			assert.Equal(t, tc.hasField, len(payload.Errors) > 0)
		})
	}
}

func TestInvalidPathID(t *testing.T) {
	ts := newTestServer(t)
	ts.grant(t, "1", authorization.RoleFinance)

	rec := ts.do(http.MethodGet, "/api/invoices/abc", "user:1", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	payload := decodeError(t, rec)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "invalid_id", payload.Errors[0].Code)
}

func TestCreditWallet(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/residents/42/wallet/credit", "user:1", map[string]any{
		"amount":      "5000",
		"description": " top up ",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	require.Len(t, ts.wallets.posted, 1)
	posted := ts.wallets.posted[0]
	assert.Equal(t, snowflake.ID(42), posted.ResidentID)
	assert.True(t, posted.Amount.Equal(decimal.NewFromInt(5000)))
	assert.Equal(t, "top up", posted.Description)
}

func TestRunGeneration(t *testing.T) {
	t.Run("defaults from billing config", func(t *testing.T) {
		ts := newTestServer(t)

		rec := ts.do(http.MethodPost, "/api/generation-runs", "system", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		require.Len(t, ts.generation.opts, 1)
		opts := ts.generation.opts[0]
		assert.Equal(t, generationdomain.TriggerAPI, opts.TriggerType)
		assert.Equal(t, "2026-01", opts.Target.Format("2006-01"))
		assert.Equal(t, 30, opts.DueWindowDays)
		assert.False(t, opts.BillVacantHouses)
	})

	t.Run("overrides", func(t *testing.T) {
		ts := newTestServer(t)

		rec := ts.do(http.MethodPost, "/api/generation-runs", "system", map[string]any{
			"target_month":       "2026-03",
			"bill_vacant_houses": true,
			"due_window_days":    14,
		})
		require.Equal(t, http.StatusOK, rec.Code)

		opts := ts.generation.opts[0]
		assert.Equal(t, "2026-03", opts.Target.Format("2006-01"))
		assert.Equal(t, 14, opts.DueWindowDays)
		assert.True(t, opts.BillVacantHouses)
	})

	t.Run("bad month", func(t *testing.T) {
		ts := newTestServer(t)

		rec := ts.do(http.MethodPost, "/api/generation-runs", "system", map[string]any{
			"target_month": "March",
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, ts.generation.opts)
	})

	t.Run("run in progress", func(t *testing.T) {
		ts := newTestServer(t)
		ts.generation.err = generationdomain.ErrRunInProgress

		rec := ts.do(http.MethodPost, "/api/generation-runs", "system", nil)
		require.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "generation_run_in_progress", decodeError(t, rec).Message)
	})
}
