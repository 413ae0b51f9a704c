package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrRunInProgress  = errors.New("generation_run_in_progress")
	ErrInvalidTrigger = errors.New("invalid_trigger_type")
	ErrInvalidTarget  = errors.New("invalid_target_period")
)

func (t TriggerType) Valid() bool {
	switch t {
	case TriggerManual, TriggerScheduled, TriggerAPI:
		return true
	}
	return false
}

// Options is the policy snapshot for one run. Callers read it from
// configuration once; the run never consults global settings.
type Options struct {
	Target           time.Time
	TriggerType      TriggerType
	BillVacantHouses bool
	DueWindowDays    int
}

// GeneratedInvoice summarizes one invoice created by a run.
type GeneratedInvoice struct {
	HouseID       string          `json:"house_id"`
	HouseNumber   string          `json:"house_number"`
	InvoiceID     string          `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	ResidentID    string          `json:"resident_id"`
	AmountDue     decimal.Decimal `json:"amount_due"`
}

type RunSummary struct {
	Log       GenerationLog      `json:"log"`
	Generated []GeneratedInvoice `json:"generated"`
}

func (s RunSummary) Skips() []HouseSkip {
	return s.Log.SkipReasons.Data()
}

func (s RunSummary) Errors() []HouseError {
	return s.Log.Errors.Data()
}

type ListLogsRequest struct {
	TargetPeriod string
	Limit        int
}

type Repository interface {
	InsertLog(ctx context.Context, db *gorm.DB, entry *GenerationLog) error
	FindLog(ctx context.Context, db *gorm.DB, id snowflake.ID) (*GenerationLog, error)
	ListLogs(ctx context.Context, db *gorm.DB, req ListLogsRequest) ([]GenerationLog, error)
}

type Service interface {
	Run(ctx context.Context, opts Options) (*RunSummary, error)
	ListLogs(ctx context.Context, req ListLogsRequest) ([]GenerationLog, error)
}
