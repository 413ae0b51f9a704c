package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	MetaLateFeeApplied   = "late_fee_applied"
	MetaLateFeeAmount    = "late_fee_amount"
	MetaLateFeeAppliedAt = "late_fee_applied_at"
	MetaLateFeeWaived    = "late_fee_waived"
	MetaWaivedAmount     = "waived_amount"
	MetaWaivedAt         = "waived_at"
	MetaWaiverType       = "waiver_type"
	MetaLateFeeRemaining = "late_fee_remaining"
	MetaVoidReason       = "void_reason"
	MetaCorrectionReason = "correction_reason"
)

// LateFee is the typed view of the late fee keys held in invoice metadata.
type LateFee struct {
	Applied bool
	Amount  decimal.Decimal
	// Waived is the total removed by approved waivers.
	Waived decimal.Decimal
}

// Outstanding is the part of the late fee not yet waived.
func (f LateFee) Outstanding() decimal.Decimal {
	if !f.Applied {
		return decimal.Zero
	}
	remaining := f.Amount.Sub(f.Waived)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// LateFee reads and validates the late fee metadata.
func (i Invoice) LateFee() (LateFee, error) {
	if len(i.Metadata) == 0 {
		return LateFee{}, nil
	}

	var fee LateFee
	if raw, ok := i.Metadata[MetaLateFeeApplied]; ok && raw != nil {
		applied, ok := raw.(bool)
		if !ok {
			return LateFee{}, fmt.Errorf("%w: %s", ErrInvalidMetadata, MetaLateFeeApplied)
		}
		fee.Applied = applied
	}
	if raw, ok := i.Metadata[MetaLateFeeAmount]; ok && raw != nil {
		amount, err := decimalFromAny(raw)
		if err != nil {
			return LateFee{}, fmt.Errorf("%w: %s", ErrInvalidMetadata, MetaLateFeeAmount)
		}
		fee.Amount = amount
	}
	if raw, ok := i.Metadata[MetaWaivedAmount]; ok && raw != nil {
		waived, err := decimalFromAny(raw)
		if err != nil {
			return LateFee{}, fmt.Errorf("%w: %s", ErrInvalidMetadata, MetaWaivedAmount)
		}
		fee.Waived = waived
	}
	return fee, nil
}

// WithMetadata returns a copy of the invoice metadata with values merged in.
func (i Invoice) WithMetadata(values map[string]any) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for key, value := range i.Metadata {
		out[key] = value
	}
	for key, value := range values {
		if strings.TrimSpace(key) == "" {
			continue
		}
		out[key] = value
	}
	return out
}

// FormatTime is the metadata encoding for timestamps.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func decimalFromAny(raw any) (decimal.Decimal, error) {
	switch v := raw.(type) {
	case string:
		return decimal.NewFromString(strings.TrimSpace(v))
	case float64:
		return decimal.NewFromFloat(v), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case decimal.Decimal:
		return v, nil
	default:
		return decimal.Zero, fmt.Errorf("unsupported type %T", raw)
	}
}
