package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	approvaldomain "github.com/smallbiznis/estatebill/internal/approval/domain"
	auditdomain "github.com/smallbiznis/estatebill/internal/audit/domain"
	"github.com/smallbiznis/estatebill/internal/authorization"
	billingprofiledomain "github.com/smallbiznis/estatebill/internal/billingprofile/domain"
	"github.com/smallbiznis/estatebill/internal/clearance"
	"github.com/smallbiznis/estatebill/internal/eligibility"
	estatedomain "github.com/smallbiznis/estatebill/internal/estate/domain"
	generationdomain "github.com/smallbiznis/estatebill/internal/generation/domain"
	invoicedomain "github.com/smallbiznis/estatebill/internal/invoice/domain"
	waiverdomain "github.com/smallbiznis/estatebill/internal/waiver/domain"
	walletdomain "github.com/smallbiznis/estatebill/internal/wallet/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func classifyErrorForLog(err error) string {
	_, payload := mapError(err)
	return payload.Type
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if target := matchAny(err, validationErrors); target != nil {
		code := target.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authorization.ErrInvalidActor):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: notFoundMessage(err),
		}
	case errors.Is(err, ErrConflict):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case isDomainRuleError(err):
		// the sentinel text is the stable code clients branch on
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: domainCode(err),
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

var validationErrors = []error{
	ErrInvalidRequest,
	invoicedomain.ErrInvalidInvoiceID,
	invoicedomain.ErrInvalidAmount,
	invoicedomain.ErrInvalidMetadata,
	invoicedomain.ErrInvalidResident,
	invoicedomain.ErrInvalidPageToken,
	invoicedomain.ErrInvalidCorrectionType,
	invoicedomain.ErrInvalidCorrectionItems,
	waiverdomain.ErrInvalidWaiverID,
	waiverdomain.ErrInvalidWaiverType,
	waiverdomain.ErrInvalidWaiverAmount,
	walletdomain.ErrInvalidResident,
	walletdomain.ErrInvalidAmount,
	walletdomain.ErrInvalidPageToken,
	approvaldomain.ErrInvalidRequest,
	approvaldomain.ErrInvalidRequestID,
	approvaldomain.ErrUnsupportedKind,
	billingprofiledomain.ErrInvalidProfileID,
	billingprofiledomain.ErrInvalidEffectiveDate,
	billingprofiledomain.ErrInvalidApprovedChange,
	generationdomain.ErrInvalidTrigger,
	generationdomain.ErrInvalidTarget,
	eligibility.ErrInvalidDueWindow,
	auditdomain.ErrInvalidPageToken,
	auditdomain.ErrInvalidAction,
	clearance.ErrInvalidResident,
}

var notFoundErrors = []error{
	ErrNotFound,
	invoicedomain.ErrInvoiceNotFound,
	waiverdomain.ErrWaiverNotFound,
	approvaldomain.ErrRequestNotFound,
	billingprofiledomain.ErrProfileNotFound,
	estatedomain.ErrHouseNotFound,
	estatedomain.ErrResidentNotFound,
	gorm.ErrRecordNotFound,
}

var domainRuleErrors = []error{
	invoicedomain.ErrInvoiceVoid,
	invoicedomain.ErrInvoiceAlreadyPaid,
	invoicedomain.ErrInvoiceNotPayable,
	invoicedomain.ErrInvoiceHasPayments,
	invoicedomain.ErrOverpayment,
	invoicedomain.ErrCorrectionOfVoidInvoice,
	invoicedomain.ErrConcurrentCorrection,
	invoicedomain.ErrLateFeeAlreadyApplied,
	invoicedomain.ErrLateFeeNotAllowed,
	waiverdomain.ErrAlreadyProcessed,
	waiverdomain.ErrDuplicatePendingWaiver,
	waiverdomain.ErrNoLateFeeApplied,
	walletdomain.ErrInvoiceResidentMismatch,
	approvaldomain.ErrAlreadyDecided,
	approvaldomain.ErrNotApproved,
	approvaldomain.ErrAlreadyApplied,
	approvaldomain.ErrPendingRequest,
	generationdomain.ErrRunInProgress,
}

func isNotFoundError(err error) bool {
	return matchAny(err, notFoundErrors) != nil
}

func isDomainRuleError(err error) bool {
	return matchAny(err, domainRuleErrors) != nil
}

func matchAny(err error, targets []error) error {
	for _, target := range targets {
		if errors.Is(err, target) {
			return target
		}
	}
	return nil
}

func domainCode(err error) string {
	if target := matchAny(err, domainRuleErrors); target != nil {
		return target.Error()
	}
	return "conflict"
}

func notFoundMessage(err error) string {
	target := matchAny(err, notFoundErrors)
	if target == nil || target == ErrNotFound || target == gorm.ErrRecordNotFound {
		return "not found"
	}
	return target.Error()
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}
