package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/vetbill/internal/audit/domain"
	"github.com/smallbiznis/vetbill/internal/authorization"
	clientdomain "github.com/smallbiznis/vetbill/internal/client/domain"
	inventorydomain "github.com/smallbiznis/vetbill/internal/inventory/domain"
	invoicedomain "github.com/smallbiznis/vetbill/internal/invoice/domain"
	"github.com/smallbiznis/vetbill/internal/providers/pdf"
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
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
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

// bindError keeps domain validation failures raised while decoding the body,
// such as sub-cent amounts, and reports anything else as a bad request.
func bindError(err error) error {
	if isValidationError(err) {
		return err
	}
	return invalidRequestError()
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

// mapError turns domain errors into a status and payload. Lifecycle errors
// keep their kind as the payload type so clients can branch on it.
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

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authorization.ErrInvalidRole):
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
	case isValidationError(err):
		field, code := validationErrorField(err)
		return http.StatusBadRequest, errorPayload{
			Type:    string(invoicedomain.KindValidation),
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   field,
					Code:    code,
					Message: "invalid value",
				},
			},
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    string(invoicedomain.KindNotFound),
			Message: "not found",
		}
	case errors.Is(err, clientdomain.ErrAlreadyExists),
		errors.Is(err, inventorydomain.ErrItemAlreadyExists):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	}

	switch kind := invoicedomain.KindOf(err); kind {
	case invoicedomain.KindInvalidState,
		invoicedomain.KindOverPayment,
		invoicedomain.KindOverRefund,
		invoicedomain.KindAlreadyFiscalized,
		invoicedomain.KindInsufficientStock,
		invoicedomain.KindConflict:
		return http.StatusConflict, errorPayload{
			Type:    string(kind),
			Message: err.Error(),
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog reports the payload type and code without the message body.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError {
		return payload.Type, "internal_error"
	}
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	return payload.Type, http.StatusText(status)
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

var validationErrorFields = []struct {
	err   error
	field string
}{
	{ErrInvalidRequest, "request"},
	{invoicedomain.ErrInvalidInvoiceID, "id"},
	{invoicedomain.ErrInvalidLineID, "line_id"},
	{invoicedomain.ErrInvalidClientID, "client_id"},
	{invoicedomain.ErrEmptyLines, "lines"},
	{invoicedomain.ErrLastLine, "lines"},
	{invoicedomain.ErrInvalidDescription, "description"},
	{invoicedomain.ErrInvalidQuantity, "quantity"},
	{invoicedomain.ErrInvalidUnitPrice, "unit_price"},
	{invoicedomain.ErrInvalidVATRate, "vat_rate"},
	{invoicedomain.ErrInvalidItemID, "item_id"},
	{invoicedomain.ErrInvalidAmount, "amount"},
	{invoicedomain.ErrInvalidPaymentMethod, "method"},
	{invoicedomain.ErrInvalidReason, "reason"},
	{invoicedomain.ErrInvalidStatus, "status"},
	{invoicedomain.ErrInvalidPageToken, "page_token"},
	{clientdomain.ErrInvalidName, "name"},
	{clientdomain.ErrInvalidEmail, "email"},
	{clientdomain.ErrInvalidID, "id"},
	{inventorydomain.ErrInvalidItemID, "id"},
	{inventorydomain.ErrInvalidName, "name"},
	{inventorydomain.ErrInvalidQuantity, "quantity"},
	{auditdomain.ErrInvalidPageToken, "page_token"},
	{auditdomain.ErrInvalidTimeRange, "start_at"},
}

func isValidationError(err error) bool {
	field, _ := validationErrorField(err)
	return field != ""
}

// validationErrorField returns the request field and the sentinel code for a
// known validation error, even when it arrives wrapped.
func validationErrorField(err error) (string, string) {
	for _, candidate := range validationErrorFields {
		if errors.Is(err, candidate.err) {
			return candidate.field, candidate.err.Error()
		}
	}
	return "", ""
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, clientdomain.ErrNotFound),
		errors.Is(err, pdf.ErrReceiptMissing),
		invoicedomain.KindOf(err) == invoicedomain.KindNotFound:
		return true
	default:
		return false
	}
}
