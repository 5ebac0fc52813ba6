package apperrors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	CodeInternalError        ErrorCode = "INTERNAL_ERROR"
	CodeDatabaseError        ErrorCode = "DATABASE_ERROR"
	CodeExternalServiceError ErrorCode = "EXTERNAL_SERVICE_ERROR"

	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeAlreadyExists    ErrorCode = "ALREADY_EXISTS"
	CodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	CodeConflict         ErrorCode = "CONFLICT"
	CodeLimitExceeded    ErrorCode = "LIMIT_EXCEEDED"
	CodeInvalidStatus    ErrorCode = "INVALID_STATUS"
	CodeProcessingFailed ErrorCode = "PROCESSING_FAILED"
	CodePaymentFailed    ErrorCode = "PAYMENT_VERIFICATION_FAILED"

	CodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	CodeForbidden          ErrorCode = "FORBIDDEN"
	CodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	CodeInvalidToken       ErrorCode = "INVALID_TOKEN"
)

// AppError is an error that knows how it should be reported to a client.
type AppError struct {
	Code     ErrorCode              `json:"code"`
	Domain   string                 `json:"domain"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`
	Err      error                  `json:"-"`
	HTTPCode int                    `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s:%s] %s (%v)", e.Domain, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Domain, e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches on code and domain so sentinel values work with errors.Is.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !stderrors.As(target, &t) {
		return false
	}
	return e.Code == t.Code && e.Domain == t.Domain && e.Message == t.Message
}

func New(code ErrorCode, domain, message string, httpCode int) *AppError {
	return &AppError{
		Code:     code,
		Domain:   domain,
		Message:  message,
		HTTPCode: httpCode,
	}
}

func Wrap(err error, code ErrorCode, domain, message string, httpCode int) *AppError {
	return &AppError{
		Code:     code,
		Domain:   domain,
		Message:  message,
		Err:      err,
		HTTPCode: httpCode,
	}
}

// WithDetails returns a copy so shared sentinels are never mutated.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

func (e *AppError) WithError(err error) *AppError {
	cp := *e
	cp.Err = err
	return &cp
}

func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func InternalError(err error) *AppError {
	return Wrap(err, CodeInternalError, "system", "Internal server error", http.StatusInternalServerError)
}

func DatabaseError(err error) *AppError {
	return Wrap(err, CodeDatabaseError, "database", "Database operation failed", http.StatusInternalServerError)
}

func NotFound(domain, message string) *AppError {
	return New(CodeNotFound, domain, message, http.StatusNotFound)
}

func BadRequest(domain, message string) *AppError {
	return New(CodeValidationFailed, domain, message, http.StatusBadRequest)
}

func Conflict(domain, message string) *AppError {
	return New(CodeConflict, domain, message, http.StatusConflict)
}

// ProcessingFailed hides the underlying library message from clients; the
// operation record keeps it.
func ProcessingFailed(err error) *AppError {
	return Wrap(err, CodeProcessingFailed, "processing", "Processing failed. Please check the file and try again.", http.StatusUnprocessableEntity)
}

// PaymentFailed is never retried automatically; the client offers a retry.
func PaymentFailed(err error, message string) *AppError {
	return Wrap(err, CodePaymentFailed, "payment", message, http.StatusPaymentRequired).
		WithDetails(map[string]interface{}{"action": "retry_payment"})
}

func ExternalService(err error, service string) *AppError {
	return Wrap(err, CodeExternalServiceError, service, "Upstream service unavailable", http.StatusBadGateway)
}

var (
	ErrUnauthorized       = New(CodeUnauthorized, "auth", "Authentication required", http.StatusUnauthorized)
	ErrInvalidCredentials = New(CodeInvalidCredentials, "auth", "Invalid email or password", http.StatusUnauthorized)
	ErrInvalidToken       = New(CodeInvalidToken, "auth", "Session expired. Please log in again.", http.StatusUnauthorized)
	ErrAccountDisabled    = New(CodeForbidden, "auth", "Account is deactivated", http.StatusForbidden)
	ErrEmailTaken         = New(CodeAlreadyExists, "auth", "An account with this email already exists", http.StatusConflict)

	ErrPlanNotFound    = NotFound("plan", "Plan not found")
	ErrPackageNotFound = NotFound("topup", "Top-up package not found")
	ErrPaymentNotFound = NotFound("payment", "Payment not found")
	ErrUserNotFound    = NotFound("user", "User not found")

	ErrNoActiveSubscription = New(CodeInvalidStatus, "subscription", "No active subscription", http.StatusConflict)

	ErrOperationNotFound  = NotFound("operation", "Operation not found")
	ErrOperationFinalized = New(CodeInvalidStatus, "operation", "Operation already finished", http.StatusConflict)
	ErrArtifactMissing    = NotFound("operation", "No downloadable file for this operation")

	ErrSessionNotFound     = NotFound("edit", "Edit session not found")
	ErrSessionInvalidState = New(CodeInvalidStatus, "edit", "Edit session is not in a valid state for this action", http.StatusConflict)

	ErrMixedPriorityUnsupported = New(CodeValidationFailed, "credits", "The mixed credit priority is not available yet", http.StatusBadRequest)
	ErrInvalidPriority          = New(CodeValidationFailed, "credits", "Unknown credit priority", http.StatusBadRequest)
)
