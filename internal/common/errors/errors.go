// Package errors provides standardized error handling for the inquiry
// ingestion pipeline and its BPMN workflow integration.
package errors

import (
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeConfigMissing ErrorCode = "CONFIG_MISSING"

	ErrCodeMailFetchFailed ErrorCode = "MAIL_FETCH_FAILED"
	ErrCodeMailboxEmpty    ErrorCode = "MAILBOX_EMPTY"

	ErrCodeExtractionFailed        ErrorCode = "EXTRACTION_FAILED"
	ErrCodeExtractionSchemaInvalid ErrorCode = "EXTRACTION_SCHEMA_INVALID"

	ErrCodeNoValidLines ErrorCode = "NO_VALID_LINES"

	ErrCodeDatabaseInsertFailed ErrorCode = "DATABASE_INSERT_FAILED"
	ErrCodeStoreLookupFailed    ErrorCode = "STORE_LOOKUP_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}

	if e.ErrorVariables != nil {
		for k, v := range e.ErrorVariables {
			vars[k] = v
		}
	}

	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

// NewConfigMissingError creates a non-retryable configuration error.
// Raised before any network activity when a required credential is absent.
func NewConfigMissingError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeConfigMissing,
		Message:   "Required configuration value is missing",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewMailFetchFailedError creates a retryable mail source error.
func NewMailFetchFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeMailFetchFailed,
		Message:   "Failed to fetch message from mail source",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewMailboxEmptyError creates a non-retryable empty-mailbox error.
func NewMailboxEmptyError(mailbox string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMailboxEmpty,
		Message:   "Mailbox contains no messages",
		Details:   fmt.Sprintf("mailbox: %s", mailbox),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewExtractionFailedError creates a retryable AI extraction error.
func NewExtractionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeExtractionFailed,
		Message:   "AI extraction request failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewExtractionSchemaInvalidError creates a non-retryable shape error for an
// AI response whose top-level keys fall outside customer/delivery/items.
func NewExtractionSchemaInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeExtractionSchemaInvalid,
		Message:   "AI extraction response has an invalid shape",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 4. Helpers
// ==========================

// ToBPMN converts a StandardError into a BPMNError with the given retry count.
func (e *StandardError) ToBPMN(retries int) *BPMNError {
	return &BPMNError{
		Code:      string(e.Code),
		Message:   e.Message,
		Details:   e.Details,
		Retryable: e.Retryable,
		Retries:   retries,
	}
}

// IsCode reports whether err is a StandardError carrying the given code.
func IsCode(err error, code ErrorCode) bool {
	se, ok := err.(*StandardError)
	return ok && se.Code == code
}
