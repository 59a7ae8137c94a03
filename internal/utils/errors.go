package utils

import (
	"context"
	"errors"
	"fmt"

	"github.com/telefile/telefile/internal/models"
)

// TransferError is the structured error surfaced by every pipeline stage.
// The retry orchestrator is the only consumer of the Retryable flag; the
// presentation layer only ever sees the category and message through the
// terminal TransferResult.
type TransferError struct {
	Category  models.ErrorCategory
	Message   string
	Retryable bool
	Err       error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Category, e.Message)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

func NewTransferError(category models.ErrorCategory, message string, retryable bool) *TransferError {
	return &TransferError{
		Category:  category,
		Message:   message,
		Retryable: retryable,
	}
}

// Common constructors

func NewResolutionError(message string, retryable bool) *TransferError {
	return NewTransferError(models.ErrorCategoryResolution, message, retryable)
}

func NewFetchError(err error) *TransferError {
	return &TransferError{
		Category:  models.ErrorCategoryFetch,
		Message:   err.Error(),
		Retryable: true,
		Err:       err,
	}
}

func NewSizeExceededError(observed, limit int64) *TransferError {
	return NewTransferError(
		models.ErrorCategorySizeExceeded,
		fmt.Sprintf("size %s exceeds limit %s", FormatBytes(observed), FormatBytes(limit)),
		false,
	)
}

// NewDeclaredSizeError is the pre-fetch variant: every candidate format was
// excluded by the ceiling before any bytes moved.
func NewDeclaredSizeError(limit int64) *TransferError {
	return NewTransferError(
		models.ErrorCategorySizeExceeded,
		fmt.Sprintf("all available formats exceed the %s limit", FormatBytes(limit)),
		false,
	)
}

func NewEmptyArtifactError(name string) *TransferError {
	return NewTransferError(
		models.ErrorCategoryEmptyArtifact,
		fmt.Sprintf("fetched file %s is empty", name),
		true,
	)
}

func NewPublishError(message string, retryable bool) *TransferError {
	return NewTransferError(models.ErrorCategoryPublish, message, retryable)
}

func NewCancelledError() *TransferError {
	return NewTransferError(models.ErrorCategoryCancelled, "transfer cancelled", false)
}

// AsTransferError normalizes an arbitrary error into a TransferError,
// defaulting unknown errors to a retryable fetch failure.
func AsTransferError(err error) *TransferError {
	if err == nil {
		return nil
	}
	var te *TransferError
	if errors.As(err, &te) {
		return te
	}
	if errors.Is(err, context.Canceled) {
		return NewCancelledError()
	}
	return NewFetchError(err)
}

// CategoryOf returns the error category, or empty for nil.
func CategoryOf(err error) models.ErrorCategory {
	if err == nil {
		return ""
	}
	return AsTransferError(err).Category
}
