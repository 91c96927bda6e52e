package handler

import "github.com/escrowhub/backend/internal/interfaces/http/dto"

// Envelope types below exist for the OpenAPI annotations. Handlers write
// dto.Response directly.

// APIResponse is the success envelope around a single resource
type APIResponse[T any] struct {
	Success bool `json:"success" example:"true"`
	Data    T    `json:"data"`
}

// PagedResponse is the success envelope of list endpoints
type PagedResponse[T any] struct {
	Success bool     `json:"success" example:"true"`
	Data    []T      `json:"data"`
	Meta    dto.Meta `json:"meta"`
}

// ErrorResponse is the failure envelope. Error.Code carries the domain code,
// e.g. InsufficientBalance or CONCURRENCY_CONFLICT.
type ErrorResponse struct {
	Success bool           `json:"success" example:"false"`
	Error   *dto.ErrorInfo `json:"error"`
}
