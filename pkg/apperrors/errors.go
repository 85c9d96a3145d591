package apperrors

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrConfiguration    = errors.New("invalid workflow configuration")
	ErrTransport        = errors.New("transport failure")
	ErrInvalidRange     = errors.New("invalid time range")
	ErrInsufficientData = errors.New("insufficient data for evaluation")
	ErrAccessDenied     = errors.New("access denied")
)
