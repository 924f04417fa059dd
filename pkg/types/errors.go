package types

import "errors"

// Domain errors for type validation
var (
	// Chunk errors
	ErrEmptyContent      = errors.New("content cannot be empty")
	ErrInvalidSourceType = errors.New("invalid source type")

	// Period errors
	ErrInvalidPeriod = errors.New("period must be formatted as YYYY-MM")
)
