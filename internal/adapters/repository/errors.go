package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrInvalidFilter = errors.New("invalid record filter")
	ErrStore         = errors.New("metrics store failure")
	ErrClosed        = errors.New("metrics store closed")
)
