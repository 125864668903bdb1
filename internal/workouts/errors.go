package workouts

import "errors"

var (
	ErrValidation            = errors.New("validation error")
	ErrInvalidDateFormat     = errors.New("invalid date format")
	ErrDuplicateKey          = errors.New("workout already exists")
	ErrEnrichmentUnavailable = errors.New("enrichment unavailable")
	ErrStoreUnavailable      = errors.New("store unavailable")
	ErrUnknownTimeframe      = errors.New("unknown timeframe")
	ErrUnknownMetric         = errors.New("unknown metric")
)
