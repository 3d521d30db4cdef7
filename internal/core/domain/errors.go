package domain

import "errors"

var (
	// ErrModelNotLoaded is returned when no trained classifier is available
	ErrModelNotLoaded = errors.New("model not loaded")

	// ErrMissingFeature is returned by a classifier when a feature it was trained on is absent
	ErrMissingFeature = errors.New("missing feature")

	// ErrNonFiniteFeature is returned by a classifier that rejects Inf or NaN inputs
	ErrNonFiniteFeature = errors.New("non-finite feature value")

	ErrPredictionNotFound = errors.New("prediction not found")

	// ErrHistoryUnavailable is returned by history operations when no store is configured
	ErrHistoryUnavailable = errors.New("prediction history unavailable")
)
