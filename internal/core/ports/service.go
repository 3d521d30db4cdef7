package ports

import (
	"context"

	"github.com/IANDYI/health-markers-service/internal/core/domain"
	"github.com/google/uuid"
)

// PredictionService defines the business logic interface for prediction operations
type PredictionService interface {
	// Predict derives features from the raw values, runs the classifier and
	// resolves the recommendation for its output
	Predict(ctx context.Context, req PredictRequest) (*domain.Prediction, error)

	// GetPrediction retrieves a stored prediction
	// Enforces ownership: ADMIN can access any, other users only their own
	GetPrediction(ctx context.Context, predictionID uuid.UUID, userID string, isAdmin bool) (*domain.Prediction, error)

	// ListPredictions retrieves stored predictions
	// ADMIN: all predictions, other users: only their own
	// Optional filters: category, limit (max results)
	ListPredictions(ctx context.Context, userID string, isAdmin bool, category *string, limit *int) ([]*domain.Prediction, error)

	// Recommendations returns the static recommendation table
	Recommendations() map[domain.Category]domain.RecommendationRecord
}

// PredictRequest represents the input of a single prediction
type PredictRequest struct {
	Values      map[string]float64 // raw measurements keyed by (case-insensitive) name
	RequestedBy string             // caller identity
	Source      string             // domain.SourceHTTP or domain.SourceAMQP
}
