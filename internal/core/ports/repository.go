package ports

import (
	"context"

	"github.com/IANDYI/health-markers-service/internal/core/domain"
	"github.com/google/uuid"
)

// PredictionRepository defines the interface for prediction history persistence
type PredictionRepository interface {
	// SavePrediction stores a completed prediction
	SavePrediction(ctx context.Context, prediction *domain.Prediction) error

	// GetPredictionByID retrieves a prediction
	// Returns domain.ErrPredictionNotFound if it doesn't exist
	GetPredictionByID(ctx context.Context, predictionID uuid.UUID) (*domain.Prediction, error)

	// ListPredictions retrieves predictions, newest first:
	// all=true: every prediction
	// all=false: only predictions where requested_by matches
	// Optional filters: category, limit (max results)
	ListPredictions(ctx context.Context, requestedBy string, all bool, category *string, limit *int) ([]*domain.Prediction, error)
}

// PredictionPublisher defines the interface for publishing prediction events to RabbitMQ
type PredictionPublisher interface {
	PublishPrediction(ctx context.Context, prediction *domain.Prediction) error
}

// PredictionNotifier pushes abnormal predictions to connected clinicians
type PredictionNotifier interface {
	NotifyPrediction(prediction *domain.Prediction)
}
