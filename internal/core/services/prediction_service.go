package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/IANDYI/health-markers-service/internal/core/domain"
	"github.com/IANDYI/health-markers-service/internal/core/ports"
	"github.com/google/uuid"
)

// PredictRequest is imported from ports package
type PredictRequest = ports.PredictRequest

// PredictionService implements the inference pipeline:
// raw values -> derived features -> classifier -> recommendation.
// Repository, publisher and notifier are optional and may be nil.
type PredictionService struct {
	classifier ports.Classifier
	repo       ports.PredictionRepository
	publisher  ports.PredictionPublisher
	notifier   ports.PredictionNotifier
}

// NewPredictionService creates a new prediction service
func NewPredictionService(
	classifier ports.Classifier,
	repo ports.PredictionRepository,
	publisher ports.PredictionPublisher,
	notifier ports.PredictionNotifier,
) *PredictionService {
	return &PredictionService{
		classifier: classifier,
		repo:       repo,
		publisher:  publisher,
		notifier:   notifier,
	}
}

// Predict runs one measurement through the pipeline.
// Only classifier failures are returned as errors; history, event and
// notification failures are logged and never fail the prediction.
func (s *PredictionService) Predict(ctx context.Context, req PredictRequest) (*domain.Prediction, error) {
	if s.classifier == nil {
		return nil, domain.ErrModelNotLoaded
	}

	startTime := time.Now()

	measurement := domain.NewRawMeasurement(req.Values)
	features := domain.Derive(measurement)

	code, err := s.classifier.Predict(ctx, features.Vector())
	if err != nil {
		if errors.Is(err, domain.ErrModelNotLoaded) {
			return nil, err
		}
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	source := req.Source
	if source == "" {
		source = domain.SourceHTTP
	}
	prediction := domain.NewPrediction(measurement, code, req.RequestedBy, source)

	if s.repo != nil {
		if err := s.repo.SavePrediction(ctx, prediction); err != nil {
			log.Printf("Failed to store prediction %s: %v", prediction.ID, err)
		}
	}

	s.logPrediction(prediction, features, "predicted", time.Since(startTime))

	// Publish asynchronously so a slow broker never delays the response
	if s.publisher != nil {
		go func() {
			bgCtx := context.Background()
			if err := s.publisher.PublishPrediction(bgCtx, prediction); err != nil {
				log.Printf("Failed to publish prediction event %s: %v", prediction.ID, err)
			}
		}()
	}

	if s.notifier != nil && prediction.IsAbnormal() {
		s.notifier.NotifyPrediction(prediction)
	}

	return prediction, nil
}

// GetPrediction retrieves a stored prediction
// Enforces ownership: ADMIN can access any, other users only their own
func (s *PredictionService) GetPrediction(ctx context.Context, predictionID uuid.UUID, userID string, isAdmin bool) (*domain.Prediction, error) {
	if s.repo == nil {
		return nil, domain.ErrHistoryUnavailable
	}

	prediction, err := s.repo.GetPredictionByID(ctx, predictionID)
	if err != nil {
		if errors.Is(err, domain.ErrPredictionNotFound) {
			return nil, domain.ErrPredictionNotFound
		}
		return nil, fmt.Errorf("failed to get prediction: %w", err)
	}
	if prediction == nil {
		return nil, domain.ErrPredictionNotFound
	}

	// Don't leak ownership info - return generic not found
	if !isAdmin && prediction.RequestedBy != userID {
		return nil, domain.ErrPredictionNotFound
	}

	return prediction, nil
}

// ListPredictions retrieves stored predictions
// ADMIN: all predictions, other users: only their own
func (s *PredictionService) ListPredictions(ctx context.Context, userID string, isAdmin bool, category *string, limit *int) ([]*domain.Prediction, error) {
	if s.repo == nil {
		return nil, domain.ErrHistoryUnavailable
	}

	if category != nil && !domain.IsValidCategory(*category) {
		return nil, fmt.Errorf("invalid category filter: %s", *category)
	}

	if limit != nil && *limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than 0")
	}

	predictions, err := s.repo.ListPredictions(ctx, userID, isAdmin, category, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list predictions: %w", err)
	}

	return predictions, nil
}

// Recommendations returns the static recommendation table
func (s *PredictionService) Recommendations() map[domain.Category]domain.RecommendationRecord {
	return domain.Recommendations()
}

// logPrediction logs structured JSON for prediction events
func (s *PredictionService) logPrediction(p *domain.Prediction, f domain.ExtendedFeatureSet, event string, elapsed time.Duration) {
	logEntry := map[string]interface{}{
		"event":             event,
		"prediction_id":     p.ID.String(),
		"source":            p.Source,
		"code":              int(p.Code),
		"category":          string(p.Category),
		"hypertension_flag": f.HypertensionFlag,
		"anaemia_flag":      f.AnaemiaFlag,
		"microcytosis_flag": f.MicrocytosisFlag,
		"duration_ms":       elapsed.Milliseconds(),
		"created_at":        p.CreatedAt.Format(time.RFC3339),
	}

	if p.RequestedBy != "" {
		logEntry["requested_by"] = p.RequestedBy
	}

	jsonBytes, err := json.Marshal(logEntry)
	if err != nil {
		log.Printf("Failed to marshal prediction log entry: %v", err)
		return
	}

	log.Printf("%s", string(jsonBytes))
}

// Ensure PredictionService implements the interface
var _ ports.PredictionService = (*PredictionService)(nil)
