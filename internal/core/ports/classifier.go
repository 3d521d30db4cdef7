package ports

import (
	"context"

	"github.com/IANDYI/health-markers-service/internal/core/domain"
)

// Classifier is the trained model collaborator.
// It consumes features by name and returns a category code; the core never
// inspects how the model works.
type Classifier interface {
	// Predict returns the category code for one feature vector
	// Returns domain.ErrModelNotLoaded if no model is available
	Predict(ctx context.Context, features domain.FeatureVector) (domain.CategoryCode, error)

	// Ready reports whether the classifier can serve predictions
	Ready(ctx context.Context) error
}
