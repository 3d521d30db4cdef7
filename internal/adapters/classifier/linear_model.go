package classifier

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/IANDYI/health-markers-service/internal/core/domain"
)

// LinearModel is a multinomial linear classifier exported from training.
// Each class scores intercept + sum(weight * feature); the highest score wins.
type LinearModel struct {
	Name     string       `json:"name"`
	Version  string       `json:"version"`
	Features []string     `json:"features"`
	Classes  []ClassScore `json:"classes"`
}

// ClassScore holds the weights for one category code
type ClassScore struct {
	Code         domain.CategoryCode `json:"code"`
	Label        string              `json:"label,omitempty"`
	Intercept    float64             `json:"intercept"`
	Coefficients map[string]float64  `json:"coefficients"`
}

// LoadLinearModel reads and validates a model artifact
func LoadLinearModel(path string) (*LinearModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}

	var model LinearModel
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model: %w", err)
	}

	if err := model.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model %s: %w", path, err)
	}

	return &model, nil
}

// Validate checks the model is usable for inference
func (m *LinearModel) Validate() error {
	if len(m.Classes) == 0 {
		return fmt.Errorf("model has no classes")
	}

	declared := make(map[string]bool, len(m.Features))
	for _, name := range m.Features {
		if declared[name] {
			return fmt.Errorf("duplicate feature %q", name)
		}
		declared[name] = true
	}

	seen := make(map[domain.CategoryCode]bool, len(m.Classes))
	for _, class := range m.Classes {
		if seen[class.Code] {
			return fmt.Errorf("duplicate class code %d", class.Code)
		}
		seen[class.Code] = true

		for name := range class.Coefficients {
			if !declared[name] {
				return fmt.Errorf("class %d uses undeclared feature %q", class.Code, name)
			}
		}
	}

	return nil
}

// Predict returns the arg-max class code for the feature vector.
// Every declared feature must be present and finite.
func (m *LinearModel) Predict(features domain.FeatureVector) (domain.CategoryCode, error) {
	for _, name := range m.Features {
		value, ok := features[name]
		if !ok {
			return domain.NoPrediction, fmt.Errorf("%w: %s", domain.ErrMissingFeature, name)
		}
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return domain.NoPrediction, fmt.Errorf("%w: %s=%v", domain.ErrNonFiniteFeature, name, value)
		}
	}

	best := domain.NoPrediction
	bestScore := math.Inf(-1)
	for _, class := range m.Classes {
		score := class.Intercept
		for _, name := range m.Features {
			score += class.Coefficients[name] * features[name]
		}
		// strict comparison keeps the first class on ties
		if score > bestScore {
			best = class.Code
			bestScore = score
		}
	}

	return best, nil
}
