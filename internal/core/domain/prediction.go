package domain

import (
	"time"

	"github.com/google/uuid"
)

// Prediction sources
const (
	SourceHTTP = "http"
	SourceAMQP = "amqp"
)

// Prediction is one completed inference: the raw input, the classifier
// output and the recommendation resolved for it
type Prediction struct {
	ID             uuid.UUID            `json:"id"`
	RequestedBy    string               `json:"requested_by"` // "sub" claim, or "anonymous" when auth is disabled
	Source         string               `json:"source"`       // http or amqp
	Measurement    RawMeasurement       `json:"measurement"`
	Code           CategoryCode         `json:"code"`
	Category       Category             `json:"category"`
	Recommendation RecommendationRecord `json:"recommendation"`
	CreatedAt      time.Time            `json:"created_at"`
}

// NewPrediction resolves code and stamps a new prediction record
func NewPrediction(m RawMeasurement, code CategoryCode, requestedBy, source string) *Prediction {
	category, rec := Resolve(code)
	return &Prediction{
		ID:             uuid.New(),
		RequestedBy:    requestedBy,
		Source:         source,
		Measurement:    m,
		Code:           code,
		Category:       category,
		Recommendation: rec,
		CreatedAt:      time.Now().UTC(),
	}
}

// IsAbnormal reports whether the prediction needs clinician attention.
// Anything other than Fit qualifies, Unknown included.
func (p *Prediction) IsAbnormal() bool {
	return p.Category != CategoryFit
}
