package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/IANDYI/health-markers-service/internal/core/domain"
	"github.com/IANDYI/health-markers-service/internal/core/ports"
	"github.com/sony/gobreaker"
)

// RemoteClassifier delegates inference to a model server over HTTP.
// Calls go through a circuit breaker so a failing server is not hammered.
type RemoteClassifier struct {
	baseURL string
	client  *http.Client
	cb      *gobreaker.CircuitBreaker
}

type remotePredictRequest struct {
	Features domain.FeatureVector `json:"features"`
}

type remotePredictResponse struct {
	Prediction *int `json:"prediction"`
}

// NewRemoteClassifier creates a classifier that POSTs to {baseURL}/predict
func NewRemoteClassifier(baseURL string, timeout time.Duration, settings gobreaker.Settings) *RemoteClassifier {
	if settings.Name == "" {
		settings.Name = "classifier"
	}
	if settings.ReadyToTrip == nil {
		settings.ReadyToTrip = func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		}
	}

	return &RemoteClassifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		cb:      gobreaker.NewCircuitBreaker(settings),
	}
}

// Predict implements ports.Classifier
func (c *RemoteClassifier) Predict(ctx context.Context, features domain.FeatureVector) (domain.CategoryCode, error) {
	// Input errors are the caller's fault and must not trip the breaker
	for name, value := range features {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return domain.NoPrediction, fmt.Errorf("%w: %s=%v", domain.ErrNonFiniteFeature, name, value)
		}
	}

	body, err := json.Marshal(remotePredictRequest{Features: features})
	if err != nil {
		return domain.NoPrediction, fmt.Errorf("failed to marshal features: %w", err)
	}

	result, err := c.cb.Execute(func() (interface{}, error) {
		return c.post(ctx, body)
	})
	if err != nil {
		return domain.NoPrediction, err
	}

	return result.(domain.CategoryCode), nil
}

func (c *RemoteClassifier) post(ctx context.Context, body []byte) (domain.CategoryCode, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return domain.NoPrediction, fmt.Errorf("failed to build classifier request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.NoPrediction, fmt.Errorf("classifier request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.NoPrediction, fmt.Errorf("classifier returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out remotePredictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.NoPrediction, fmt.Errorf("failed to decode classifier response: %w", err)
	}
	// An absent result resolves to Unknown downstream
	if out.Prediction == nil {
		return domain.NoPrediction, nil
	}

	return domain.CategoryCode(*out.Prediction), nil
}

// Ready implements ports.Classifier
func (c *RemoteClassifier) Ready(ctx context.Context) error {
	if c.cb.State() == gobreaker.StateOpen {
		return fmt.Errorf("classifier circuit breaker is open")
	}
	return nil
}

// Ensure RemoteClassifier implements the interface
var _ ports.Classifier = (*RemoteClassifier)(nil)
