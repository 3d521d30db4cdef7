package classifier_test

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/IANDYI/health-markers-service/internal/adapters/classifier"
	"github.com/IANDYI/health-markers-service/internal/core/domain"
	"github.com/IANDYI/health-markers-service/internal/core/ports"
	"github.com/IANDYI/health-markers-service/internal/core/services"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoteClassifier_Predict(t *testing.T) {
	var received map[string]map[string]float64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/predict", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Write([]byte(`{"prediction": 3}`))
	}))
	defer server.Close()

	c := classifier.NewRemoteClassifier(server.URL+"/", time.Second, gobreaker.Settings{})

	code, err := c.Predict(context.Background(), domain.FeatureVector{"hba1c": 9.1, "MAP": 96})
	require.NoError(t, err)
	assert.Equal(t, domain.CodeDiabetes, code)
	assert.Equal(t, 9.1, received["features"]["hba1c"])
	assert.Equal(t, 96.0, received["features"]["MAP"])
	assert.NoError(t, c.Ready(context.Background()))
}

func TestRemoteClassifier_NonFiniteFeatureIsNotSent(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	c := classifier.NewRemoteClassifier(server.URL, time.Second, gobreaker.Settings{})

	_, err := c.Predict(context.Background(), domain.FeatureVector{"ldl_hdl_ratio": math.Inf(1)})
	assert.ErrorIs(t, err, domain.ErrNonFiniteFeature)
	assert.False(t, called)
}

func TestRemoteClassifier_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model exploded", http.StatusInternalServerError)
	}))
	defer server.Close()

	c := classifier.NewRemoteClassifier(server.URL, time.Second, gobreaker.Settings{})

	code, err := c.Predict(context.Background(), domain.FeatureVector{"ldl": 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.Contains(t, err.Error(), "model exploded")
	assert.Equal(t, domain.NoPrediction, code)
}

func TestRemoteClassifier_MissingPrediction(t *testing.T) {
	bodies := []string{`{"label": "Fit"}`, `{"prediction": null}`}

	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			}))
			defer server.Close()

			c := classifier.NewRemoteClassifier(server.URL, time.Second, gobreaker.Settings{})

			code, err := c.Predict(context.Background(), domain.FeatureVector{"ldl": 1})
			require.NoError(t, err)
			assert.Equal(t, domain.NoPrediction, code)
		})
	}
}

func TestRemoteClassifier_NullPredictionServedAsUnknown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"prediction": null}`))
	}))
	defer server.Close()

	c := classifier.NewRemoteClassifier(server.URL, time.Second, gobreaker.Settings{})
	svc := services.NewPredictionService(c, nil, nil, nil)

	result, err := svc.Predict(context.Background(), ports.PredictRequest{
		Values: map[string]float64{"ldl": 129.2, "hdl": 52.11, "hba1c": 4.93, "mcv": 61.54},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryUnknown, result.Category)
	assert.Equal(t, "غير معروف", result.Recommendation.Title)
}

func TestRemoteClassifier_BreakerOpensAfterFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := classifier.NewRemoteClassifier(server.URL, time.Second, gobreaker.Settings{
		Name:    "test-classifier",
		Timeout: time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
	})

	for i := 0; i < 2; i++ {
		_, err := c.Predict(context.Background(), domain.FeatureVector{"ldl": 1})
		require.Error(t, err)
	}

	_, err := c.Predict(context.Background(), domain.FeatureVector{"ldl": 1})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Error(t, c.Ready(context.Background()))
}
