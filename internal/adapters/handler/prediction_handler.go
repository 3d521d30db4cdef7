package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/IANDYI/health-markers-service/internal/adapters/middleware"
	"github.com/IANDYI/health-markers-service/internal/core/domain"
	"github.com/IANDYI/health-markers-service/internal/core/ports"
	"github.com/google/uuid"
)

// maxBodyBytes bounds a prediction request body
const maxBodyBytes = 1 << 20

// modelNotLoadedMessage is returned when no classifier is available
const modelNotLoadedMessage = "Model not loaded. Please check the server logs."

// PredictionHandler handles HTTP requests for prediction operations
type PredictionHandler struct {
	predictionService ports.PredictionService
}

// NewPredictionHandler creates a new prediction handler
func NewPredictionHandler(predictionService ports.PredictionService) *PredictionHandler {
	return &PredictionHandler{
		predictionService: predictionService,
	}
}

// PredictResponse is the body of a successful POST /predict
type PredictResponse struct {
	ID             uuid.UUID                   `json:"id"`
	Category       domain.Category             `json:"category"`
	Recommendation domain.RecommendationRecord `json:"recommendation"`
}

// Predict handles POST /predict
// Body: JSON object of measurement name -> value (names case-insensitive)
func (h *PredictionHandler) Predict(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	requestID := generateRequestID()

	userID, _ := middleware.GetUserID(r.Context())
	role, _ := middleware.GetRole(r.Context())

	var raw map[string]interface{}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil || raw == nil {
		log.Printf("[%s] Failed to decode request: %v", requestID, err)
		writeError(w, requestID, http.StatusBadRequest, "request body must be a JSON object")
		return
	}

	prediction, err := h.predictionService.Predict(r.Context(), ports.PredictRequest{
		Values:      domain.CoerceValues(raw),
		RequestedBy: userID,
		Source:      domain.SourceHTTP,
	})
	if err != nil {
		PredictionDuration.WithLabelValues("error").Observe(time.Since(startTime).Seconds())
		log.Printf("[%s] Prediction failed: user_id=%s, error=%v", requestID, userID, err)
		if errors.Is(err, domain.ErrModelNotLoaded) {
			writeError(w, requestID, http.StatusInternalServerError, modelNotLoadedMessage)
			return
		}
		writeError(w, requestID, http.StatusInternalServerError, err.Error())
		return
	}

	PredictionDuration.WithLabelValues("ok").Observe(time.Since(startTime).Seconds())
	PredictionsTotal.WithLabelValues(string(prediction.Category), prediction.Source).Inc()

	// Log structured JSON
	logStructured(requestID, userID, role, "POST", "/predict", http.StatusOK, time.Since(startTime))

	writeJSON(w, requestID, http.StatusOK, PredictResponse{
		ID:             prediction.ID,
		Category:       prediction.Category,
		Recommendation: prediction.Recommendation,
	})
}

// ListPredictions handles GET /predictions
// ADMIN: all predictions, other users: only their own
// Optional query params: category, limit
func (h *PredictionHandler) ListPredictions(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	requestID := generateRequestID()

	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		log.Printf("[%s] Failed to get user ID from context", requestID)
		writeError(w, requestID, http.StatusUnauthorized, "unauthorized")
		return
	}
	role, _ := middleware.GetRole(r.Context())
	isAdmin := middleware.IsAdmin(r.Context())

	// Parse query parameters for filtering
	var category *string
	var limit *int

	if categoryParam := r.URL.Query().Get("category"); categoryParam != "" {
		if !domain.IsValidCategory(categoryParam) {
			log.Printf("[%s] Invalid category parameter: %s", requestID, categoryParam)
			writeError(w, requestID, http.StatusBadRequest, "invalid category parameter")
			return
		}
		category = &categoryParam
	}

	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		limitInt, err := strconv.Atoi(limitParam)
		if err != nil || limitInt <= 0 {
			log.Printf("[%s] Invalid limit parameter: %s", requestID, limitParam)
			writeError(w, requestID, http.StatusBadRequest, "invalid limit parameter (must be positive integer)")
			return
		}
		limit = &limitInt
	}

	predictions, err := h.predictionService.ListPredictions(r.Context(), userID, isAdmin, category, limit)
	if err != nil {
		log.Printf("[%s] Failed to list predictions: %v", requestID, err)
		if errors.Is(err, domain.ErrHistoryUnavailable) {
			writeError(w, requestID, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, requestID, http.StatusInternalServerError, "failed to list predictions")
		return
	}

	logStructured(requestID, userID, role, "GET", "/predictions", http.StatusOK, time.Since(startTime))

	writeJSON(w, requestID, http.StatusOK, predictions)
}

// GetPrediction handles GET /predictions/{prediction_id}
// ADMIN: any prediction, other users: own only
func (h *PredictionHandler) GetPrediction(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	requestID := generateRequestID()

	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		log.Printf("[%s] Failed to get user ID from context", requestID)
		writeError(w, requestID, http.StatusUnauthorized, "unauthorized")
		return
	}
	role, _ := middleware.GetRole(r.Context())
	isAdmin := middleware.IsAdmin(r.Context())

	// Extract prediction_id from URL path
	predictionIDStr := r.PathValue("prediction_id")
	predictionID, err := uuid.Parse(predictionIDStr)
	if err != nil {
		log.Printf("[%s] Invalid prediction ID: %v", requestID, err)
		writeError(w, requestID, http.StatusBadRequest, "invalid prediction ID")
		return
	}

	prediction, err := h.predictionService.GetPrediction(r.Context(), predictionID, userID, isAdmin)
	if err != nil {
		log.Printf("[%s] Failed to get prediction %s: %v", requestID, predictionIDStr, err)
		switch {
		case errors.Is(err, domain.ErrPredictionNotFound):
			writeError(w, requestID, http.StatusNotFound, err.Error())
		case errors.Is(err, domain.ErrHistoryUnavailable):
			writeError(w, requestID, http.StatusServiceUnavailable, err.Error())
		default:
			writeError(w, requestID, http.StatusInternalServerError, "failed to get prediction")
		}
		return
	}

	logStructured(requestID, userID, role, "GET", "/predictions/"+predictionIDStr, http.StatusOK, time.Since(startTime))

	writeJSON(w, requestID, http.StatusOK, prediction)
}

// Recommendations handles GET /recommendations
func (h *PredictionHandler) Recommendations(w http.ResponseWriter, r *http.Request) {
	requestID := generateRequestID()
	writeJSON(w, requestID, http.StatusOK, h.predictionService.Recommendations())
}
