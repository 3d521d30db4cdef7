package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/IANDYI/health-markers-service/internal/core/domain"
	"github.com/IANDYI/health-markers-service/internal/core/ports"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
)

// SQLRepository implements PredictionRepository using PostgreSQL
// Includes retry logic and circuit breaker for resilience
type SQLRepository struct {
	db         *sql.DB
	cb         *gobreaker.CircuitBreaker
	maxRetries int
	retryDelay time.Duration
}

const predictionColumns = `id, requested_by, source,
	blood_glucose, hba1c, systolic_bp, diastolic_bp, ldl, hdl, triglycerides, haemoglobin, mcv,
	category_code, category, created_at`

// NewSQLRepository creates a new PostgreSQL repository with a circuit breaker
func NewSQLRepository(db *sql.DB, settings gobreaker.Settings) *SQLRepository {
	if settings.Name == "" {
		settings.Name = "database"
	}
	if settings.ReadyToTrip == nil {
		settings.ReadyToTrip = func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		}
	}
	// A missing row is an answer, not a database failure
	settings.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, sql.ErrNoRows)
	}

	return &SQLRepository{
		db:         db,
		cb:         gobreaker.NewCircuitBreaker(settings),
		maxRetries: 3,
		retryDelay: 1 * time.Second,
	}
}

// SetRetryPolicy overrides the default of 3 attempts 1s apart
func (r *SQLRepository) SetRetryPolicy(maxRetries int, retryDelay time.Duration) {
	if maxRetries < 1 {
		maxRetries = 1
	}
	r.maxRetries = maxRetries
	r.retryDelay = retryDelay
}

// executeWithRetry executes a database operation with retry logic
func (r *SQLRepository) executeWithRetry(ctx context.Context, operation func() error) error {
	var lastErr error
	for i := 0; i < r.maxRetries; i++ {
		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err
		// Don't retry on sql.ErrNoRows - it's not a transient error
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if i < r.maxRetries-1 {
			time.Sleep(r.retryDelay)
		}
	}
	return fmt.Errorf("operation failed after %d retries: %w", r.maxRetries, lastErr)
}

// SavePrediction stores the raw measurement and classifier output.
// Derived features and recommendation text are not stored; both are
// recomputed from the raw values and the code on read.
func (r *SQLRepository) SavePrediction(ctx context.Context, prediction *domain.Prediction) error {
	_, err := r.cb.Execute(func() (interface{}, error) {
		return nil, r.executeWithRetry(ctx, func() error {
			query := `INSERT INTO predictions (` + predictionColumns + `)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

			m := prediction.Measurement
			_, err := r.db.ExecContext(ctx, query,
				prediction.ID,
				prediction.RequestedBy,
				prediction.Source,
				m.BloodGlucose,
				m.HbA1c,
				m.SystolicBP,
				m.DiastolicBP,
				m.LDL,
				m.HDL,
				m.Triglycerides,
				m.Haemoglobin,
				m.MCV,
				int(prediction.Code),
				string(prediction.Category),
				prediction.CreatedAt,
			)
			return err
		})
	})
	return err
}

// GetPredictionByID retrieves a single prediction
func (r *SQLRepository) GetPredictionByID(ctx context.Context, predictionID uuid.UUID) (*domain.Prediction, error) {
	result, err := r.cb.Execute(func() (interface{}, error) {
		var prediction *domain.Prediction
		err := r.executeWithRetry(ctx, func() error {
			query := `SELECT ` + predictionColumns + ` FROM predictions WHERE id = $1`
			p, err := scanPrediction(r.db.QueryRowContext(ctx, query, predictionID))
			prediction = p
			return err
		})
		if err != nil {
			return nil, err
		}
		return prediction, nil
	})

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPredictionNotFound
		}
		return nil, err
	}

	return result.(*domain.Prediction), nil
}

// ListPredictions retrieves predictions, newest first
func (r *SQLRepository) ListPredictions(ctx context.Context, requestedBy string, all bool, category *string, limit *int) ([]*domain.Prediction, error) {
	result, err := r.cb.Execute(func() (interface{}, error) {
		var predictions []*domain.Prediction
		err := r.executeWithRetry(ctx, func() error {
			predictions = nil

			// Build query with optional filters
			query := `SELECT ` + predictionColumns + ` FROM predictions WHERE 1=1`
			args := []interface{}{}
			argIndex := 1

			if !all {
				query += fmt.Sprintf(" AND requested_by = $%d", argIndex)
				args = append(args, requestedBy)
				argIndex++
			}

			if category != nil {
				query += fmt.Sprintf(" AND category = $%d", argIndex)
				args = append(args, *category)
				argIndex++
			}

			query += " ORDER BY created_at DESC"

			if limit != nil {
				query += fmt.Sprintf(" LIMIT $%d", argIndex)
				args = append(args, *limit)
			}

			rows, queryErr := r.db.QueryContext(ctx, query, args...)
			if queryErr != nil {
				return queryErr
			}
			defer rows.Close()

			for rows.Next() {
				p, err := scanPrediction(rows)
				if err != nil {
					return err
				}
				predictions = append(predictions, p)
			}

			return rows.Err()
		})
		if err != nil {
			return nil, err
		}
		return predictions, nil
	})

	if err != nil {
		return nil, err
	}

	predictions := result.([]*domain.Prediction)
	if predictions == nil {
		predictions = []*domain.Prediction{}
	}
	return predictions, nil
}

// Ping checks database connectivity for readiness probes
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanPrediction scans a prediction row and re-resolves its category
func scanPrediction(row rowScanner) (*domain.Prediction, error) {
	var p domain.Prediction
	var code int
	var storedCategory string

	err := row.Scan(
		&p.ID, &p.RequestedBy, &p.Source,
		&p.Measurement.BloodGlucose, &p.Measurement.HbA1c, &p.Measurement.SystolicBP, &p.Measurement.DiastolicBP,
		&p.Measurement.LDL, &p.Measurement.HDL, &p.Measurement.Triglycerides, &p.Measurement.Haemoglobin, &p.Measurement.MCV,
		&code, &storedCategory, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Code = domain.CategoryCode(code)
	p.Category, p.Recommendation = domain.Resolve(p.Code)

	return &p, nil
}

// Ensure SQLRepository implements the interface
var _ ports.PredictionRepository = (*SQLRepository)(nil)
