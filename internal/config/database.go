package config

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
)

// InitDatabase creates the prediction history schema if it does not exist
// dropTables drops the existing table first (DROP_TABLES_ON_STARTUP=true)
func InitDatabase(db *sql.DB, dropTables bool) error {
	// Only drop tables if explicitly requested
	// This prevents accidental data loss on restart
	if dropTables {
		log.Println("Dropping existing tables (DROP_TABLES_ON_STARTUP=true)...")
		if _, err := db.Exec("DROP TABLE IF EXISTS predictions CASCADE"); err != nil {
			log.Printf("Warning: Failed to drop predictions table: %v", err)
		}
	}

	log.Println("Creating predictions table...")
	predictionsSchema := `
	CREATE TABLE IF NOT EXISTS predictions (
		id UUID PRIMARY KEY,
		requested_by TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT 'http',
		blood_glucose DOUBLE PRECISION NOT NULL,
		hba1c DOUBLE PRECISION NOT NULL,
		systolic_bp DOUBLE PRECISION NOT NULL,
		diastolic_bp DOUBLE PRECISION NOT NULL,
		ldl DOUBLE PRECISION NOT NULL,
		hdl DOUBLE PRECISION NOT NULL,
		triglycerides DOUBLE PRECISION NOT NULL,
		haemoglobin DOUBLE PRECISION NOT NULL,
		mcv DOUBLE PRECISION NOT NULL,
		category_code INTEGER NOT NULL,
		category TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT now()
	);`

	if _, err := db.Exec(predictionsSchema); err != nil {
		return fmt.Errorf("failed to create predictions table: %w", err)
	}

	// Create indexes
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_predictions_requested_by ON predictions(requested_by)",
		"CREATE INDEX IF NOT EXISTS idx_predictions_category ON predictions(category)",
		"CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at)",
	}

	for _, indexSQL := range indexes {
		if _, err := db.Exec(indexSQL); err != nil {
			log.Printf("Warning: Failed to create index: %v", err)
		}
	}

	log.Println("Database schema initialized successfully")
	return nil
}

// ConnectDatabase establishes a connection to PostgreSQL with retry logic
func ConnectDatabase(databaseURL string, maxRetries int, retryDelay time.Duration) (*sql.DB, error) {
	var db *sql.DB
	var err error

	for i := 0; i < maxRetries; i++ {
		db, err = sql.Open("postgres", databaseURL)
		if err != nil {
			log.Printf("Failed to open database connection (attempt %d/%d): %v", i+1, maxRetries, err)
			if i < maxRetries-1 {
				time.Sleep(retryDelay)
				continue
			}
			return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
		}

		// Test the connection
		if err = db.Ping(); err != nil {
			log.Printf("Failed to ping database (attempt %d/%d): %v", i+1, maxRetries, err)
			db.Close()
			if i < maxRetries-1 {
				time.Sleep(retryDelay)
				continue
			}
			return nil, fmt.Errorf("failed to ping database after %d attempts: %w", maxRetries, err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		log.Println("Database connection established successfully")
		return db, nil
	}

	return nil, fmt.Errorf("failed to connect to database: %w", err)
}

