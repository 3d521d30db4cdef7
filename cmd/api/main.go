package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/IANDYI/health-markers-service/internal/adapters/classifier"
	"github.com/IANDYI/health-markers-service/internal/adapters/handler"
	"github.com/IANDYI/health-markers-service/internal/adapters/middleware"
	"github.com/IANDYI/health-markers-service/internal/adapters/repository"
	"github.com/IANDYI/health-markers-service/internal/adapters/websocket"
	"github.com/IANDYI/health-markers-service/internal/config"
	"github.com/IANDYI/health-markers-service/internal/core/domain"
	"github.com/IANDYI/health-markers-service/internal/core/ports"
	"github.com/IANDYI/health-markers-service/internal/core/services"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Background workers (model watch, hub, consumer) stop when ctx is cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize classifier
	var predictor ports.Classifier
	switch cfg.ClassifierMode {
	case config.ClassifierModeRemote:
		predictor = classifier.NewRemoteClassifier(cfg.ClassifierURL, cfg.ClassifierTimeout, cfg.BreakerSettings("classifier"))
		log.Printf("Using remote classifier at %s", cfg.ClassifierURL)
	default:
		store := classifier.NewModelStore(cfg.ModelPath)
		if err := store.Load(); err != nil {
			// Keep serving; /predict reports the missing model until the file appears
			log.Printf("Failed to load model from %s: %v", store.Path(), err)
		}
		if cfg.ModelWatch {
			go func() {
				if err := store.Watch(ctx); err != nil {
					log.Printf("Model watcher error: %v", err)
				}
			}()
		}
		predictor = store
	}

	// Prediction history (optional)
	var predictionRepo ports.PredictionRepository
	var dbPinger handler.Pinger
	if cfg.DatabaseURL != "" {
		// Connect to database with retry logic
		db, err := config.ConnectDatabase(cfg.DatabaseURL, 5, 2*time.Second)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		if err := config.InitDatabase(db, cfg.DropTablesOnStartup); err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		sqlRepo := repository.NewSQLRepository(db, cfg.BreakerSettings("postgres"))
		predictionRepo = sqlRepo
		dbPinger = sqlRepo
	} else {
		log.Println("DB_CONNECTION_STRING not set, prediction history disabled")
	}

	// WebSocket hub for ADMIN notifications
	hub := websocket.NewHub()
	hub.OnNotify(handler.ObserveNotification)
	hub.OnConnect(handler.ObserveConnect)
	hub.OnDisconnect(handler.ObserveDisconnect)
	go hub.Run(ctx)

	handler.RegisterMetrics(prometheus.DefaultRegisterer, hub)

	// Prediction events (optional)
	var publisher ports.PredictionPublisher
	var rabbitMQPublisher *repository.RabbitMQPublisher
	if cfg.RabbitMQURL != "" {
		rabbitMQPublisher, err = repository.NewRabbitMQPublisher(cfg.RabbitMQURL, cfg.PredictionsQueueName, cfg.BreakerSettings("rabbitmq"))
		if err != nil {
			log.Fatalf("Failed to initialize RabbitMQ publisher: %v", err)
		}
		defer rabbitMQPublisher.Close()
		publisher = rabbitMQPublisher
	} else {
		log.Println("RABBITMQ_URL not set, prediction events and measurement consumer disabled")
	}

	// Initialize services
	predictionService := services.NewPredictionService(predictor, predictionRepo, publisher, hub)

	// Measurement consumer: same pipeline as POST /predict, fed from RabbitMQ
	// In multi-replica deployments RabbitMQ distributes messages across replicas round-robin
	if cfg.RabbitMQURL != "" {
		measurementHandler := repository.NewMeasurementHandler(predictionService)
		measurementHandler.OnProcessed(func(d repository.Disposition, p *domain.Prediction) {
			handler.ObserveMeasurementMessage(d.String(), p)
		})

		measurementConsumer, err := repository.NewMeasurementConsumer(cfg.RabbitMQURL, cfg.MeasurementsQueueName, measurementHandler)
		if err != nil {
			log.Fatalf("Failed to initialize RabbitMQ measurement consumer: %v", err)
		}
		defer measurementConsumer.Close()

		go func() {
			if err := measurementConsumer.StartConsuming(ctx); err != nil {
				log.Printf("Measurement consumer error: %v", err)
			}
		}()
		log.Println("Measurement consumer started in background")
	}

	// Initialize JWT middleware; a nil key runs every request as the anonymous identity
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTPublicKey)
	defer authMiddleware.Stop()
	if !authMiddleware.Enabled() {
		log.Println("Authentication disabled, requests are attributed to the anonymous user")
	}

	// Initialize handlers
	predictionHandler := handler.NewPredictionHandler(predictionService)
	healthHandler := handler.NewHealthHandler(predictor, dbPinger)
	webSocketHandler := handler.NewWebSocketHandler(hub, authMiddleware)

	// Setup HTTP router
	mux := http.NewServeMux()

	// Health endpoints (OpenShift compatible, no auth required)
	mux.HandleFunc("GET /metrics", handler.Metrics)
	mux.HandleFunc("GET /health", healthHandler.Health)
	mux.HandleFunc("GET /health/ready", healthHandler.Ready)
	mux.HandleFunc("GET /health/live", healthHandler.Live)

	// Recommendation table is static and public
	mux.HandleFunc("GET /recommendations", predictionHandler.Recommendations)

	// POST /predict - any authenticated user
	mux.HandleFunc("POST /predict", authMiddleware.RequireAuth(predictionHandler.Predict))

	// GET /predictions - ADMIN: all, other users: own only
	mux.HandleFunc("GET /predictions", authMiddleware.RequireAuth(predictionHandler.ListPredictions))

	// GET /predictions/{prediction_id} - ADMIN: any, other users: own only
	mux.HandleFunc("GET /predictions/{prediction_id}", authMiddleware.RequireAuth(predictionHandler.GetPrediction))

	// WebSocket endpoint for ADMIN notifications (token via header or ?token=)
	mux.HandleFunc("GET /ws", webSocketHandler.HandleWebSocket)

	// Wrap mux with metrics middleware to track all HTTP requests
	loggedRouter := middleware.MetricsMiddleware(mux)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      loggedRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Starting Health Markers Service on :%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Stop consumer, watcher and hub first so no new work is accepted
	cancel()

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
