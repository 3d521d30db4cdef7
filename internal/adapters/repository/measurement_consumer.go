package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/IANDYI/health-markers-service/internal/core/domain"
	"github.com/IANDYI/health-markers-service/internal/core/ports"
	"github.com/rabbitmq/amqp091-go"
)

// MeasurementRequest is an inference request delivered over RabbitMQ
// { "request_id": "string", "requested_by": "string", "measurements": { "ldl": 129.2, ... } }
type MeasurementRequest struct {
	RequestID    string                 `json:"request_id"`
	RequestedBy  string                 `json:"requested_by"`
	Measurements map[string]interface{} `json:"measurements"`
}

// DefaultRequester identifies predictions whose message carries no requested_by
const DefaultRequester = "system"

// Disposition tells the consumer what to do with a delivery
type Disposition int

const (
	// Ack removes the message from the queue
	Ack Disposition = iota
	// Reject drops the message; it can never succeed
	Reject
	// Requeue returns the message to the queue for another attempt
	Requeue
)

func (d Disposition) String() string {
	switch d {
	case Ack:
		return "ack"
	case Reject:
		return "reject"
	case Requeue:
		return "requeue"
	}
	return fmt.Sprintf("disposition(%d)", int(d))
}

// MeasurementHandler turns queued measurement messages into predictions
type MeasurementHandler struct {
	predictionService ports.PredictionService
	onProcessed       func(Disposition, *domain.Prediction)
}

// NewMeasurementHandler creates a handler backed by the prediction service
func NewMeasurementHandler(predictionService ports.PredictionService) *MeasurementHandler {
	return &MeasurementHandler{predictionService: predictionService}
}

// OnProcessed sets a callback invoked after every message
// The prediction is nil unless the disposition is Ack
func (h *MeasurementHandler) OnProcessed(fn func(Disposition, *domain.Prediction)) {
	h.onProcessed = fn
}

func (h *MeasurementHandler) settle(d Disposition, prediction *domain.Prediction) Disposition {
	if h.onProcessed != nil {
		h.onProcessed(d, prediction)
	}
	return d
}

// Process runs one message body through the prediction service.
// Malformed messages and deterministic inference failures are rejected;
// a missing model is transient and the message is requeued.
func (h *MeasurementHandler) Process(ctx context.Context, body []byte) Disposition {
	var req MeasurementRequest
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		log.Printf("Failed to unmarshal measurement request: %v", err)
		// Invalid message format - reject and don't requeue
		return h.settle(Reject, nil)
	}

	if req.Measurements == nil {
		log.Printf("Invalid measurement request %q: measurements object is required", req.RequestID)
		return h.settle(Reject, nil)
	}

	requestedBy := req.RequestedBy
	if requestedBy == "" {
		requestedBy = DefaultRequester
	}

	prediction, err := h.predictionService.Predict(ctx, ports.PredictRequest{
		Values:      domain.CoerceValues(req.Measurements),
		RequestedBy: requestedBy,
		Source:      domain.SourceAMQP,
	})
	if err != nil {
		if errors.Is(err, domain.ErrModelNotLoaded) {
			log.Printf("Model not loaded, requeueing measurement request %q", req.RequestID)
			return h.settle(Requeue, nil)
		}
		log.Printf("Failed to predict measurement request %q: %v", req.RequestID, err)
		return h.settle(Reject, nil)
	}

	log.Printf("Predicted measurement request %q: prediction_id=%s, category=%s",
		req.RequestID, prediction.ID, prediction.Category)
	return h.settle(Ack, prediction)
}

// MeasurementConsumer consumes inference requests from RabbitMQ
// Runs in background as a goroutine within the service process
type MeasurementConsumer struct {
	conn           *amqp091.Connection
	channel        *amqp091.Channel
	queueName      string
	handler        *MeasurementHandler
	connMutex      sync.RWMutex
	reconnectCh    chan bool
	stopReconnect  chan bool
	maxRetries     int
	retryDelay     time.Duration
	consumingCtx   context.Context
	consumingMutex sync.Mutex
	isConsuming    bool
}

// NewMeasurementConsumer creates a new RabbitMQ consumer for measurement messages
func NewMeasurementConsumer(rabbitMQURL string, queueName string, handler *MeasurementHandler) (*MeasurementConsumer, error) {
	if queueName == "" {
		queueName = "health_measurements"
	}

	consumer := &MeasurementConsumer{
		queueName:     queueName,
		handler:       handler,
		maxRetries:    3,
		retryDelay:    1 * time.Second,
		reconnectCh:   make(chan bool, 1),
		stopReconnect: make(chan bool),
	}

	// Connect to RabbitMQ
	if err := consumer.connect(rabbitMQURL); err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	// Start reconnection handler
	go consumer.handleReconnection(rabbitMQURL)

	return consumer, nil
}

// connect establishes connection to RabbitMQ
func (c *MeasurementConsumer) connect(rabbitMQURL string) error {
	var err error
	for i := 0; i < c.maxRetries; i++ {
		c.conn, err = amqp091.Dial(rabbitMQURL)
		if err == nil {
			break
		}
		log.Printf("Failed to connect to RabbitMQ (attempt %d/%d): %v", i+1, c.maxRetries, err)
		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelay)
		}
	}

	if err != nil {
		return err
	}

	c.channel, err = c.conn.Channel()
	if err != nil {
		c.conn.Close()
		return err
	}

	// Declare queue (idempotent)
	_, err = c.channel.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)

	if err != nil {
		c.channel.Close()
		c.conn.Close()
		return err
	}

	log.Println("Measurement consumer connected to RabbitMQ successfully")
	return nil
}

// handleReconnection handles automatic reconnection to RabbitMQ
func (c *MeasurementConsumer) handleReconnection(rabbitMQURL string) {
	for {
		select {
		case <-c.reconnectCh:
			log.Println("Attempting to reconnect to RabbitMQ...")
			c.connMutex.Lock()
			if c.conn != nil && !c.conn.IsClosed() {
				c.conn.Close()
			}
			if c.channel != nil && !c.channel.IsClosed() {
				c.channel.Close()
			}
			c.connMutex.Unlock()

			if err := c.connect(rabbitMQURL); err != nil {
				log.Printf("Reconnection failed: %v", err)
				time.Sleep(5 * time.Second)
				c.reconnectCh <- true
			} else {
				// Restart consuming after reconnection using the original context
				c.consumingMutex.Lock()
				if c.consumingCtx != nil && c.consumingCtx.Err() == nil {
					// Only restart if we have a valid context and we're not already consuming
					if !c.isConsuming {
						go c.StartConsuming(c.consumingCtx)
					}
				}
				c.consumingMutex.Unlock()
			}
		case <-c.stopReconnect:
			return
		}
	}
}

// StartConsuming starts consuming messages from the queue in a background goroutine
// Duplicate prevention: ensures only one consumer per process
// (with multiple replicas RabbitMQ distributes messages across them round-robin)
func (c *MeasurementConsumer) StartConsuming(ctx context.Context) error {
	c.consumingMutex.Lock()
	if c.isConsuming {
		c.consumingMutex.Unlock()
		log.Println("Measurement consumer is already running, skipping duplicate start")
		return nil
	}
	c.isConsuming = true
	c.consumingCtx = ctx
	c.consumingMutex.Unlock()

	c.connMutex.RLock()
	channel := c.channel
	conn := c.conn
	c.connMutex.RUnlock()

	if channel == nil || channel.IsClosed() || conn == nil || conn.IsClosed() {
		c.consumingMutex.Lock()
		c.isConsuming = false
		c.consumingMutex.Unlock()
		return fmt.Errorf("RabbitMQ connection is closed")
	}

	// Set QoS to process one message at a time (ensures only one unacknowledged message per consumer)
	err := channel.Qos(
		1,     // prefetch count - only one message at a time
		0,     // prefetch size
		false, // global
	)
	if err != nil {
		c.consumingMutex.Lock()
		c.isConsuming = false
		c.consumingMutex.Unlock()
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	// Register consumer with a unique consumer tag to identify this instance
	consumerTag := fmt.Sprintf("measurement-consumer-%d", time.Now().UnixNano())
	msgs, err := channel.Consume(
		c.queueName, // queue
		consumerTag, // consumer tag (unique identifier)
		false,       // auto-ack (manual ack after the prediction is made)
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		c.consumingMutex.Lock()
		c.isConsuming = false
		c.consumingMutex.Unlock()
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	log.Printf("Measurement consumer started (tag: %s), waiting for messages on queue: %s", consumerTag, c.queueName)

	// Process messages sequentially (QoS=1 ensures only one message is delivered at a time)
	go func() {
		defer func() {
			c.consumingMutex.Lock()
			c.isConsuming = false
			c.consumingMutex.Unlock()
		}()

		for {
			select {
			case <-ctx.Done():
				log.Println("Measurement consumer context cancelled")
				return
			case msg, ok := <-msgs:
				if !ok {
					log.Println("Measurement consumer channel closed, attempting reconnection...")
					c.reconnectCh <- true
					return
				}

				// Process message sequentially (no goroutine - ensures only one message at a time)
				c.processMessage(ctx, msg)
			}
		}
	}()

	return nil
}

// processMessage settles a single delivery according to the handler's decision
// Acknowledged only after the prediction has been made (at-least-once delivery)
func (c *MeasurementConsumer) processMessage(ctx context.Context, msg amqp091.Delivery) {
	var err error
	switch c.handler.Process(ctx, msg.Body) {
	case Ack:
		err = msg.Ack(false)
	case Requeue:
		// Back off so a missing model does not spin the queue
		time.Sleep(c.retryDelay)
		err = msg.Nack(false, true)
	default:
		err = msg.Nack(false, false)
	}
	if err != nil {
		log.Printf("Failed to settle measurement message: %v", err)
	}
}

// Close closes the RabbitMQ connection and stops consuming
func (c *MeasurementConsumer) Close() error {
	// Stop reconnection handler
	close(c.stopReconnect)

	// Mark as not consuming (the consuming context is cancelled by the caller)
	c.consumingMutex.Lock()
	c.isConsuming = false
	c.consumingMutex.Unlock()

	// Close RabbitMQ connection
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	if c.channel != nil && !c.channel.IsClosed() {
		if err := c.channel.Close(); err != nil {
			log.Printf("Error closing RabbitMQ channel: %v", err)
		}
	}

	if c.conn != nil && !c.conn.IsClosed() {
		if err := c.conn.Close(); err != nil {
			log.Printf("Error closing RabbitMQ connection: %v", err)
		}
	}

	log.Println("Measurement consumer closed")
	return nil
}
