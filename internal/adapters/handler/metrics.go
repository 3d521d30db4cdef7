package handler

import (
	"strings"

	"github.com/IANDYI/health-markers-service/internal/adapters/websocket"
	"github.com/IANDYI/health-markers-service/internal/core/domain"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	PredictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Total number of completed predictions",
		},
		[]string{"category", "source"},
	)

	PredictionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prediction_duration_seconds",
			Help:    "Duration of feature derivation plus inference",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"status"},
	)

	MeasurementMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "measurement_messages_total",
			Help: "Total number of measurement messages consumed from RabbitMQ",
		},
		[]string{"disposition"},
	)

	NotificationsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prediction_notifications_total",
			Help: "Total number of prediction notifications pushed via WebSocket",
		},
		[]string{"delivered"},
	)

	WebSocketConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of WebSocket connections",
		},
		[]string{"role"},
	)
)

// RegisterMetrics registers the prediction metrics with reg
// When hub is non-nil its connected admin count is exported as a gauge
func RegisterMetrics(reg prometheus.Registerer, hub *websocket.Hub) {
	reg.MustRegister(PredictionsTotal)
	reg.MustRegister(PredictionDuration)
	reg.MustRegister(MeasurementMessagesTotal)
	reg.MustRegister(NotificationsSentTotal)
	reg.MustRegister(WebSocketConnections)

	if hub != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "websocket_connected_admins",
				Help: "Current number of connected ADMIN users",
			},
			func() float64 { return float64(hub.GetConnectedAdminCount()) },
		))
	}
}

// ObserveNotification records how many admins a notification reached
func ObserveNotification(delivered int) {
	label := "none"
	if delivered > 0 {
		label = "some"
	}
	NotificationsSentTotal.WithLabelValues(label).Inc()
}

// ObserveConnect increments the connection gauge for a registered client
func ObserveConnect(role string) {
	WebSocketConnections.WithLabelValues(roleLabel(role)).Inc()
}

// ObserveDisconnect decrements the connection gauge for a departing client
func ObserveDisconnect(role string) {
	WebSocketConnections.WithLabelValues(roleLabel(role)).Dec()
}

// ObserveMeasurementMessage records a settled RabbitMQ message
// prediction is nil unless the message was acknowledged
func ObserveMeasurementMessage(disposition string, prediction *domain.Prediction) {
	MeasurementMessagesTotal.WithLabelValues(disposition).Inc()
	if prediction != nil {
		PredictionsTotal.WithLabelValues(string(prediction.Category), prediction.Source).Inc()
	}
}

func roleLabel(role string) string {
	return strings.ToLower(role)
}
