package metric

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP метрики - количество запросов
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Общее количество HTTP запросов",
		},
		[]string{"method", "endpoint", "status"},
	)

	// HTTP метрики - время обработки запросов
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Время обработки HTTP запросов в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	// WS метрики - количество активных соединений
	wsActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_active_connections",
			Help: "Количество активных WebSocket соединений",
		},
	)

	// Команды комнат по типу и результату
	roomCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "room_commands_total",
			Help: "Количество обработанных команд комнат",
		},
		[]string{"command", "result"},
	)

	wsSessionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ws_session_duration_seconds",
			Help:    "Длительность WebSocket сессий в секундах",
			Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600},
		},
	)

	racesStartedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "races_started_total",
			Help: "Количество запущенных обратных отсчетов",
		},
	)

	paragraphDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paragraph_deliveries_total",
			Help: "Количество доставок текста гонки",
		},
		[]string{"result"},
	)
)

// RecordHTTPMetrics записывает метрики HTTP запроса
func RecordHTTPMetrics(method, endpoint string, status int, duration time.Duration) {
	strStatus := strconv.Itoa(status)

	httpRequestsTotal.WithLabelValues(method, endpoint, strStatus).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, strStatus).Observe(duration.Seconds())
}

func IncrementWSActiveConnections() {
	wsActiveConnections.Inc()
}

func DecrementWSActiveConnections() {
	wsActiveConnections.Dec()
}

func RecordWSSession(duration time.Duration) {
	wsSessionDuration.Observe(duration.Seconds())
}

// RecordRoomCommand result: ok, rejected, failed
func RecordRoomCommand(command, result string) {
	roomCommandsTotal.WithLabelValues(command, result).Inc()
}

func IncrementRacesStarted() {
	racesStartedTotal.Inc()
}

func RecordParagraphDelivery(ok bool) {
	if ok {
		paragraphDeliveriesTotal.WithLabelValues("ok").Inc()
		return
	}

	paragraphDeliveriesTotal.WithLabelValues("error").Inc()
}
