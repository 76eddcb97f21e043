// Package metrics exposes Prometheus instruments for ledger operations and
// HTTP traffic.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dukerupert/coinvault/internal/apperr"
)

var (
	// OperationDuration tracks the latency of ledger operations
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "coinvault_operation_duration_seconds",
			Help: "Duration of ledger operations in seconds",
			Buckets: []float64{
				0.001, // 1ms
				0.005, // 5ms
				0.01,  // 10ms
				0.025, // 25ms
				0.05,  // 50ms
				0.1,   // 100ms
				0.25,  // 250ms
				0.5,   // 500ms
				1.0,   // 1s
				2.5,   // 2.5s
			},
		},
		[]string{"operation", "outcome"},
	)

	// OperationResults counts ledger operations by error kind ("ok" on success).
	OperationResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinvault_operation_results_total",
			Help: "Ledger operations by operation and result kind",
		},
		[]string{"operation", "kind"},
	)

	// CoinsMoved counts coins moved by transaction type.
	CoinsMoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinvault_coins_moved_total",
			Help: "Coins moved through the ledger by transaction type",
		},
		[]string{"type"},
	)

	// Notifications counts outbound notifications by channel and outcome.
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinvault_notifications_total",
			Help: "Outbound notifications by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	// HTTPRequests counts HTTP responses by method and status class.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinvault_http_requests_total",
			Help: "HTTP requests by method and status code",
		},
		[]string{"method", "code"},
	)
)

// ObserveOperation records the duration and result of a ledger operation.
func ObserveOperation(operation string, start time.Time, err error) {
	outcome, kind := "success", "ok"
	if err != nil {
		outcome, kind = "failure", string(apperr.KindOf(err))
	}
	OperationDuration.WithLabelValues(operation, outcome).Observe(time.Since(start).Seconds())
	OperationResults.WithLabelValues(operation, kind).Inc()
}

// AddCoins records coins moved by a committed transaction.
func AddCoins(txType string, amount int64) {
	if amount <= 0 {
		return
	}
	CoinsMoved.WithLabelValues(txType).Add(float64(amount))
}

// RecordNotification counts one notification attempt.
func RecordNotification(channel string, err error) {
	outcome := "sent"
	if err != nil {
		outcome = "failed"
	}
	Notifications.WithLabelValues(channel, outcome).Inc()
}
