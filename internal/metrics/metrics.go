// Package metrics exposes the orchestrator's Prometheus instrumentation:
// session lifecycle counters, task outcomes, and webhook delivery results
// including the durable pending-queue depth.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SessionsStarted counts worker sessions launched successfully.
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orchestrator_sessions_started_total",
		Help: "Worker sessions launched.",
	})

	// SessionsKilled counts session terminations by mode (graceful, force).
	SessionsKilled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrator_sessions_killed_total",
		Help: "Worker sessions terminated, by mode.",
	}, []string{"mode"})

	// TasksFinished counts tasks reaching a terminal status.
	TasksFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrator_tasks_finished_total",
		Help: "Tasks reaching a terminal status, by status.",
	}, []string{"status"})

	// WebhookDeliveries counts delivery outcomes by result class
	// (success, 4xx, 5xx, timeout, network).
	WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrator_webhook_deliveries_total",
		Help: "Webhook delivery outcomes, by result class.",
	}, []string{"result"})

	// WebhookPending tracks the durable pending-webhook queue depth after
	// each mutation of the queue.
	WebhookPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "orchestrator_webhook_pending",
		Help: "Pending webhook deliveries awaiting replay.",
	})

	// WebhookExpired counts pending deliveries dropped at the 24-hour
	// queue expiry without ever succeeding.
	WebhookExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orchestrator_webhook_expired_total",
		Help: "Pending webhook deliveries dropped at queue expiry.",
	})
)

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
