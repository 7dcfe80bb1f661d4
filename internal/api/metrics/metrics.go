// Package metrics defines and registers the custom Prometheus metrics of the
// access service. It is the single source of truth for metric names, labels
// and help strings.
//
// All metrics register with the default Prometheus registry on import.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "accessd"

// ── Auth metrics ──────────────────────────────────────────────────────────────

// LoginsTotal counts login attempts.
// Label:
//   - result: "success", "invalid_credentials", "throttled", "invalid" or "error"
var LoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total number of login attempts, by result.",
	},
	[]string{"result"},
)

// TokenConsumptionsTotal counts invite and reset token redemptions.
// Labels:
//   - kind: "invite" or "reset"
//   - result: "success", "invalid_token", "expired_token", "weak_password", "invalid" or "error"
var TokenConsumptionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_consumptions_total",
		Help:      "Total number of invite/reset token consumption attempts.",
	},
	[]string{"kind", "result"},
)

// PasswordResetRequestsTotal counts forgot-password submissions. The label
// never reveals whether the email exists.
var PasswordResetRequestsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "password_reset_requests_total",
		Help:      "Total number of forgot-password requests accepted.",
	},
)

// ── Provisioning metrics ──────────────────────────────────────────────────────

// ProvisioningRequestsTotal counts webhook deliveries.
// Label:
//   - outcome: "created", "already_active", "reinvited", "unauthorized", "invalid" or "failed"
var ProvisioningRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provisioning_requests_total",
		Help:      "Total number of provisioning webhook requests, by outcome.",
	},
	[]string{"outcome"},
)

// ── Gate metrics ──────────────────────────────────────────────────────────────

// GateDecisionsTotal counts Access Gate decisions on protected paths.
// Label:
//   - outcome: "allow", "login" or "lapsed"
var GateDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gate_decisions_total",
		Help:      "Total number of access gate decisions on protected paths.",
	},
	[]string{"outcome"},
)

// ── Notification metrics ──────────────────────────────────────────────────────

// NotificationsTotal counts notification deliveries.
// Labels:
//   - kind: "invite" or "password_reset"
//   - result: "sent", "failed" or "dropped"
var NotificationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Total number of notifications handled by the dispatcher.",
	},
	[]string{"kind", "result"},
)

// NotificationQueueDepth tracks pending notifications per dispatcher worker.
var NotificationQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "notification_queue_depth",
		Help:      "Current number of notifications pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// NotificationDeliveryDuration measures a single delivery through all sinks.
var NotificationDeliveryDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "notification_delivery_duration_seconds",
		Help:      "Duration of notification delivery from dequeue to completion.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"kind"},
)
