package domain

// AlertEvent is the outbound payload for the alerting endpoint. Delivery is
// fire-and-forget; the subsystem never tracks acknowledgment.
type AlertEvent struct {
	ServiceName         string   `json:"service_name"`
	HealthMetric        string   `json:"health_metric"`
	Operator            string   `json:"operator"`
	Threshold           float64  `json:"threshold"`
	Priority            string   `json:"priority"`
	Channels            []string `json:"channels"`
	ConsecutiveFailures int      `json:"consecutive_failures"`
}

// Alert priorities.
const (
	PriorityInfo     = "info"
	PriorityWarning  = "warning"
	PriorityCritical = "critical"
)

// Notifier delivers alert events. Implementations must be best-effort: a
// delivery failure is logged, never surfaced to the caller.
type Notifier interface {
	Send(event AlertEvent)
}
