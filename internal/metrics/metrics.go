package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "custos"

// Metrics holds the service counters on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	TopUpOperations *prometheus.CounterVec
	Commands        *prometheus.CounterVec
	RuleChecks      *prometheus.CounterVec
	Notifications   *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		TopUpOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "topup_operations_total",
			Help:      "Top-up registry operations by operation and outcome.",
		}, []string{"op", "outcome"}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Chat commands handled by command and outcome.",
		}, []string{"command", "outcome"}),
		RuleChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_checks_total",
			Help:      "Top-up rule checks by outcome.",
		}, []string{"outcome"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Outbound messages by channel and outcome.",
		}, []string{"channel", "outcome"}),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.TopUpOperations,
		m.Commands,
		m.RuleChecks,
		m.Notifications,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) TopUp(op, outcome string) {
	if m == nil {
		return
	}
	m.TopUpOperations.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) Command(command, outcome string) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(command, outcome).Inc()
}

func (m *Metrics) RuleCheck(outcome string) {
	if m == nil {
		return
	}
	m.RuleChecks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Notification(channel, outcome string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(channel, outcome).Inc()
}
