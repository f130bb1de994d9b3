package metrics

import (
	"github.com/rs/zerolog"

	"github.com/stockscope/searchd/internal/gateway"
)

// CircuitStateJob mirrors the gateway's breaker positions into the
// provider_circuit_state gauge. Scheduled frequently so scrapes see
// transitions that happen between searches.
type CircuitStateJob struct {
	gw      *gateway.Gateway
	metrics *Metrics
	log     zerolog.Logger
}

// NewCircuitStateJob creates the gauge refresh job.
func NewCircuitStateJob(gw *gateway.Gateway, m *Metrics, log zerolog.Logger) *CircuitStateJob {
	return &CircuitStateJob{
		gw:      gw,
		metrics: m,
		log:     log.With().Str("job", "circuit_state").Logger(),
	}
}

// Run copies the current circuit positions into the gauge.
func (j *CircuitStateJob) Run() error {
	for provider, state := range j.gw.States() {
		j.metrics.CircuitState.WithLabelValues(provider).Set(gaugeValue(state))
	}
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *CircuitStateJob) Name() string {
	return "circuit_state"
}

func gaugeValue(state gateway.CircuitState) float64 {
	switch state {
	case gateway.CircuitOpen:
		return 2
	case gateway.CircuitHalfOpen:
		return 1
	default:
		return 0
	}
}
