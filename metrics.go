package encryptedir

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds metrics related to key lifecycle operations.
type Metrics struct {
	keyOperations *prometheus.CounterVec
	keys          *prometheus.GaugeVec
}

// Metric label values for operation status.
const (
	OperationStatusSuccess = "success"
	OperationStatusFailed  = "failed"
)

// Metric label values for key state.
const (
	KeyStateActive   = "active"
	KeyStateInactive = "inactive"
)

// NewMetrics creates the key metrics and registers them on reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		keyOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "encryptedir",
			Name:      "key_operations_total",
			Help:      "Total number of key manager operations by outcome.",
		}, []string{"operation", "status"}),
		keys: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "encryptedir",
			Name:      "keys",
			Help:      "Number of managed keys by state.",
		}, []string{"state"}),
	}

	if reg != nil {
		if err := reg.Register(m.keyOperations); err != nil {
			return nil, err
		}
		if err := reg.Register(m.keys); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// RecordOperation increments the operation counter, labelled failed when err is not nil.
func (m *Metrics) RecordOperation(operation string, err error) {
	if m == nil {
		return
	}
	status := OperationStatusSuccess
	if err != nil {
		status = OperationStatusFailed
	}
	m.keyOperations.WithLabelValues(operation, status).Inc()
}

func (m *Metrics) setKeyCounts(active, inactive int) {
	if m == nil {
		return
	}
	m.keys.WithLabelValues(KeyStateActive).Set(float64(active))
	m.keys.WithLabelValues(KeyStateInactive).Set(float64(inactive))
}
