package storage

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fyrsmithlabs/projectd/internal/project"
)

var (
	// OperationsTotal counts adapter operations.
	// Labels: backend, op, result (success, error)
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "projectd",
			Subsystem: "storage",
			Name:      "operations_total",
			Help:      "Total number of storage adapter operations",
		},
		[]string{"backend", "op", "result"},
	)

	// OperationDuration tracks adapter operation latency.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "projectd",
			Subsystem: "storage",
			Name:      "operation_duration_seconds",
			Help:      "Duration of storage adapter operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "op"},
	)

	// SelectedBackend marks the backend the selector settled on
	// (1 for the active backend, 0 otherwise).
	SelectedBackend = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "projectd",
			Subsystem: "storage",
			Name:      "selected_backend",
			Help:      "Currently selected storage backend (1=active)",
		},
		[]string{"backend"},
	)
)

// markSelected points the backend gauge at name.
func markSelected(name string) {
	for _, b := range []string{BackendSQLite, BackendNATS, BackendBadger, BackendMemory} {
		v := 0.0
		if b == name {
			v = 1.0
		}
		SelectedBackend.WithLabelValues(b).Set(v)
	}
}

func observeOp(backend, op string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	OperationsTotal.WithLabelValues(backend, op, result).Inc()
	OperationDuration.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
}

// WithMetrics wraps an adapter so every operation is counted and timed
// under the adapter's own backend label.
func WithMetrics(a Adapter) Adapter {
	return &instrumentedAdapter{inner: a}
}

type instrumentedAdapter struct {
	inner Adapter
}

var _ Adapter = (*instrumentedAdapter)(nil)

func (m *instrumentedAdapter) SaveProject(ctx context.Context, p *project.State) error {
	start := time.Now()
	err := m.inner.SaveProject(ctx, p)
	observeOp(m.inner.Name(), "save", start, err)
	return err
}

func (m *instrumentedAdapter) GetProject(ctx context.Context, id string) (*project.State, error) {
	start := time.Now()
	p, err := m.inner.GetProject(ctx, id)
	observeOp(m.inner.Name(), "get", start, err)
	return p, err
}

func (m *instrumentedAdapter) DeleteProject(ctx context.Context, id string) (bool, error) {
	start := time.Now()
	found, err := m.inner.DeleteProject(ctx, id)
	observeOp(m.inner.Name(), "delete", start, err)
	return found, err
}

func (m *instrumentedAdapter) ProjectExists(ctx context.Context, id string) (bool, error) {
	start := time.Now()
	ok, err := m.inner.ProjectExists(ctx, id)
	observeOp(m.inner.Name(), "exists", start, err)
	return ok, err
}

func (m *instrumentedAdapter) ListProjects(ctx context.Context, f ListFilter) (*ListResult, error) {
	start := time.Now()
	res, err := m.inner.ListProjects(ctx, f)
	observeOp(m.inner.Name(), "list", start, err)
	return res, err
}

func (m *instrumentedAdapter) CreateProject(ctx context.Context, opts project.CreateOptions) (*project.State, error) {
	start := time.Now()
	p, err := m.inner.CreateProject(ctx, opts)
	observeOp(m.inner.Name(), "create", start, err)
	return p, err
}

func (m *instrumentedAdapter) Name() string {
	return m.inner.Name()
}

func (m *instrumentedAdapter) Close() error {
	return m.inner.Close()
}
