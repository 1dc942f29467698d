package reconciler

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterScope = "github.com/rezkam/ragctl/internal/application/reconciler"

// reconcileMetrics holds the OTel instruments shared by the reconcilers and
// callbacks. Instrument creation failures are routed to the global OTel error
// handler and replaced with no-op instruments, keeping the hot path
// unconditional.
type reconcileMetrics struct {
	documentsReconciled metric.Int64Counter
	documentsFailed     metric.Int64Counter
	tasksScheduled      metric.Int64Counter
	callbacksIgnored    metric.Int64Counter
}

func newReconcileMetrics() *reconcileMetrics {
	meter := otel.Meter(meterScope)
	return &reconcileMetrics{
		documentsReconciled: int64Counter(meter, "ragctl.reconcile.documents",
			"Documents successfully reconciled per tick"),
		documentsFailed: int64Counter(meter, "ragctl.reconcile.failures",
			"Documents whose reconciliation transaction failed"),
		tasksScheduled: int64Counter(meter, "ragctl.tasks.scheduled",
			"Index tasks dispatched to the scheduler"),
		callbacksIgnored: int64Counter(meter, "ragctl.callbacks.ignored",
			"Task callbacks dropped by state or version guards"),
	}
}

func int64Counter(meter metric.Meter, name, description string) metric.Int64Counter {
	counter, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		otel.Handle(err)
		counter, _ = noop.NewMeterProvider().Meter(meterScope).Int64Counter(name)
	}
	return counter
}
