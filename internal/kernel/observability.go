package kernel

import (
	"context"
	"time"

	"worldcore/pkg/patch"
)

// AuditStatus classifies audit entries.
type AuditStatus string

// Audit statuses.
const (
	AuditSuccess AuditStatus = "success"
	AuditDenied  AuditStatus = "denied"
	AuditError   AuditStatus = "error"
)

// AuditEntry describes one bus or kernel operation for the audit trail.
type AuditEntry struct {
	Operation     string
	Status        AuditStatus
	Namespace     patch.NamespaceID
	TransactionID patch.TransactionID
	Detail        string
	At            time.Time
}

// AuditRecorder receives audit entries. Implementations must be safe for
// concurrent use and must not block the kernel thread.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// MetricsRecorder aggregates operation timings and outcomes.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// TraceSpan terminates one traced operation.
type TraceSpan interface {
	End(err error)
}

// Tracer opens spans around bus and kernel operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// Observability bundles the optional hooks threaded through the bus and
// frame loop. Nil fields disable the corresponding hook.
type Observability struct {
	Audit   AuditRecorder
	Metrics MetricsRecorder
	Tracer  Tracer
}

func (o Observability) audit(ctx context.Context, entry AuditEntry) {
	if o.Audit == nil {
		return
	}
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	o.Audit.Record(ctx, entry)
}

func (o Observability) observe(ctx context.Context, operation string, success bool, start time.Time) {
	if o.Metrics == nil {
		return
	}
	o.Metrics.Observe(ctx, operation, success, time.Since(start))
}

func (o Observability) span(ctx context.Context, operation string) (context.Context, TraceSpan) {
	if o.Tracer == nil {
		return ctx, noopSpan{}
	}
	return o.Tracer.Start(ctx, operation)
}

type noopSpan struct{}

func (noopSpan) End(error) {}
