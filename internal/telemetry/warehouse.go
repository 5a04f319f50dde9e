package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/coastline/wharf/internal/dialect"
	"github.com/coastline/wharf/internal/schema"
	"github.com/coastline/wharf/internal/warehouse"
)

const warehouseScopeName = "github.com/coastline/wharf/warehouse"

// InstrumentedWarehouse wraps warehouse.Warehouse with OTel tracing and
// metrics. Every method gets a span and is counted in wharf.warehouse.*
// metrics. Use WrapWarehouse to create one; it returns the original
// repository unchanged when telemetry is disabled.
type InstrumentedWarehouse struct {
	inner  warehouse.Warehouse
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
	loaded metric.Int64Counter
}

// WrapWarehouse returns w decorated with OTel instrumentation.
// When telemetry is disabled, w is returned as-is with zero overhead.
func WrapWarehouse(w warehouse.Warehouse) warehouse.Warehouse {
	if !Enabled() {
		return w
	}
	m := Meter(warehouseScopeName)
	ops, _ := m.Int64Counter("wharf.warehouse.operations",
		metric.WithDescription("Total warehouse operations executed"),
	)
	dur, _ := m.Float64Histogram("wharf.warehouse.operation.duration",
		metric.WithDescription("Warehouse operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("wharf.warehouse.errors",
		metric.WithDescription("Total warehouse operation errors"),
	)
	loaded, _ := m.Int64Counter("wharf.records.loaded",
		metric.WithDescription("Rows written to the warehouse (inserted + updated)"),
	)
	return &InstrumentedWarehouse{
		inner:  w,
		tracer: Tracer(warehouseScopeName),
		ops:    ops,
		dur:    dur,
		errs:   errs,
		loaded: loaded,
	}
}

// op starts a span and counts the named warehouse operation.
func (w *InstrumentedWarehouse) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := w.tracer.Start(ctx, "warehouse."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	w.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (w *InstrumentedWarehouse) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	w.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

func (w *InstrumentedWarehouse) Adapter() dialect.Adapter { return w.inner.Adapter() }

func (w *InstrumentedWarehouse) Catalog() *schema.Catalog { return w.inner.Catalog() }

func (w *InstrumentedWarehouse) EnsureSchema(ctx context.Context) error {
	ctx, span, t := w.op(ctx, "EnsureSchema")
	err := w.inner.EnsureSchema(ctx)
	w.done(ctx, span, t, err)
	return err
}

func (w *InstrumentedWarehouse) Columns(ctx context.Context, table string) ([]string, error) {
	attrs := []attribute.KeyValue{attribute.String("db.table", table)}
	ctx, span, t := w.op(ctx, "Columns", attrs...)
	v, err := w.inner.Columns(ctx, table)
	w.done(ctx, span, t, err, attrs...)
	return v, err
}

func (w *InstrumentedWarehouse) InsertBatch(ctx context.Context, table string, columns []string, rows [][]string) (*warehouse.InsertResult, error) {
	attrs := []attribute.KeyValue{
		attribute.String("db.table", table),
		attribute.Int("wharf.rows", len(rows)),
	}
	ctx, span, t := w.op(ctx, "InsertBatch", attrs...)
	res, err := w.inner.InsertBatch(ctx, table, columns, rows)
	w.done(ctx, span, t, err, attrs...)
	if err == nil {
		w.loaded.Add(ctx, int64(res.Inserted+res.Updated), metric.WithAttributes(attrs...))
	}
	return res, err
}

func (w *InstrumentedWarehouse) UpsertByPrimaryKey(ctx context.Context, table string, columns []string, rows [][]string, pk string) (*warehouse.InsertResult, error) {
	attrs := []attribute.KeyValue{
		attribute.String("db.table", table),
		attribute.Int("wharf.rows", len(rows)),
	}
	ctx, span, t := w.op(ctx, "UpsertByPrimaryKey", attrs...)
	res, err := w.inner.UpsertByPrimaryKey(ctx, table, columns, rows, pk)
	w.done(ctx, span, t, err, attrs...)
	if err == nil {
		w.loaded.Add(ctx, int64(res.Inserted+res.Updated), metric.WithAttributes(attrs...))
	}
	return res, err
}

func (w *InstrumentedWarehouse) Count(ctx context.Context, table string) (int64, error) {
	attrs := []attribute.KeyValue{attribute.String("db.table", table)}
	ctx, span, t := w.op(ctx, "Count", attrs...)
	v, err := w.inner.Count(ctx, table)
	w.done(ctx, span, t, err, attrs...)
	return v, err
}

func (w *InstrumentedWarehouse) GetAll(ctx context.Context, table string, limit, offset int) ([]map[string]any, error) {
	attrs := []attribute.KeyValue{attribute.String("db.table", table)}
	ctx, span, t := w.op(ctx, "GetAll", attrs...)
	v, err := w.inner.GetAll(ctx, table, limit, offset)
	w.done(ctx, span, t, err, attrs...)
	return v, err
}

func (w *InstrumentedWarehouse) GetByID(ctx context.Context, table, pkCol, id string) (map[string]any, error) {
	attrs := []attribute.KeyValue{attribute.String("db.table", table)}
	ctx, span, t := w.op(ctx, "GetByID", attrs...)
	v, err := w.inner.GetByID(ctx, table, pkCol, id)
	w.done(ctx, span, t, err, attrs...)
	return v, err
}

func (w *InstrumentedWarehouse) Search(ctx context.Context, table, term string, cols []string, limit int) ([]map[string]any, error) {
	attrs := []attribute.KeyValue{attribute.String("db.table", table)}
	ctx, span, t := w.op(ctx, "Search", attrs...)
	v, err := w.inner.Search(ctx, table, term, cols, limit)
	w.done(ctx, span, t, err, attrs...)
	return v, err
}

var _ warehouse.Warehouse = (*InstrumentedWarehouse)(nil)
