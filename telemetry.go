package hotrod

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/pior/hotrod/protocol"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

var (
	meter  = otel.Meter("github.com/pior/hotrod")
	tracer = otel.Tracer("github.com/pior/hotrod")
)

type clientTelem interface {
	BeginOp(ctx context.Context, opName string) (context.Context, clientTelemOp)
}

type clientTelemOp interface {
	End(ctx context.Context, err error)
}

type otelClientTelem struct {
	remoteHost string
	remotePort int

	durationMetric metric.Float64Histogram
	attribs        map[string]attribute.Set
}

func newOtelClientTelem(remoteAddr net.Addr, cacheName string) *otelClientTelem {
	remoteHost, remotePort := hostPortFromNetAddr(remoteAddr)

	durationMetric, _ := meter.Float64Histogram("hotrod.client.operation.duration",
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10))

	// The operation set is closed, so attribute sets are built once.
	attribs := make(map[string]attribute.Set, len(protocol.RequestOpcodes))
	for _, op := range protocol.RequestOpcodes {
		attribs[op.Name()] = attribute.NewSet(
			semconv.DBSystemKey.String("infinispan"),
			semconv.ServerAddress(remoteHost),
			semconv.ServerPort(remotePort),
			semconv.DBNamespace(cacheName),
			semconv.DBOperationName(op.Name()),
		)
	}

	return &otelClientTelem{
		remoteHost:     remoteHost,
		remotePort:     remotePort,
		durationMetric: durationMetric,
		attribs:        attribs,
	}
}

type otelClientTelemOp struct {
	parent    *otelClientTelem
	startTime time.Time
	opName    string
	span      trace.Span
}

func (k *otelClientTelem) BeginOp(ctx context.Context, opName string) (context.Context, clientTelemOp) {
	startTime := time.Now()

	ctx, span := tracer.Start(ctx, "hotrod/"+opName,
		trace.WithSpanKind(trace.SpanKindClient))
	if span.IsRecording() {
		span.SetAttributes(
			semconv.ServerAddress(k.remoteHost),
			semconv.ServerPort(k.remotePort),
			semconv.DBOperationName(opName))
	}

	return ctx, &otelClientTelemOp{
		parent:    k,
		startTime: startTime,
		opName:    opName,
		span:      span,
	}
}

func (k *otelClientTelemOp) End(ctx context.Context, err error) {
	dtime := time.Since(k.startTime)

	if err != nil {
		k.span.RecordError(err)
	}
	k.span.End()

	// cancelled calls are not representative of the server latency
	if ctx.Err() == nil {
		k.recordDurationMetric(ctx, dtime)
	}
}

func (k *otelClientTelemOp) recordDurationMetric(ctx context.Context, d time.Duration) {
	switch otel.GetMeterProvider().(type) {
	case metricnoop.MeterProvider:
		return
	}

	dtimeSecs := float64(d) / float64(time.Second)
	k.parent.durationMetric.Record(ctx, dtimeSecs, metric.WithAttributeSet(k.parent.attribs[k.opName]))
}

type noopClientTelem struct{}

type noopClientTelemOp struct{}

func (noopClientTelem) BeginOp(ctx context.Context, _ string) (context.Context, clientTelemOp) {
	return ctx, noopClientTelemOp{}
}

func (noopClientTelemOp) End(context.Context, error) {}

func hostPortFromNetAddr(addr net.Addr) (string, int) {
	if addr == nil {
		return "", 0
	}

	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String(), 0
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 0
	}
	return host, port
}
