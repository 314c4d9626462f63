package broker

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
)

// HeadersCarrier adapts amqp.Table to OpenTelemetry's TextMapCarrier so
// trace context survives a hop through the broker.
type HeadersCarrier amqp.Table

func (c HeadersCarrier) Get(key string) string {
	if v, ok := c[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func (c HeadersCarrier) Set(key, value string) { c[key] = value }

func (c HeadersCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// InjectTraceContext stamps ctx's trace context into a fresh amqp.Table.
func InjectTraceContext(ctx context.Context) amqp.Table {
	headers := amqp.Table{}
	otel.GetTextMapPropagator().Inject(ctx, HeadersCarrier(headers))
	return headers
}

// ExtractTraceContext recovers the trace context carried in headers.
func ExtractTraceContext(ctx context.Context, headers amqp.Table) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, HeadersCarrier(headers))
}
