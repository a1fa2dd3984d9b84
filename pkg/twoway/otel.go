package twoway

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/OCAP2/twoway/pkg/twoway"

func meter(mp metric.MeterProvider) metric.Meter {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	return mp.Meter(instrumentationName)
}

type metrics struct {
	sent     metric.Int64Counter
	received metric.Int64Counter
	failed   metric.Int64Counter
	open     metric.Int64UpDownCounter
}

// newMetrics never fails; an instrument that cannot be created is replaced by a no-op.
func newMetrics(mp metric.MeterProvider) *metrics {
	m := meter(mp)
	return &metrics{
		sent:     counter(m, "twoway.messages.sent", "Values enqueued by Send"),
		received: counter(m, "twoway.messages.received", "Values returned by Recv"),
		failed:   counter(m, "twoway.send.failed", "Sends rejected because the peer is gone"),
		open:     upDownCounter(m, "twoway.endpoints.open", "Endpoints with at least one live handle"),
	}
}

func counter(m metric.Meter, name, desc string) metric.Int64Counter {
	c, err := m.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		c, _ = noop.Meter{}.Int64Counter(name)
	}
	return c
}

func upDownCounter(m metric.Meter, name, desc string) metric.Int64UpDownCounter {
	c, err := m.Int64UpDownCounter(name, metric.WithDescription(desc))
	if err != nil {
		c, _ = noop.Meter{}.Int64UpDownCounter(name)
	}
	return c
}
