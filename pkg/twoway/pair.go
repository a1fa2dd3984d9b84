package twoway

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/semaphore"

	"github.com/OCAP2/twoway/internal/channel"
)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Option configures a pair.
type Option func(*config)

type config struct {
	name          string
	logger        Logger
	meterProvider metric.MeterProvider
}

// WithName labels the pair in logs and metric attributes.
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// WithLogger sets the logger used for lifecycle and failure events.
func WithLogger(l Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMeterProvider sets the meter provider. The global OTel provider is used by default.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *config) {
		c.meterProvider = mp
	}
}

// NewPair creates two linked endpoints. Values sent on a are received on b,
// and values sent on b are received on a.
func NewPair[T any](opts ...Option) (a, b *Endpoint[T]) {
	cfg := &config{
		name:   "twoway",
		logger: nopLogger{},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	m := newMetrics(cfg.meterProvider)

	toB, fromA := channel.New[T]()
	toA, fromB := channel.New[T]()

	coreA := newCore(cfg, m, "a", toB, fromB)
	coreB := newCore(cfg, m, "b", toA, fromA)

	cfg.logger.Debug("pair created", "pair", cfg.name)

	return newHandle(coreA), newHandle(coreB)
}

func newCore[T any](cfg *config, m *metrics, side string, out channel.Sender[T], in channel.Receiver[T]) *core[T] {
	c := &core[T]{
		outgoing: out,
		incoming: in,
		recvSlot: semaphore.NewWeighted(1),
		pair:     cfg.name,
		side:     side,
		logger:   cfg.logger,
		metrics:  m,
		attrs: metric.WithAttributeSet(attribute.NewSet(
			attribute.String("pair", cfg.name),
			attribute.String("side", side),
		)),
	}
	c.refs.Store(1)
	m.open.Add(context.Background(), 1, c.attrs)
	return c
}
