package gateway

import (
	"log/slog"

	"github.com/relaymesh/gateway/internal/broker"
	"github.com/relaymesh/gateway/internal/gatewayconfig"
	"github.com/relaymesh/gateway/internal/persistence/kv"
	"github.com/relaymesh/gateway/internal/persistence/objectstore"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
)

// An Option configures the behavior of a [Gateway].
type Option func(*gatewayconfig.Config)

// WithOptionsFromEnvironment is an option that configures the gateway using
// the environment variables in [FerriteRegistry].
//
// Any explicit options passed to [New] take precedence over options from the
// environment.
func WithOptionsFromEnvironment() Option {
	return func(cfg *gatewayconfig.Config) {
		cfg.UseEnv = true
	}
}

// WithInternetAddress is an [Option] that sets the public address at which
// this gateway is reachable.
func WithInternetAddress(addr string) Option {
	if addr == "" {
		panic("internet address must not be empty")
	}

	return func(cfg *gatewayconfig.Config) {
		cfg.Gateway.InternetAddress = addr
	}
}

// WithKeyValueStore is an [Option] that sets the key/value store in which
// the gateway keeps its ledgers and certificates.
func WithKeyValueStore(s kv.Store) Option {
	return func(cfg *gatewayconfig.Config) {
		cfg.Persistence.KeyValue = s
	}
}

// WithObjectStore is an [Option] that sets the object store in which the
// gateway keeps parcels, and the bucket that holds them.
func WithObjectStore(c objectstore.Client, bucket string) Option {
	return func(cfg *gatewayconfig.Config) {
		cfg.Persistence.Objects = c
		cfg.Persistence.Bucket = bucket
	}
}

// WithBroker is an [Option] that sets the message broker on which the
// gateway announces parcels.
func WithBroker(c broker.Client) Option {
	return func(cfg *gatewayconfig.Config) {
		cfg.Broker.Client = c
	}
}

// WithLogger is an [Option] that sets the structured logger used by the
// gateway.
func WithLogger(l *slog.Logger) Option {
	if l == nil {
		panic("logger must not be nil")
	}

	return func(cfg *gatewayconfig.Config) {
		cfg.Telemetry.Logger = l
	}
}

// WithTracerProvider is an [Option] that sets the OpenTelemetry tracer
// provider used by the gateway.
func WithTracerProvider(p trace.TracerProvider) Option {
	if p == nil {
		panic("tracer provider must not be nil")
	}

	return func(cfg *gatewayconfig.Config) {
		cfg.Telemetry.TracerProvider = p
	}
}

// WithMetricProvider is an [Option] that sets the OpenTelemetry meter
// provider used by the gateway.
func WithMetricProvider(p metric.MeterProvider) Option {
	if p == nil {
		panic("metric provider must not be nil")
	}

	return func(cfg *gatewayconfig.Config) {
		cfg.Telemetry.MeterProvider = p
	}
}

// WithGRPCListenAddress is an [Option] that sets the network address on
// which the cargo relay server listens.
func WithGRPCListenAddress(addr string) Option {
	return func(cfg *gatewayconfig.Config) {
		cfg.GRPC.ListenAddress = addr
	}
}

// WithGRPCServerOptions is an [Option] that sets additional gRPC options for
// the cargo relay server.
func WithGRPCServerOptions(options ...grpc.ServerOption) Option {
	return func(cfg *gatewayconfig.Config) {
		cfg.GRPC.ServerOptions = append(cfg.GRPC.ServerOptions, options...)
	}
}
