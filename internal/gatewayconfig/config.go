// Package gatewayconfig assembles the gateway's runtime configuration from
// explicit options and the environment.
package gatewayconfig

import (
	"github.com/dogmatiq/ferrite"
	"github.com/relaymesh/gateway/internal/awala"
	"github.com/relaymesh/gateway/internal/broker"
	"github.com/relaymesh/gateway/internal/persistence/kv"
	"github.com/relaymesh/gateway/internal/persistence/objectstore"
	"github.com/relaymesh/gateway/internal/telemetry"
	"google.golang.org/grpc"
)

// FerriteRegistry is a registry of the environment variables used by the
// gateway.
var FerriteRegistry = ferrite.NewRegistry(
	"relaymesh.gateway",
	"RelayMesh Gateway",
	ferrite.WithDocumentationURL("https://github.com/relaymesh/gateway#readme"),
)

// Config encapsulates the configuration of a gateway, built by applying
// option functions and, optionally, the environment.
type Config struct {
	UseEnv    bool
	Suite     awala.Suite
	Telemetry *telemetry.Provider

	Gateway struct {
		InternetAddress string
	}

	Persistence struct {
		KeyValue kv.Store
		Objects  objectstore.Client
		Bucket   string
	}

	Broker struct {
		Client broker.Client

		// Close releases the broker connection established during
		// finalization. It is nil if the client was supplied explicitly.
		Close func() error
	}

	GRPC struct {
		ListenAddress string
		ServerOptions []grpc.ServerOption
	}
}

// New returns a new gateway configuration built from the given options.
func New[Option ~func(*Config)](options []Option) Config {
	c := Config{
		Telemetry: &telemetry.Provider{},
	}

	for _, opt := range options {
		opt(&c)
	}

	c.finalize()

	return c
}

func (c *Config) finalize() {
	c.finalizeGateway()
	c.finalizePersistence()
	c.finalizeBroker()
	c.finalizeGRPC()
}
