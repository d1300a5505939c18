package gatewayconfig

import (
	"net"

	"github.com/dogmatiq/ferrite"
)

// DefaultGRPCPort is the port on which the cargo relay server listens unless
// configured otherwise.
const DefaultGRPCPort = "8081"

var grpcListenAddress = ferrite.
	String("GATEWAY_GRPC_LISTEN_ADDRESS", "the address on which the cargo relay gRPC server listens").
	WithDefault(":"+DefaultGRPCPort).
	WithConstraint(
		"must be a network address",
		isNetworkAddress,
	).
	Optional(ferrite.WithRegistry(FerriteRegistry))

func isNetworkAddress(v string) bool {
	_, port, err := net.SplitHostPort(v)
	return err == nil && port != ""
}

func (c *Config) finalizeGRPC() {
	if c.GRPC.ListenAddress == "" {
		if c.UseEnv {
			if addr, ok := grpcListenAddress.Value(); ok {
				c.GRPC.ListenAddress = addr
			}
		} else {
			c.GRPC.ListenAddress = ":" + DefaultGRPCPort
		}
	}
}
