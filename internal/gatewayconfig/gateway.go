package gatewayconfig

import "github.com/dogmatiq/ferrite"

var internetAddress = ferrite.
	String("GATEWAY_INTERNET_ADDRESS", "the public address at which this gateway is reachable").
	Optional(ferrite.WithRegistry(FerriteRegistry))

func (c *Config) finalizeGateway() {
	if c.Gateway.InternetAddress == "" && c.UseEnv {
		if addr, ok := internetAddress.Value(); ok {
			c.Gateway.InternetAddress = addr
		}
	}

	if c.Gateway.InternetAddress == "" {
		panic("no Internet address is configured, set GATEWAY_INTERNET_ADDRESS or provide the WithInternetAddress() option")
	}
}
