package gatewayconfig

import (
	"fmt"

	"github.com/dogmatiq/ferrite"
	"github.com/google/uuid"
	"github.com/relaymesh/gateway/internal/broker/natsstreaming"
)

var (
	natsURL = ferrite.
		URL("GATEWAY_NATS_URL", "the URL of the NATS server").
		Optional(ferrite.WithRegistry(FerriteRegistry))

	natsClusterID = ferrite.
			String("GATEWAY_NATS_CLUSTER_ID", "the NATS Streaming cluster to join").
			Optional(ferrite.WithRegistry(FerriteRegistry))

	natsClientID = ferrite.
			String("GATEWAY_NATS_CLIENT_ID", "a unique identifier for this gateway instance on the broker").
			Optional(ferrite.WithRegistry(FerriteRegistry))
)

func (c *Config) finalizeBroker() {
	if c.Broker.Client == nil && c.UseEnv {
		clusterID, ok := natsClusterID.Value()
		if !ok {
			panic("no broker is configured, set GATEWAY_NATS_CLUSTER_ID or provide the WithBroker() option")
		}

		clientID, ok := natsClientID.Value()
		if !ok {
			clientID = "gateway-" + uuid.NewString()
		}

		var url string
		if u, ok := natsURL.Value(); ok {
			url = u.String()
		}

		client, err := natsstreaming.Connect(clusterID, clientID, url)
		if err != nil {
			panic(fmt.Sprintf("unable to connect to the broker: %s", err))
		}

		c.Broker.Client = client
		c.Broker.Close = client.Close
	}

	if c.Broker.Client == nil {
		panic("no broker is configured, set GATEWAY_NATS_CLUSTER_ID or provide the WithBroker() option")
	}
}
