package cogrpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
)

// rawFrame is a single message on the wire, passed through without
// interpretation. Cargo and CCA serializations are opaque to the transport.
type rawFrame []byte

// rawCodec is a gRPC codec that moves raw frames without marshaling.
type rawCodec struct{}

func (rawCodec) Marshal(v any) ([]byte, error) {
	f, ok := v.(*rawFrame)
	if !ok {
		return nil, fmt.Errorf("unable to marshal message of type %T", v)
	}
	return *f, nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	f, ok := v.(*rawFrame)
	if !ok {
		return fmt.Errorf("unable to unmarshal message of type %T", v)
	}
	*f = data
	return nil
}

func (rawCodec) Name() string {
	return "raw"
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: "relaymesh.cogrpc.CargoRelay",
	HandlerType: (*any)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "CollectCargo",
			Handler:       collectCargoHandler,
			ServerStreams: true,
		},
	},
}

func collectCargoHandler(srv any, ss grpc.ServerStream) error {
	return srv.(*Service).CollectCargo(&grpcCall{ss})
}

// grpcCall adapts a gRPC server stream to the Call interface.
type grpcCall struct {
	stream grpc.ServerStream
}

func (c *grpcCall) Context() context.Context {
	return c.stream.Context()
}

func (c *grpcCall) Send(cargo []byte) error {
	f := rawFrame(cargo)
	return c.stream.SendMsg(&f)
}

// Register registers the cargo relay service with reg. The server must be
// configured with [ServerOption].
func (s *Service) Register(reg grpc.ServiceRegistrar) {
	reg.RegisterService(&serviceDesc, s)
}

// ServerOption returns the server option that installs the raw-frame codec
// the cargo relay service requires.
func ServerOption() grpc.ServerOption {
	return grpc.ForceServerCodec(rawCodec{})
}
