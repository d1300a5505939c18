package awsx

import "context"

// Do executes an AWS API request.
//
// dec is an optional decorator function that may mutate the request in-place
// before it is sent and return additional per-request options.
func Do[In, Out, Options any](
	ctx context.Context,
	fn func(context.Context, *In, ...func(*Options)) (*Out, error),
	dec func(*In) []func(*Options),
	in *In,
	options ...func(*Options),
) (*Out, error) {
	if dec != nil {
		options = append(options, dec(in)...)
	}

	return fn(ctx, in, options...)
}
