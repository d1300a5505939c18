package stream

import "context"

// A Stream is a pull-based sequence of values produced lazily by a pipeline
// stage.
//
// Streams are not safe for concurrent use. A stage that needs to release
// resources when its consumer stops early should do so when ctx is canceled.
type Stream[T any] interface {
	// Next returns the next value in the stream.
	//
	// ok is false once the stream is exhausted. If err is non-nil the stream
	// is broken and must not be consumed further.
	Next(ctx context.Context) (v T, ok bool, err error)
}

// Func adapts a function to the Stream interface.
type Func[T any] func(ctx context.Context) (T, bool, error)

// Next returns the next value in the stream.
func (fn Func[T]) Next(ctx context.Context) (T, bool, error) {
	return fn(ctx)
}

// FromSlice returns a stream that yields the elements of values in order.
func FromSlice[T any](values []T) Stream[T] {
	i := 0
	return Func[T](func(ctx context.Context) (v T, ok bool, err error) {
		if err := ctx.Err(); err != nil {
			return v, false, err
		}
		if i == len(values) {
			return v, false, nil
		}
		v = values[i]
		i++
		return v, true, nil
	})
}

// FromChannel returns a stream that yields values received from ch until it
// is closed or ctx is canceled.
func FromChannel[T any](ch <-chan T) Stream[T] {
	return Func[T](func(ctx context.Context) (v T, ok bool, err error) {
		select {
		case <-ctx.Done():
			return v, false, ctx.Err()
		case v, ok = <-ch:
			return v, ok, nil
		}
	})
}

// Concat returns a stream that yields the values of each input stream in
// turn, exhausting one before moving to the next.
func Concat[T any](streams ...Stream[T]) Stream[T] {
	return Func[T](func(ctx context.Context) (v T, ok bool, err error) {
		for len(streams) != 0 {
			v, ok, err = streams[0].Next(ctx)
			if ok || err != nil {
				return v, ok, err
			}
			streams = streams[1:]
		}
		return v, false, nil
	})
}

// Fail returns a stream that yields no values and fails with err.
func Fail[T any](err error) Stream[T] {
	return Func[T](func(context.Context) (v T, ok bool, _ error) {
		return v, false, err
	})
}

// Collect drains s into a slice.
func Collect[T any](ctx context.Context, s Stream[T]) ([]T, error) {
	var values []T
	for {
		v, ok, err := s.Next(ctx)
		if err != nil {
			return values, err
		}
		if !ok {
			return values, nil
		}
		values = append(values, v)
	}
}
