package cogrpc

import (
	"context"

	"github.com/relaymesh/gateway/internal/awala"
	"github.com/relaymesh/gateway/internal/stream"
)

const (
	// maxCargoPayloadSize bounds the combined size of the messages packed
	// into a single cargo, leaving headroom for the cargo envelope itself.
	maxCargoPayloadSize = 8 * 1024 * 1024

	// messageOverhead is the per-message framing cost counted against the
	// payload budget when messages are packed into a cargo.
	messageOverhead = 5
)

// packCargoMessages greedily packs the messages yielded by source into
// batches no larger than the cargo payload budget.
//
// A batch is flushed when adding the next message would exceed the budget. A
// single message that exceeds the budget on its own is emitted as a batch of
// one. An exhausted source yields no batches.
func packCargoMessages(
	source stream.Stream[awala.CargoMessage],
) stream.Stream[[][]byte] {
	p := &cargoPacker{source: source}
	return stream.Func[[][]byte](p.next)
}

type cargoPacker struct {
	source  stream.Stream[awala.CargoMessage]
	pending []byte
	held    bool
	done    bool
}

func (p *cargoPacker) next(ctx context.Context) ([][]byte, bool, error) {
	if p.done {
		return nil, false, nil
	}

	var (
		batch [][]byte
		size  int
	)

	for {
		var m []byte

		if p.held {
			m = p.pending
			p.pending = nil
			p.held = false
		} else {
			v, ok, err := p.source.Next(ctx)
			if err != nil {
				return nil, false, err
			}
			if !ok {
				p.done = true
				return batch, len(batch) != 0, nil
			}
			m = v.Serialized
		}

		cost := len(m) + messageOverhead

		if len(batch) != 0 && size+cost > maxCargoPayloadSize {
			p.pending = m
			p.held = true
			return batch, true, nil
		}

		batch = append(batch, m)
		size += cost
	}
}
