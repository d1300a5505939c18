package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/relaymesh/gateway/internal/persistence/kv"
)

// KeyValueStore is an implementation of [kv.Store] that keeps keyspaces in
// memory. It is intended for use in tests.
type KeyValueStore struct {
	m         sync.Mutex
	keyspaces map[string]*keyspaceState
}

type keyspaceState struct {
	sync.RWMutex

	values map[string][]byte

	// BeforeSet and AfterSet, when non-nil, are invoked around each Set()
	// while the keyspace lock is held. They are used to inject faults.
	BeforeSet func(k, v []byte) error
	AfterSet  func(k, v []byte) error
}

// Open returns the keyspace with the given name.
func (s *KeyValueStore) Open(ctx context.Context, name string) (kv.Keyspace, error) {
	return &keyspaceHandle{
		state: s.keyspaceState(name),
	}, ctx.Err()
}

func (s *KeyValueStore) keyspaceState(name string) *keyspaceState {
	s.m.Lock()
	defer s.m.Unlock()

	state, ok := s.keyspaces[name]
	if !ok {
		state = &keyspaceState{}
		if s.keyspaces == nil {
			s.keyspaces = map[string]*keyspaceState{}
		}
		s.keyspaces[name] = state
	}

	return state
}

// FailBeforeKeyspaceSet configures the keyspace with the given name to return
// an error on the next call to Set() with a key/value pair that satisfies
// pred. The error is returned before the set is performed.
func (s *KeyValueStore) FailBeforeKeyspaceSet(
	name string,
	pred func(k, v []byte) bool,
) {
	state := s.keyspaceState(name)

	state.Lock()
	defer state.Unlock()

	state.BeforeSet = failSetOnce(pred)
}

// FailAfterKeyspaceSet configures the keyspace with the given name to return
// an error on the next call to Set() with a key/value pair that satisfies
// pred. The error is returned after the set is performed.
func (s *KeyValueStore) FailAfterKeyspaceSet(
	name string,
	pred func(k, v []byte) bool,
) {
	state := s.keyspaceState(name)

	state.Lock()
	defer state.Unlock()

	state.AfterSet = failSetOnce(pred)
}

func failSetOnce(pred func(k, v []byte) bool) func(k, v []byte) error {
	var once sync.Once

	return func(k, v []byte) (err error) {
		if pred(k, v) {
			once.Do(func() {
				err = errFaultInjected
			})
		}

		return err
	}
}

type keyspaceHandle struct {
	state *keyspaceState
}

func (h *keyspaceHandle) Get(ctx context.Context, k []byte) ([]byte, error) {
	if h.state == nil {
		panic("keyspace is closed")
	}

	h.state.RLock()
	defer h.state.RUnlock()

	return slices.Clone(h.state.values[string(k)]), ctx.Err()
}

func (h *keyspaceHandle) Has(ctx context.Context, k []byte) (bool, error) {
	if h.state == nil {
		panic("keyspace is closed")
	}

	h.state.RLock()
	defer h.state.RUnlock()

	_, ok := h.state.values[string(k)]
	return ok, ctx.Err()
}

func (h *keyspaceHandle) Set(ctx context.Context, k, v []byte) error {
	if h.state == nil {
		panic("keyspace is closed")
	}

	v = slices.Clone(v)

	h.state.Lock()
	defer h.state.Unlock()

	if h.state.BeforeSet != nil {
		if err := h.state.BeforeSet(k, v); err != nil {
			return err
		}
	}

	if len(v) == 0 {
		delete(h.state.values, string(k))
	} else {
		if h.state.values == nil {
			h.state.values = map[string][]byte{}
		}
		h.state.values[string(k)] = v
	}

	if h.state.AfterSet != nil {
		if err := h.state.AfterSet(k, v); err != nil {
			return err
		}
	}

	return ctx.Err()
}

func (h *keyspaceHandle) Range(ctx context.Context, fn kv.RangeFunc) error {
	if h.state == nil {
		panic("keyspace is closed")
	}

	h.state.RLock()
	values := maps.Clone(h.state.values)
	h.state.RUnlock()

	for k, v := range values {
		ok, err := fn(ctx, []byte(k), slices.Clone(v))
		if !ok || err != nil {
			return err
		}
	}

	return ctx.Err()
}

func (h *keyspaceHandle) Close() error {
	h.state = nil
	return nil
}
