package memory

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/relaymesh/gateway/internal/persistence/objectstore"
	"github.com/relaymesh/gateway/internal/stream"
)

// ObjectStore is an implementation of [objectstore.Client] that keeps
// objects in memory. It is intended for use in tests.
type ObjectStore struct {
	m       sync.RWMutex
	buckets map[string]map[string]objectstore.Object

	// BeforeGet, when non-nil, is invoked before each GetObject() call. It is
	// used to inject faults.
	BeforeGet func(key string) error
}

// GetObject returns the object stored under key, or nil if it does not exist.
func (s *ObjectStore) GetObject(ctx context.Context, key, bucket string) (*objectstore.Object, error) {
	if s.BeforeGet != nil {
		if err := s.BeforeGet(key); err != nil {
			return nil, err
		}
	}

	s.m.RLock()
	defer s.m.RUnlock()

	obj, ok := s.buckets[bucket][key]
	if !ok {
		return nil, ctx.Err()
	}

	return &objectstore.Object{
		Body:     slices.Clone(obj.Body),
		Metadata: maps.Clone(obj.Metadata),
	}, ctx.Err()
}

// PutObject stores obj under key, replacing any existing object.
func (s *ObjectStore) PutObject(ctx context.Context, obj *objectstore.Object, key, bucket string) error {
	s.m.Lock()
	defer s.m.Unlock()

	if s.buckets == nil {
		s.buckets = map[string]map[string]objectstore.Object{}
	}
	if s.buckets[bucket] == nil {
		s.buckets[bucket] = map[string]objectstore.Object{}
	}

	s.buckets[bucket][key] = objectstore.Object{
		Body:     slices.Clone(obj.Body),
		Metadata: maps.Clone(obj.Metadata),
	}

	return ctx.Err()
}

// DeleteObject deletes the object stored under key if it exists.
func (s *ObjectStore) DeleteObject(ctx context.Context, key, bucket string) error {
	s.m.Lock()
	defer s.m.Unlock()

	delete(s.buckets[bucket], key)

	return ctx.Err()
}

// ListObjectKeys returns a stream of the keys that start with prefix.
//
// The listing is a snapshot taken on the first call to Next().
func (s *ObjectStore) ListObjectKeys(ctx context.Context, prefix, bucket string) stream.Stream[string] {
	var (
		keys     []string
		snapshot bool
	)

	return stream.Func[string](func(ctx context.Context) (string, bool, error) {
		if err := ctx.Err(); err != nil {
			return "", false, err
		}

		if !snapshot {
			s.m.RLock()
			for key := range s.buckets[bucket] {
				if strings.HasPrefix(key, prefix) {
					keys = append(keys, key)
				}
			}
			s.m.RUnlock()

			slices.Sort(keys)
			snapshot = true
		}

		if len(keys) == 0 {
			return "", false, nil
		}

		key := keys[0]
		keys = keys[1:]
		return key, true, nil
	})
}

// Exists reports whether an object is stored under key.
func (s *ObjectStore) Exists(key, bucket string) bool {
	s.m.RLock()
	defer s.m.RUnlock()

	_, ok := s.buckets[bucket][key]
	return ok
}
