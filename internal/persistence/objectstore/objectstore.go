package objectstore

import (
	"context"

	"github.com/relaymesh/gateway/internal/stream"
)

// An Object is the body of a stored object together with its metadata.
//
// Metadata is a flat string-to-string mapping. Implementations may restrict
// the character set of metadata keys; the gateway only uses lowercase
// alphanumeric keys with hyphens.
type Object struct {
	Body     []byte
	Metadata map[string]string
}

// Client is the interface to the gateway's object store.
type Client interface {
	// GetObject returns the object stored under key.
	//
	// It returns a nil object (and a nil error) if the key does not exist.
	GetObject(ctx context.Context, key, bucket string) (*Object, error)

	// PutObject stores obj under key, replacing any existing object.
	PutObject(ctx context.Context, obj *Object, key, bucket string) error

	// DeleteObject deletes the object stored under key if it exists.
	DeleteObject(ctx context.Context, key, bucket string) error

	// ListObjectKeys returns a lazy stream of the keys that start with
	// prefix, in an implementation-defined order.
	//
	// The listing is a snapshot: objects stored after listing begins may or
	// may not be included.
	ListObjectKeys(ctx context.Context, prefix, bucket string) stream.Stream[string]
}
