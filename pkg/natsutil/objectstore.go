package natsutil

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// ObjectWriter writes whole objects into a JetStream object-store bucket.
// It implements the broadcaster's ObjectSink.
type ObjectWriter struct {
	store jetstream.ObjectStore
}

// NewObjectWriter opens (or creates) the named bucket and returns a
// writer bound to it.
func NewObjectWriter(ctx context.Context, js jetstream.JetStream, bucket string) (*ObjectWriter, error) {
	store, err := js.ObjectStore(ctx, bucket)
	if err != nil {
		store, err = js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{Bucket: bucket})
		if err != nil {
			return nil, fmt.Errorf("failed to open object store %s: %w", bucket, err)
		}
	}

	return &ObjectWriter{store: store}, nil
}

// Put stores one object under the given key, replacing any previous
// object with the same name.
func (w *ObjectWriter) Put(ctx context.Context, key string, payload []byte) error {
	if _, err := w.store.PutBytes(ctx, key, payload); err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}

	return nil
}
