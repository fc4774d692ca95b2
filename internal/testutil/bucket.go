package testutil

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"

	"knot/internal/storage"
)

// MemoryBucket is an in-memory storage.Bucket with failure injection.
type MemoryBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string

	// PutErr, GetErr and DeleteErr are returned by the matching call when set.
	PutErr    error
	GetErr    error
	DeleteErr error

	Deletes []string
}

// NewMemoryBucket creates an empty bucket.
func NewMemoryBucket() *MemoryBucket {
	return &MemoryBucket{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

var _ storage.Bucket = (*MemoryBucket)(nil)

func (b *MemoryBucket) Name() string { return "memory" }

func (b *MemoryBucket) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.PutErr != nil {
		return b.PutErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.objects[key] = data
	b.types[key] = contentType
	return nil
}

func (b *MemoryBucket) Get(_ context.Context, key string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.GetErr != nil {
		return nil, b.GetErr
	}
	data, ok := b.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *MemoryBucket) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Deletes = append(b.Deletes, key)
	if b.DeleteErr != nil {
		return b.DeleteErr
	}
	delete(b.objects, key)
	delete(b.types, key)
	return nil
}

func (b *MemoryBucket) Exists(_ context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[key]
	return ok, nil
}

func (b *MemoryBucket) Ping(context.Context) error { return nil }

// Keys returns the stored keys in sorted order.
func (b *MemoryBucket) Keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ContentType returns the content type recorded for key.
func (b *MemoryBucket) ContentType(key string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.types[key]
}
