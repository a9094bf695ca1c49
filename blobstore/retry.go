package blobstore

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/hupe1980/urldex"
)

// RetryingStore wraps a BlobStore with bounded exponential backoff on reads.
// Object-storage range reads fail transiently; retrying here keeps the query
// path free of backoff logic.
type RetryingStore struct {
	inner  BlobStore
	policy urldex.RetryPolicy
}

// NewRetryingStore wraps inner. A zero policy uses the default.
func NewRetryingStore(inner BlobStore, policy urldex.RetryPolicy) *RetryingStore {
	if policy.MaxAttempts <= 0 {
		policy = urldex.DefaultRetryPolicy
	}
	return &RetryingStore{inner: inner, policy: policy}
}

func (s *RetryingStore) Open(ctx context.Context, name string) (Blob, error) {
	var lastErr error
	for attempt := 1; attempt <= s.policy.MaxAttempts; attempt++ {
		b, err := s.inner.Open(ctx, name)
		if err == nil {
			return &retryingBlob{inner: b, store: s, ctx: ctx}, nil
		}
		if errors.Is(err, ErrNotFound) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
		if attempt < s.policy.MaxAttempts {
			select {
			case <-time.After(s.policy.Delay(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, urldex.NewTransientIO("open "+name, s.policy.MaxAttempts, lastErr)
}

// Create, Delete and List pass through; the write path has its own
// batch-level failure semantics.
func (s *RetryingStore) Create(ctx context.Context, name string) (WritableBlob, error) {
	return s.inner.Create(ctx, name)
}

func (s *RetryingStore) Delete(ctx context.Context, name string) error {
	return s.inner.Delete(ctx, name)
}

func (s *RetryingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

type retryingBlob struct {
	inner Blob
	store *RetryingStore
	ctx   context.Context
}

func (b *retryingBlob) ReadAt(p []byte, off int64) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= b.store.policy.MaxAttempts; attempt++ {
		n, err := b.inner.ReadAt(p, off)
		if err == nil || errors.Is(err, io.EOF) {
			return n, err
		}
		lastErr = err
		if b.ctx.Err() != nil {
			return n, b.ctx.Err()
		}
		if attempt < b.store.policy.MaxAttempts {
			select {
			case <-time.After(b.store.policy.Delay(attempt)):
			case <-b.ctx.Done():
				return n, b.ctx.Err()
			}
		}
	}
	return 0, urldex.NewTransientIO("read", b.store.policy.MaxAttempts, lastErr)
}

func (b *retryingBlob) Close() error { return b.inner.Close() }

func (b *retryingBlob) Size() int64 { return b.inner.Size() }
