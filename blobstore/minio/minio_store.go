// Package minio implements blobstore.BlobStore for MinIO and other
// S3-compatible object storage.
//
// The access pattern mirrors the s3 package: one-shot uploads of finished
// part files and byte-range GETs sized to the row groups the query path
// asks for.
package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/hupe1980/urldex/blobstore"
	"github.com/minio/minio-go/v7"
)

// Store implements blobstore.BlobStore on a MinIO endpoint.
type Store struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewStore creates a new MinIO blob store. rootPrefix is prepended to all
// keys (e.g. "urldex/").
func NewStore(client *minio.Client, bucket, rootPrefix string) *Store {
	return &Store{
		client: client,
		bucket: bucket,
		prefix: rootPrefix,
	}
}

func (s *Store) key(name string) string {
	return path.Join(s.prefix, name)
}

// Open stats the object once; the returned blob issues a ranged GET per
// ReadAt.
func (s *Store) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	key := s.key(name)

	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, blobstore.ErrNotFound
		}
		return nil, err
	}

	return &object{store: s, key: key, size: info.Size}, nil
}

// Create returns a write handle that buffers the part and uploads it in one
// PutObject on Close. The object only becomes visible once Close returns
// nil, matching the local store's temp-and-rename discipline.
func (s *Store) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	return &upload{store: s, ctx: ctx, key: s.key(name)}, nil
}

// Delete removes an object. Deleting a missing object is not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.key(name), minio.RemoveObjectOptions{})
	if err != nil && isNotFound(err) {
		return nil
	}
	return err
}

// List returns object names under prefix, relative to the store root,
// sorted.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string

	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.key(prefix),
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		name := strings.TrimPrefix(obj.Key, s.prefix)
		name = strings.TrimPrefix(name, "/")
		if name != "" {
			names = append(names, name)
		}
	}

	sort.Strings(names)
	return names, nil
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

// object is a read handle over one immutable object.
type object struct {
	store *Store
	key   string
	size  int64
}

func (o *object) Size() int64 { return o.size }

func (o *object) Close() error { return nil }

// ReadAt fetches exactly the requested window with one ranged GET; row
// groups and the parquet footer are the only callers.
func (o *object) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("minio: negative offset %d", off)
	}
	if len(p) == 0 {
		return 0, nil
	}
	if off >= o.size {
		return 0, io.EOF
	}

	want := int64(len(p))
	if off+want > o.size {
		want = o.size - off
	}

	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(off, off+want-1); err != nil {
		return 0, err
	}

	body, err := o.store.client.GetObject(context.Background(), o.store.bucket, o.key, opts)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	n, err := io.ReadFull(body, p[:want])
	if err != nil {
		return n, err
	}
	if int64(n) < int64(len(p)) {
		return n, io.EOF
	}
	return n, nil
}

// upload buffers a part file and ships it on Close.
type upload struct {
	store  *Store
	ctx    context.Context
	key    string
	buf    bytes.Buffer
	closed bool
}

func (u *upload) Write(p []byte) (int, error) {
	if u.closed {
		return 0, io.ErrClosedPipe
	}
	return u.buf.Write(p)
}

func (u *upload) Close() error {
	if u.closed {
		return io.ErrClosedPipe
	}
	u.closed = true

	_, err := u.store.client.PutObject(u.ctx, u.store.bucket, u.key,
		bytes.NewReader(u.buf.Bytes()), int64(u.buf.Len()), minio.PutObjectOptions{})
	return err
}
