/*
Package storage is the chunk storage engine behind volume layers.  Chunks are opaque
values addressed by slash-separated keys and held in gocloud.dev blob buckets, so the
same code serves in-memory layers (mem://), scratch copies on local disk (file://) and
remote buckets (gs://).

Values are usually produced by SerializeData, which prefixes a format byte describing the
compression and checksum so readers don't need out-of-band knowledge of the encoding.
*/
package storage

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/janelia-flyem/annotar/anno"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	"gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"
)

// ChunkStore is the interface to a backing store of chunk values.
type ChunkStore interface {
	// GetChunk returns the value stored under key or nil, nil if the key does not exist.
	GetChunk(ctx context.Context, key string) ([]byte, error)

	// PutChunk stores a value under key, replacing any previous value.
	PutChunk(ctx context.Context, key string, value []byte) error

	// DeleteChunk removes a key.  Deleting a missing key is not an error.
	DeleteChunk(ctx context.Context, key string) error

	// Keys returns all keys with the given prefix in lexicographic order.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases the store.
	Close() error

	String() string
}

// BlobStore is a ChunkStore over a gocloud.dev blob bucket.
type BlobStore struct {
	url    string
	bucket *blob.Bucket
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *BlobStore {
	return &BlobStore{url: "mem://", bucket: memblob.OpenBucket(nil)}
}

// NewFileStore returns a store rooted at the given directory, creating it if needed.
func NewFileStore(dir string) (*BlobStore, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		anno.Debugf("File store not already at path (%s). Creating ...\n", dir)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	bucket, err := fileblob.OpenBucket(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("can't open file store @ %q: %w", dir, err)
	}
	return &BlobStore{url: "file://" + dir, bucket: bucket}, nil
}

// Open returns a store for a bucket URL such as "mem://", "file:///data/layer" or
// "gs://bucket/prefix".
func Open(ctx context.Context, url string) (*BlobStore, error) {
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("can't open chunk store @ %q: %w", url, err)
	}
	anno.Debugf("Opened chunk store @ %q\n", url)
	return &BlobStore{url: url, bucket: bucket}, nil
}

func (s *BlobStore) GetChunk(ctx context.Context, key string) ([]byte, error) {
	data, err := s.bucket.ReadAll(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

func (s *BlobStore) PutChunk(ctx context.Context, key string, value []byte) error {
	return s.bucket.WriteAll(ctx, key, value, nil)
}

func (s *BlobStore) DeleteChunk(ctx context.Context, key string) error {
	err := s.bucket.Delete(ctx, key)
	if err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return err
	}
	return nil
}

func (s *BlobStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if obj.IsDir {
			continue
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

func (s *BlobStore) Close() error {
	if err := s.bucket.Close(); err != nil {
		anno.Errorf("Error on trying to close chunk store (%s): %v\n", s.url, err)
		return err
	}
	return nil
}

func (s *BlobStore) String() string {
	return fmt.Sprintf("blob chunk store @ %s", s.url)
}
