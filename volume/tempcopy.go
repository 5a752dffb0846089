package volume

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/twinj/uuid"

	"github.com/janelia-flyem/annotar/anno"
	"github.com/janelia-flyem/annotar/storage"
)

// TemporaryLayer is an isolated copy of a layer materialized in a scratch directory.
// Reads and writes through it never touch the source layer.  Release must be called
// to remove the scratch directory.
type TemporaryLayer struct {
	*Layer
	dir string

	once       sync.Once
	releaseErr error
}

// AcquireCopy copies all chunks of src into a new scratch directory below scratchDir
// and returns a layer over the copy.  cacheBytes sizes the copy's chunk cache; 0
// disables it.
func AcquireCopy(ctx context.Context, src *Layer, scratchDir string, cacheBytes int) (*TemporaryLayer, error) {
	if scratchDir == "" {
		scratchDir = os.TempDir()
	}
	dir := filepath.Join(scratchDir, fmt.Sprintf("annotar-layer-%x", uuid.NewV4().Bytes()))
	store, err := storage.NewFileStore(dir)
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("creating scratch copy of %s: %w", src, err)
	}
	numKeys, numBytes, err := storage.CopyAll(ctx, store, src.store, "")
	if err != nil {
		store.Close()
		os.RemoveAll(dir)
		return nil, fmt.Errorf("copying %s to scratch: %w", src, err)
	}
	layer, err := NewLayer(src.id, src.info, store, storage.NewChunkCache(cacheBytes))
	if err != nil {
		store.Close()
		os.RemoveAll(dir)
		return nil, err
	}
	anno.Debugf("Acquired scratch copy of volume layer %q in %s (%d chunks, %s)\n",
		src.Name(), dir, numKeys, humanize.Bytes(numBytes))
	return &TemporaryLayer{Layer: layer, dir: dir}, nil
}

// Dir returns the scratch directory holding the copy.
func (t *TemporaryLayer) Dir() string {
	return t.dir
}

// Release closes the copy and removes its scratch directory.  It is safe to call more
// than once; later calls return the result of the first.
func (t *TemporaryLayer) Release() error {
	t.once.Do(func() {
		closeErr := t.Layer.Close()
		if err := os.RemoveAll(t.dir); err != nil {
			t.releaseErr = fmt.Errorf("removing scratch dir %s: %w", t.dir, err)
			return
		}
		if closeErr != nil {
			t.releaseErr = closeErr
			return
		}
		anno.Debugf("Released scratch copy of volume layer %q in %s\n", t.Name(), t.dir)
	})
	return t.releaseErr
}

// WithCopy acquires a copy of src, runs fn with it and releases the copy however fn
// exits, including by panic.  An error from fn takes precedence over a release error.
func WithCopy(ctx context.Context, src *Layer, scratchDir string, cacheBytes int, fn func(*TemporaryLayer) error) (err error) {
	tmp, err := AcquireCopy(ctx, src, scratchDir, cacheBytes)
	if err != nil {
		return err
	}
	defer func() {
		if relErr := tmp.Release(); relErr != nil {
			if err == nil {
				err = relErr
			} else {
				anno.Errorf("releasing scratch copy after error: %v\n", relErr)
			}
		}
	}()
	return fn(tmp)
}
