package storage

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/janelia-flyem/annotar/anno"
)

// CopyConcurrency is the number of chunks copied in parallel by CopyAll.
var CopyConcurrency = 8

// CopyAll copies every value with the given key prefix from src into dst.  It blocks
// until all copies are done and returns the number of keys and bytes copied.
func CopyAll(ctx context.Context, dst, src ChunkStore, prefix string) (numKeys int, numBytes uint64, err error) {
	timedLog := anno.NewTimeLog()
	keys, err := src.Keys(ctx, prefix)
	if err != nil {
		return 0, 0, fmt.Errorf("listing %s: %w", src, err)
	}

	var bytesCopied uint64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(CopyConcurrency)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			val, err := src.GetChunk(gctx, key)
			if err != nil {
				return fmt.Errorf("reading %q from %s: %w", key, src, err)
			}
			if val == nil {
				return nil // deleted since listing
			}
			if err := dst.PutChunk(gctx, key, val); err != nil {
				return fmt.Errorf("writing %q to %s: %w", key, dst, err)
			}
			atomic.AddUint64(&bytesCopied, uint64(len(val)))
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return 0, 0, err
	}
	timedLog.Debugf("Copied %d chunks (%s) from %s to %s", len(keys), humanize.Bytes(bytesCopied), src, dst)
	return len(keys), bytesCopied, nil
}
