package volume

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/janelia-flyem/annotar/anno"
	"github.com/janelia-flyem/annotar/storage"
)

// MagView gives voxel access to one mag of a layer.  Offsets and sizes passed to Read and
// Write are absolute mag-1 coordinates.  Views over the same layer may read concurrently.
type MagView struct {
	layer *Layer
	mag   Mag
}

// Mag returns the mag of the view.
func (v *MagView) Mag() Mag {
	return v.mag
}

// Layer returns the layer the view belongs to.
func (v *MagView) Layer() *Layer {
	return v.layer
}

// ChunkKey returns the store key of the chunk at the given chunk coordinate.
func ChunkKey(m Mag, c anno.ChunkPoint3d) string {
	return fmt.Sprintf("%s/z%d/y%d/x%d.chunk", m, c[2], c[1], c[0])
}

// chunkBytes is the decoded size of a full chunk.
func (v *MagView) chunkBytes() int {
	cs := v.layer.info.ChunkShape
	return int(cs.Prod()) * int(v.layer.info.NumChannels) * int(anno.DataTypeBytes(v.layer.info.DataType))
}

// getChunk returns the decoded chunk or nil if the chunk was never written.
func (v *MagView) getChunk(ctx context.Context, key string) ([]byte, error) {
	if data, found := v.layer.cache.Get(key); found {
		return data, nil
	}
	value, err := v.layer.store.GetChunk(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("reading chunk %q of %s: %w", key, v.layer, err)
	}
	if value == nil {
		return nil, nil
	}
	data, _, err := storage.DeserializeData(value, true)
	if err != nil {
		return nil, fmt.Errorf("decoding chunk %q of %s: %w", key, v.layer, err)
	}
	if len(data) != v.chunkBytes() {
		return nil, fmt.Errorf("chunk %q of %s has %d bytes, expected %d", key, v.layer, len(data), v.chunkBytes())
	}
	v.layer.cache.Set(key, data)
	return data, nil
}

func (v *MagView) chunkBuffer(c anno.ChunkPoint3d, data []byte) *Buffer {
	cs := v.layer.info.ChunkShape
	return &Buffer{
		Offset:      c.MinPoint(cs),
		Shape:       cs,
		DataType:    v.layer.info.DataType,
		NumChannels: v.layer.info.NumChannels,
		Data:        data,
	}
}

// chunkRange returns the first and last chunk coordinates overlapping a non-empty box
// given in mag coordinates.
func (v *MagView) chunkRange(box anno.BoundingBox) (first, last anno.ChunkPoint3d) {
	cs := v.layer.info.ChunkShape
	return box.TopLeft.Chunk(cs), box.BottomRight().AddScalar(-1).Chunk(cs)
}

// MagBox converts an absolute mag-1 offset and size into the box of mag voxels
// touching that region.
func (v *MagView) MagBox(absOffset, size anno.Point3d) anno.BoundingBox {
	m := v.mag.Point()
	return anno.BoundingBoxFromPoints(absOffset.FloorDiv(m), absOffset.Add(size).CeilDiv(m))
}

// Read returns the voxels of the region at the absolute mag-1 offset with the given
// mag-1 size.  The buffer covers every mag voxel touching the region, so its shape is
// size / mag for aligned requests.  Voxels never written read as 0.  Read does not
// modify the store.
func (v *MagView) Read(ctx context.Context, absOffset, size anno.Point3d) (*Buffer, error) {
	if size[0] < 0 || size[1] < 0 || size[2] < 0 {
		return nil, anno.InvalidArgumentf("negative read size %s", size)
	}
	return v.ReadBox(ctx, v.MagBox(absOffset, size))
}

// ReadBox returns the voxels of a box given in mag coordinates.
func (v *MagView) ReadBox(ctx context.Context, box anno.BoundingBox) (*Buffer, error) {
	info := v.layer.info
	buf := NewBuffer(box.TopLeft, box.Size, info.DataType, info.NumChannels)
	if box.IsEmpty() {
		return buf, nil
	}
	first, last := v.chunkRange(box)
	for cz := first[2]; cz <= last[2]; cz++ {
		for cy := first[1]; cy <= last[1]; cy++ {
			for cx := first[0]; cx <= last[0]; cx++ {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				c := anno.ChunkPoint3d{cx, cy, cz}
				data, err := v.getChunk(ctx, ChunkKey(v.mag, c))
				if err != nil {
					return nil, err
				}
				if data == nil {
					continue
				}
				chunk := v.chunkBuffer(c, data)
				copyBox(buf, chunk, box.Intersect(chunk.Box()))
			}
		}
	}
	return buf, nil
}

// Write stores buf at the absolute mag-1 offset, which must be a multiple of the mag.
// Chunks partially covered by buf are read, modified and rewritten.  The layer's bounding
// box and largest segment id are updated.  Concurrent writes to a layer are not supported.
func (v *MagView) Write(ctx context.Context, absOffset anno.Point3d, buf *Buffer) error {
	info := v.layer.info
	if buf.DataType != info.DataType || buf.NumChannels != info.NumChannels {
		return anno.InvalidArgumentf("cannot write %s into %s", buf, v.layer)
	}
	m := v.mag.Point()
	if absOffset.FloorDiv(m).Mult(m) != absOffset {
		return anno.InvalidArgumentf("offset %s not aligned with mag %s", absOffset, v.mag)
	}
	if expected := buf.NumVoxels() * int64(buf.voxelBytes()); int64(len(buf.Data)) != expected {
		return anno.InvalidArgumentf("%s holds %d bytes, expected %d", buf, len(buf.Data), expected)
	}
	src := *buf
	src.Offset = absOffset.FloorDiv(m)
	box := src.Box()
	if box.IsEmpty() {
		return nil
	}

	timedLog := anno.NewTimeLog()
	var numChunks int
	var numBytes uint64
	first, last := v.chunkRange(box)
	for cz := first[2]; cz <= last[2]; cz++ {
		for cy := first[1]; cy <= last[1]; cy++ {
			for cx := first[0]; cx <= last[0]; cx++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				c := anno.ChunkPoint3d{cx, cy, cz}
				key := ChunkKey(v.mag, c)
				old, err := v.getChunk(ctx, key)
				if err != nil {
					return err
				}
				data := make([]byte, v.chunkBytes())
				if old != nil {
					copy(data, old)
				}
				chunk := v.chunkBuffer(c, data)
				copyBox(chunk, &src, box.Intersect(chunk.Box()))

				value, err := storage.SerializeData(data, info.Compression, info.Checksum)
				if err != nil {
					return fmt.Errorf("encoding chunk %q of %s: %w", key, v.layer, err)
				}
				v.layer.cache.Del(key)
				if err := v.layer.store.PutChunk(ctx, key, value); err != nil {
					return fmt.Errorf("writing chunk %q of %s: %w", key, v.layer, err)
				}
				numChunks++
				numBytes += uint64(len(value))
			}
		}
	}

	written := anno.NewBoundingBox(box.TopLeft.Mult(m), box.Size.Mult(m))
	if v.layer.info.BoundingBox == nil {
		v.layer.info.BoundingBox = &written
	} else {
		extended := v.layer.info.BoundingBox.Extend(written)
		v.layer.info.BoundingBox = &extended
	}
	maxID := src.MaxValue()
	if cur := v.layer.info.LargestSegmentID; cur == nil || *cur < maxID {
		v.layer.info.LargestSegmentID = &maxID
	}
	timedLog.Debugf("Wrote %s to mag %s of %s: %d chunks, %s", box, v.mag, v.layer.info.Name, numChunks, humanize.Bytes(numBytes))
	return nil
}

func (v *MagView) String() string {
	return fmt.Sprintf("mag %s of %s", v.mag, v.layer)
}
