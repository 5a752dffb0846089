package volume

import (
	"fmt"

	"github.com/janelia-flyem/annotar/anno"
)

// Buffer is a dense block of voxels in the coordinate space of one mag.  Values are
// little-endian, channels are interleaved and x varies fastest, then y, then z.
type Buffer struct {
	Offset      anno.Point3d // voxel position of the first element in mag coordinates
	Shape       anno.Point3d
	DataType    anno.DataType
	NumChannels int32
	Data        []byte
}

// NewBuffer returns a zero-filled buffer.
func NewBuffer(offset, shape anno.Point3d, dt anno.DataType, numChannels int32) *Buffer {
	b := &Buffer{
		Offset:      offset,
		Shape:       shape,
		DataType:    dt,
		NumChannels: numChannels,
	}
	if n := b.NumVoxels(); n > 0 {
		b.Data = make([]byte, n*int64(numChannels)*int64(anno.DataTypeBytes(dt)))
	}
	return b
}

// NumVoxels returns the number of voxels in the buffer.
func (b *Buffer) NumVoxels() int64 {
	return anno.NewBoundingBox(b.Offset, b.Shape).NumVoxels()
}

// Box returns the extent of the buffer in mag coordinates.
func (b *Buffer) Box() anno.BoundingBox {
	return anno.NewBoundingBox(b.Offset, b.Shape)
}

func (b *Buffer) voxelBytes() int {
	return int(b.NumChannels) * int(anno.DataTypeBytes(b.DataType))
}

func (b *Buffer) index(c, x, y, z int32) int {
	if x < 0 || y < 0 || z < 0 || x >= b.Shape[0] || y >= b.Shape[1] || z >= b.Shape[2] {
		panic(fmt.Sprintf("voxel (%d,%d,%d) outside buffer of shape %s", x, y, z, b.Shape))
	}
	if c < 0 || c >= b.NumChannels {
		panic(fmt.Sprintf("channel %d outside buffer with %d channels", c, b.NumChannels))
	}
	voxel := (int(z)*int(b.Shape[1])+int(y))*int(b.Shape[0]) + int(x)
	return voxel*b.voxelBytes() + int(c)*int(anno.DataTypeBytes(b.DataType))
}

// ValueAt returns channel c of the voxel at (x,y,z) relative to the buffer offset.
// It panics if the position is outside the buffer.
func (b *Buffer) ValueAt(c, x, y, z int32) uint64 {
	return b.DataType.Uint64Value(b.Data[b.index(c, x, y, z):])
}

// Uint64At returns the first channel of the voxel at (x,y,z) relative to the buffer offset.
func (b *Buffer) Uint64At(x, y, z int32) uint64 {
	return b.ValueAt(0, x, y, z)
}

// SetValue sets channel c of the voxel at (x,y,z) relative to the buffer offset.
func (b *Buffer) SetValue(c, x, y, z int32, v uint64) {
	b.DataType.PutUint64Value(b.Data[b.index(c, x, y, z):], v)
}

// Fill sets every channel of every voxel to v.
func (b *Buffer) Fill(v uint64) {
	n := anno.DataTypeBytes(b.DataType)
	for i := 0; i+int(n) <= len(b.Data); i += int(n) {
		b.DataType.PutUint64Value(b.Data[i:], v)
	}
}

// MaxValue returns the largest value in the buffer.
func (b *Buffer) MaxValue() uint64 {
	var max uint64
	n := int(anno.DataTypeBytes(b.DataType))
	for i := 0; i+n <= len(b.Data); i += n {
		if v := b.DataType.Uint64Value(b.Data[i:]); v > max {
			max = v
		}
	}
	return max
}

// copyBox copies the voxels of box, given in mag coordinates and contained in both
// buffers, from src into dst.  Rows along x are contiguous so they are copied whole.
func copyBox(dst, src *Buffer, box anno.BoundingBox) {
	if box.IsEmpty() {
		return
	}
	rowBytes := int(box.Size[0]) * dst.voxelBytes()
	for z := box.TopLeft[2]; z < box.TopLeft[2]+box.Size[2]; z++ {
		for y := box.TopLeft[1]; y < box.TopLeft[1]+box.Size[1]; y++ {
			di := dst.index(0, box.TopLeft[0]-dst.Offset[0], y-dst.Offset[1], z-dst.Offset[2])
			si := src.index(0, box.TopLeft[0]-src.Offset[0], y-src.Offset[1], z-src.Offset[2])
			copy(dst.Data[di:di+rowBytes], src.Data[si:si+rowBytes])
		}
	}
}

func (b *Buffer) String() string {
	return fmt.Sprintf("%s buffer (%d channels) at %s, shape %s", b.DataType, b.NumChannels, b.Offset, b.Shape)
}
