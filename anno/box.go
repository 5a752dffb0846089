package anno

import "fmt"

// BoundingBox is an axis-aligned 3d box given by its top-left (minimum) corner and its size.
// Two boxes are equal (==) when both corner and size match.
type BoundingBox struct {
	TopLeft Point3d
	Size    Point3d
}

// NewBoundingBox returns a box with the given top-left corner and size.
func NewBoundingBox(topLeft, size Point3d) BoundingBox {
	return BoundingBox{TopLeft: topLeft, Size: size}
}

// BoundingBoxFromPoints returns the box spanning [minPt, maxPt) (exclusive maximum).
func BoundingBoxFromPoints(minPt, maxPt Point3d) BoundingBox {
	return BoundingBox{TopLeft: minPt, Size: maxPt.Sub(minPt)}
}

// BottomRight returns the exclusive maximum corner.
func (b BoundingBox) BottomRight() Point3d {
	return b.TopLeft.Add(b.Size)
}

// IsEmpty returns true if the box has no voxels.
func (b BoundingBox) IsEmpty() bool {
	return b.Size[0] <= 0 || b.Size[1] <= 0 || b.Size[2] <= 0
}

// NumVoxels returns the number of voxels within the box.
func (b BoundingBox) NumVoxels() int64 {
	if b.IsEmpty() {
		return 0
	}
	return b.Size.Prod()
}

// Contains returns true if the point lies inside the box.
func (b BoundingBox) Contains(p Point3d) bool {
	br := b.BottomRight()
	for dim := 0; dim < 3; dim++ {
		if p[dim] < b.TopLeft[dim] || p[dim] >= br[dim] {
			return false
		}
	}
	return true
}

// Intersect returns the overlap of two boxes.  Disjoint boxes give an empty box
// anchored at the larger top-left corner.
func (b BoundingBox) Intersect(o BoundingBox) BoundingBox {
	minPt, _ := b.TopLeft.Max(o.TopLeft)
	maxPt, _ := b.BottomRight().Min(o.BottomRight())
	size, _ := maxPt.Sub(minPt).Max(Point3d{})
	return BoundingBox{TopLeft: minPt, Size: size}
}

// Extend returns the smallest box containing both boxes.  An empty receiver returns o.
func (b BoundingBox) Extend(o BoundingBox) BoundingBox {
	if b.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return b
	}
	minPt, _ := b.TopLeft.Min(o.TopLeft)
	maxPt, _ := b.BottomRight().Max(o.BottomRight())
	return BoundingBoxFromPoints(minPt, maxPt)
}

// AlignWith expands the box outward so both corners fall on multiples of the given size.
func (b BoundingBox) AlignWith(size Point3d) BoundingBox {
	minPt := b.TopLeft.FloorDiv(size).Mult(size)
	maxPt := b.BottomRight().CeilDiv(size).Mult(size)
	return BoundingBoxFromPoints(minPt, maxPt)
}

// Padded returns the box grown by pad voxels on every side.
func (b BoundingBox) Padded(pad int32) BoundingBox {
	return BoundingBox{
		TopLeft: b.TopLeft.AddScalar(-pad),
		Size:    b.Size.AddScalar(2 * pad),
	}
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("BoundingBox(topleft=%s, size=%s)", b.TopLeft, b.Size)
}

// Color is an RGBA color with channels in [0,1].
type Color [4]float32

func (c Color) String() string {
	return fmt.Sprintf("rgba(%g,%g,%g,%g)", c[0], c[1], c[2], c[3])
}
