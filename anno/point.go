package anno

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Point3d is an ordered list of three 32-bit signed integers, used for voxel coordinates,
// sizes and mag factors.  It is a value type and all operations return new points.
type Point3d [3]int32

// Full returns a point with all components set to v.
func Full(v int32) Point3d {
	return Point3d{v, v, v}
}

// X, Y and Z return the respective component.
func (p Point3d) X() int32 { return p[0] }
func (p Point3d) Y() int32 { return p[1] }
func (p Point3d) Z() int32 { return p[2] }

// AddScalar adds a scalar value to each component.
func (p Point3d) AddScalar(value int32) Point3d {
	return Point3d{p[0] + value, p[1] + value, p[2] + value}
}

// DivScalar divides each component by a scalar value.
func (p Point3d) DivScalar(value int32) Point3d {
	return Point3d{p[0] / value, p[1] / value, p[2] / value}
}

// Add returns the addition of two points.
func (p Point3d) Add(p2 Point3d) Point3d {
	return Point3d{p[0] + p2[0], p[1] + p2[1], p[2] + p2[2]}
}

// Sub returns the subtraction of the passed point from the receiver.
func (p Point3d) Sub(p2 Point3d) Point3d {
	return Point3d{p[0] - p2[0], p[1] - p2[1], p[2] - p2[2]}
}

// Mod returns a point where each component is the receiver modulo the passed point's components.
func (p Point3d) Mod(p2 Point3d) Point3d {
	return Point3d{p[0] % p2[0], p[1] % p2[1], p[2] % p2[2]}
}

// Div returns the truncated division of the receiver by the passed point.
func (p Point3d) Div(p2 Point3d) Point3d {
	return Point3d{p[0] / p2[0], p[1] / p2[1], p[2] / p2[2]}
}

// FloorDiv returns the division of the receiver by the passed point rounded towards
// negative infinity.
func (p Point3d) FloorDiv(p2 Point3d) Point3d {
	var r Point3d
	for dim := 0; dim < 3; dim++ {
		r[dim] = floorDiv(p[dim], p2[dim])
	}
	return r
}

// CeilDiv returns the division of the receiver by the passed point rounded towards
// positive infinity.
func (p Point3d) CeilDiv(p2 Point3d) Point3d {
	var r Point3d
	for dim := 0; dim < 3; dim++ {
		r[dim] = -floorDiv(-p[dim], p2[dim])
	}
	return r
}

func floorDiv(a, b int32) int32 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Mult returns the component-wise multiplication of the receiver by the passed point.
func (p Point3d) Mult(p2 Point3d) Point3d {
	return Point3d{p[0] * p2[0], p[1] * p2[1], p[2] * p2[2]}
}

// Max returns a Point3d where each of its elements are the maximum of two points' elements.
func (p Point3d) Max(p2 Point3d) (Point3d, bool) {
	var changed bool
	result := p
	for dim := 0; dim < 3; dim++ {
		if p[dim] < p2[dim] {
			result[dim] = p2[dim]
			changed = true
		}
	}
	return result, changed
}

// Min returns a Point3d where each of its elements are the minimum of two points' elements.
func (p Point3d) Min(p2 Point3d) (Point3d, bool) {
	var changed bool
	result := p
	for dim := 0; dim < 3; dim++ {
		if p[dim] > p2[dim] {
			result[dim] = p2[dim]
			changed = true
		}
	}
	return result, changed
}

// MaxComponent returns the largest of the three components.
func (p Point3d) MaxComponent() int32 {
	m := p[0]
	if p[1] > m {
		m = p[1]
	}
	if p[2] > m {
		m = p[2]
	}
	return m
}

// Distance returns the integer distance (rounding down).
func (p Point3d) Distance(p2 Point3d) int32 {
	dx := float64(p[0] - p2[0])
	dy := float64(p[1] - p2[1])
	dz := float64(p[2] - p2[2])
	return int32(math.Sqrt(dx*dx + dy*dy + dz*dz))
}

// Prod returns the product of the point elements.
func (p Point3d) Prod() int64 {
	return int64(p[0]) * int64(p[1]) * int64(p[2])
}

// Less orders points lexicographically by x, then y, then z.
func (p Point3d) Less(p2 Point3d) bool {
	for dim := 0; dim < 3; dim++ {
		if p[dim] != p2[dim] {
			return p[dim] < p2[dim]
		}
	}
	return false
}

func (p Point3d) String() string {
	return fmt.Sprintf("(%d,%d,%d)", p[0], p[1], p[2])
}

// Chunk returns the chunk space coordinate of the chunk containing the point.
func (p Point3d) Chunk(size Point3d) ChunkPoint3d {
	c := p.FloorDiv(size)
	return ChunkPoint3d(c)
}

// PointInChunk returns a point in containing chunk space for the given point.
func (p Point3d) PointInChunk(size Point3d) Point3d {
	var r Point3d
	for dim := 0; dim < 3; dim++ {
		r[dim] = p[dim] - floorDiv(p[dim], size[dim])*size[dim]
	}
	return r
}

// ChunkPoint3d handles 3d signed chunk coordinates.
type ChunkPoint3d [3]int32

func (c ChunkPoint3d) String() string {
	return fmt.Sprintf("(%d,%d,%d)", c[0], c[1], c[2])
}

// MinPoint returns the smallest voxel coordinate of the given 3d chunk.
func (c ChunkPoint3d) MinPoint(size Point3d) Point3d {
	return Point3d{c[0] * size[0], c[1] * size[1], c[2] * size[2]}
}

// MaxPoint returns the maximum voxel coordinate of the given 3d chunk.
func (c ChunkPoint3d) MaxPoint(size Point3d) Point3d {
	return Point3d{
		(c[0]+1)*size[0] - 1,
		(c[1]+1)*size[1] - 1,
		(c[2]+1)*size[2] - 1,
	}
}

// StringToPoint3d parses a string like "10,20,30" into a Point3d.  A single value
// like "2" is broadcast to all three components.
func StringToPoint3d(str, separator string) (p Point3d, err error) {
	elems := strings.Split(str, separator)
	switch len(elems) {
	case 1:
		var v int64
		if v, err = strconv.ParseInt(strings.TrimSpace(elems[0]), 10, 32); err != nil {
			return
		}
		return Full(int32(v)), nil
	case 3:
		for dim, elem := range elems {
			var v int64
			if v, err = strconv.ParseInt(strings.TrimSpace(elem), 10, 32); err != nil {
				return
			}
			p[dim] = int32(v)
		}
		return
	default:
		err = fmt.Errorf("cannot parse %q into a 3d point", str)
		return
	}
}

// Vector3d is a 3d vector of floats, e.g., a voxel size in nanometers or a rotation.
type Vector3d [3]float64

// Distance returns the euclidean distance between two vectors.
func (v Vector3d) Distance(x Vector3d) float64 {
	dx := v[0] - x[0]
	dy := v[1] - x[1]
	dz := v[2] - x[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func (v Vector3d) String() string {
	return fmt.Sprintf("(%g,%g,%g)", v[0], v[1], v[2])
}
