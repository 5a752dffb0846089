/*
   This file handles the voxel element types and routines that extract values from a
   slice of bytes.
*/

package anno

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
)

// DataType is the element type of a voxel value, e.g., a uint8 or a float32.
type DataType uint8

const (
	T_uint8 DataType = iota
	T_int8
	T_uint16
	T_int16
	T_uint32
	T_int32
	T_uint64
	T_int64
	T_float32
	T_float64
)

var typeBytes = map[DataType]int32{
	T_uint8:   1,
	T_int8:    1,
	T_uint16:  2,
	T_int16:   2,
	T_uint32:  4,
	T_int32:   4,
	T_uint64:  8,
	T_int64:   8,
	T_float32: 4,
	T_float64: 8,
}

var typeNames = map[DataType]string{
	T_uint8:   "uint8",
	T_int8:    "int8",
	T_uint16:  "uint16",
	T_int16:   "int16",
	T_uint32:  "uint32",
	T_int32:   "int32",
	T_uint64:  "uint64",
	T_int64:   "int64",
	T_float32: "float32",
	T_float64: "float64",
}

// DataTypeBytes returns the # of bytes for a given type.
func DataTypeBytes(t DataType) int32 {
	return typeBytes[t]
}

// ParseDataType returns the DataType for a name like "uint32".
func ParseDataType(s string) (DataType, error) {
	for t, name := range typeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown data type %q", s)
}

// IsSegmentationType returns true for unsigned integer types usable as segment ids.
func (t DataType) IsSegmentationType() bool {
	switch t {
	case T_uint8, T_uint16, T_uint32, T_uint64:
		return true
	}
	return false
}

func (t DataType) String() string {
	if name, found := typeNames[t]; found {
		return name
	}
	return fmt.Sprintf("unknown data type %d", uint8(t))
}

// MarshalJSON implements the json.Marshaler interface.
func (t DataType) MarshalJSON() ([]byte, error) {
	name, found := typeNames[t]
	if !found {
		return nil, fmt.Errorf("cannot marshal unknown data type %d", uint8(t))
	}
	return json.Marshal(name)
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (t *DataType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	dt, err := ParseDataType(s)
	if err != nil {
		return err
	}
	*t = dt
	return nil
}

// Uint64Value decodes one little-endian element of type t from b as an uint64.
// Signed values are sign-extended and floats are truncated.
func (t DataType) Uint64Value(b []byte) uint64 {
	switch t {
	case T_uint8:
		return uint64(b[0])
	case T_int8:
		return uint64(int8(b[0]))
	case T_uint16:
		return uint64(binary.LittleEndian.Uint16(b))
	case T_int16:
		return uint64(int16(binary.LittleEndian.Uint16(b)))
	case T_uint32:
		return uint64(binary.LittleEndian.Uint32(b))
	case T_int32:
		return uint64(int32(binary.LittleEndian.Uint32(b)))
	case T_uint64, T_int64:
		return binary.LittleEndian.Uint64(b)
	case T_float32:
		return uint64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case T_float64:
		return uint64(math.Float64frombits(binary.LittleEndian.Uint64(b)))
	}
	return 0
}

// PutUint64Value encodes v as one little-endian element of type t into b.
func (t DataType) PutUint64Value(b []byte, v uint64) {
	switch t {
	case T_uint8, T_int8:
		b[0] = uint8(v)
	case T_uint16, T_int16:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case T_uint32, T_int32:
		binary.LittleEndian.PutUint32(b, uint32(v))
	case T_uint64, T_int64:
		binary.LittleEndian.PutUint64(b, v)
	case T_float32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
	case T_float64:
		binary.LittleEndian.PutUint64(b, math.Float64bits(float64(v)))
	}
}
