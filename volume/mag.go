package volume

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/janelia-flyem/annotar/anno"
)

// Mag is a per-axis downsampling factor.  Mag{1,1,1} is full resolution.
type Mag anno.Point3d

// Mag1 is the full resolution mag.
var Mag1 = Mag{1, 1, 1}

// ParseMag parses "2", "2-2-1" or "2,2,1".
func ParseMag(s string) (Mag, error) {
	sep := "-"
	if strings.Contains(s, ",") {
		sep = ","
	}
	p, err := anno.StringToPoint3d(s, sep)
	if err != nil {
		return Mag{}, fmt.Errorf("bad mag %q: %w", s, err)
	}
	m := Mag(p)
	if !m.IsValid() {
		return Mag{}, anno.InvalidArgumentf("mag %q must have positive factors", s)
	}
	return m, nil
}

// IsValid returns true if all factors are positive.
func (m Mag) IsValid() bool {
	return m[0] > 0 && m[1] > 0 && m[2] > 0
}

// Point returns the mag as a point.
func (m Mag) Point() anno.Point3d {
	return anno.Point3d(m)
}

// String returns "2" for uniform mags and "2-2-1" otherwise.  It is also the directory
// name of the mag inside a layer.
func (m Mag) String() string {
	if m[0] == m[1] && m[1] == m[2] {
		return fmt.Sprintf("%d", m[0])
	}
	return fmt.Sprintf("%d-%d-%d", m[0], m[1], m[2])
}

func (m Mag) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Mag) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// allow [x,y,z] arrays too
		var arr [3]int32
		if err2 := json.Unmarshal(b, &arr); err2 != nil {
			return err
		}
		*m = Mag(arr)
		if !m.IsValid() {
			return anno.InvalidArgumentf("mag %v must have positive factors", arr)
		}
		return nil
	}
	parsed, err := ParseMag(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// finerThan orders mags by maximum factor, then by product of factors, then
// lexicographically by x, y, z.
func (m Mag) finerThan(m2 Mag) bool {
	if a, b := m.Point().MaxComponent(), m2.Point().MaxComponent(); a != b {
		return a < b
	}
	if a, b := m.Point().Prod(), m2.Point().Prod(); a != b {
		return a < b
	}
	return m.Point().Less(m2.Point())
}

// FinestMag returns Mag1 if present, else the finest of the given mags.
// The bool is false for an empty list.
func FinestMag(mags []Mag) (Mag, bool) {
	if len(mags) == 0 {
		return Mag{}, false
	}
	finest := mags[0]
	for _, m := range mags {
		if m == Mag1 {
			return Mag1, true
		}
		if m.finerThan(finest) {
			finest = m
		}
	}
	return finest, true
}

// SortMags sorts mags from finest to coarsest.
func SortMags(mags []Mag) {
	sort.Slice(mags, func(i, j int) bool {
		return mags[i].finerThan(mags[j])
	})
}
