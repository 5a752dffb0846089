package anno

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPoint3d(t *testing.T) {
	a := Point3d{10, 21, 837821}
	b := Point3d{78312, -200, 40123}
	if r := a.Add(b); r != (Point3d{78322, -179, 877944}) {
		t.Errorf("bad Add: %s", r)
	}
	if r := a.Sub(b); r != (Point3d{10 - 78312, 221, 837821 - 40123}) {
		t.Errorf("bad Sub: %s", r)
	}
	if r := a.Mod(b); r != (Point3d{10, 21, 837821 % 40123}) {
		t.Errorf("bad Mod: %s", r)
	}
	if a.String() != "(10,21,837821)" {
		t.Errorf("bad String: %s", a)
	}
	if r := a.AddScalar(10); r != (Point3d{20, 31, 837831}) {
		t.Errorf("bad AddScalar: %s", r)
	}
	if r, changed := a.Max(b); r != (Point3d{78312, 21, 837821}) || !changed {
		t.Errorf("bad Max: %s", r)
	}
	if r, _ := a.Min(b); r != (Point3d{10, -200, 40123}) {
		t.Errorf("bad Min: %s", r)
	}
	if d := (Point3d{1, 1, 1}).Distance(Point3d{4, 4, 4}); d != 5 {
		t.Errorf("expected distance 5, got %d", d)
	}
	if p := (Point3d{2, 3, 4}).Prod(); p != 24 {
		t.Errorf("expected product 24, got %d", p)
	}
}

func TestPointChunking(t *testing.T) {
	size := Point3d{32, 32, 32}
	tests := []struct {
		pt      Point3d
		chunk   ChunkPoint3d
		inChunk Point3d
	}{
		{Point3d{0, 0, 0}, ChunkPoint3d{0, 0, 0}, Point3d{0, 0, 0}},
		{Point3d{590, 512, 16}, ChunkPoint3d{18, 16, 0}, Point3d{14, 0, 16}},
		{Point3d{-1, -32, -33}, ChunkPoint3d{-1, -1, -2}, Point3d{31, 0, 31}},
	}
	for _, tc := range tests {
		if c := tc.pt.Chunk(size); c != tc.chunk {
			t.Errorf("point %s: expected chunk %s, got %s", tc.pt, tc.chunk, c)
		}
		if p := tc.pt.PointInChunk(size); p != tc.inChunk {
			t.Errorf("point %s: expected point in chunk %s, got %s", tc.pt, tc.inChunk, p)
		}
	}
	c := ChunkPoint3d{1, 2, -1}
	if c.MinPoint(size) != (Point3d{32, 64, -32}) || c.MaxPoint(size) != (Point3d{63, 95, -1}) {
		t.Errorf("bad chunk extents for %s", c)
	}
}

func TestFloorCeilDiv(t *testing.T) {
	p := Point3d{7, -7, 8}
	d := Point3d{2, 2, 2}
	if r := p.FloorDiv(d); r != (Point3d{3, -4, 4}) {
		t.Errorf("bad FloorDiv: %s", r)
	}
	if r := p.CeilDiv(d); r != (Point3d{4, -3, 4}) {
		t.Errorf("bad CeilDiv: %s", r)
	}
}

func TestStringToPoint3d(t *testing.T) {
	p, err := StringToPoint3d("2830,4356,1792", ",")
	if err != nil {
		t.Fatal(err)
	}
	if p != (Point3d{2830, 4356, 1792}) {
		t.Errorf("bad parse: %s", p)
	}
	if p, err = StringToPoint3d("2", "-"); err != nil || p != Full(2) {
		t.Errorf("expected broadcast of single value, got %s (%v)", p, err)
	}
	if _, err = StringToPoint3d("1,2", ","); err == nil {
		t.Errorf("expected error parsing 2d string")
	}
}

func TestBoundingBox(t *testing.T) {
	a := NewBoundingBox(Point3d{371, 4063, 1676}, Point3d{891, 579, 232})
	if a != (BoundingBox{TopLeft: Point3d{371, 4063, 1676}, Size: Point3d{891, 579, 232}}) {
		t.Errorf("expected structural equality")
	}
	if !a.Contains(Point3d{371, 4063, 1676}) || a.Contains(a.BottomRight()) {
		t.Errorf("bad Contains semantics for %s", a)
	}
	b := NewBoundingBox(Point3d{0, 0, 0}, Point3d{400, 4100, 1700})
	in := a.Intersect(b)
	if in != NewBoundingBox(Point3d{371, 4063, 1676}, Point3d{29, 37, 24}) {
		t.Errorf("bad intersection: %s", in)
	}
	disjoint := a.Intersect(NewBoundingBox(Point3d{0, 0, 0}, Point3d{1, 1, 1}))
	if !disjoint.IsEmpty() || disjoint.NumVoxels() != 0 {
		t.Errorf("expected empty intersection, got %s", disjoint)
	}
	aligned := NewBoundingBox(Point3d{5, 33, -1}, Point3d{1, 1, 1}).AlignWith(Full(32))
	if aligned != NewBoundingBox(Point3d{0, 32, -32}, Full(32)) {
		t.Errorf("bad alignment: %s", aligned)
	}
	ext := BoundingBox{}.Extend(a)
	if ext != a {
		t.Errorf("extending empty box should give other box, got %s", ext)
	}
}

func TestDataTypeValues(t *testing.T) {
	for _, dt := range []DataType{T_uint8, T_uint16, T_uint32, T_uint64} {
		buf := make([]byte, DataTypeBytes(dt))
		dt.PutUint64Value(buf, 200)
		if v := dt.Uint64Value(buf); v != 200 {
			t.Errorf("%s: expected 200, got %d", dt, v)
		}
		parsed, err := ParseDataType(dt.String())
		if err != nil || parsed != dt {
			t.Errorf("could not parse data type name %q", dt)
		}
	}
	if _, err := ParseDataType("uint128"); err == nil {
		t.Errorf("expected error on unknown data type")
	}
}

func TestErrorTaxonomy(t *testing.T) {
	err := NewNotFoundError("volume layer", "foo")
	if !errors.Is(err, ErrNotFound) || errors.Is(err, ErrFormat) {
		t.Errorf("NotFoundError does not match its sentinel only")
	}
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Name != "foo" {
		t.Errorf("expected to extract NotFoundError details")
	}
	wrapped := WrapFormatError("annotation.json", errors.New("unexpected EOF"))
	if !errors.Is(wrapped, ErrFormat) {
		t.Errorf("wrapped format error does not match ErrFormat")
	}
	if WrapFormatError("x", wrapped) != wrapped {
		t.Errorf("format errors should not be wrapped twice")
	}
	if !errors.Is(NewDuplicateIDError("tree", 3), ErrDuplicateID) {
		t.Errorf("DuplicateIDError does not match ErrDuplicateID")
	}
	if !errors.Is(InvalidArgumentf("bad %d", 1), ErrInvalidArgument) {
		t.Errorf("InvalidArgumentf does not match ErrInvalidArgument")
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	fname := filepath.Join(dir, "annotar.toml")
	contents := `
[logging]
logfile = "logs/annotar.log"
max_log_size = 10

[storage]
scratch_dir = "scratch"
chunk_cache_mb = 16
compression = "lz4"

[remote]
url = "http://localhost:9000"
timeout = "90s"
`
	if err := os.WriteFile(fname, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
	c, err := LoadConfig(fname)
	if err != nil {
		t.Fatalf("unable to load config: %v", err)
	}
	if c.Logging.Logfile != filepath.Join(dir, "logs", "annotar.log") {
		t.Errorf("logfile not made absolute: %s", c.Logging.Logfile)
	}
	if c.Storage.ScratchDir != filepath.Join(dir, "scratch") {
		t.Errorf("scratch dir not made absolute: %s", c.Storage.ScratchDir)
	}
	if c.ChunkCacheBytes() != 16<<20 {
		t.Errorf("bad chunk cache size %d", c.ChunkCacheBytes())
	}
	if c.Storage.Compression != "lz4" || c.Storage.Checksum != "crc32" {
		t.Errorf("expected compression override and default checksum, got %q/%q", c.Storage.Compression, c.Storage.Checksum)
	}
	if c.Remote.URL != "http://localhost:9000" || c.Remote.Timeout.Duration != 90*time.Second {
		t.Errorf("bad remote config: %+v", c.Remote)
	}
	if _, err := LoadConfig(filepath.Join(dir, "missing.toml")); err == nil {
		t.Errorf("expected error on missing config file")
	}
}
