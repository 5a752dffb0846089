package annotation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/janelia-flyem/annotar/anno"
	"github.com/janelia-flyem/annotar/storage"
	"github.com/janelia-flyem/annotar/volume"
)

// writeLabel stores a single label voxel at an absolute mag-1 position of the named layer.
func writeLabel(t *testing.T, a *Annotation, layerName string, pos anno.Point3d, label uint64) {
	t.Helper()
	layer, err := a.VolumeLayer(layerName)
	if err != nil {
		t.Fatalf("getting layer %q: %v", layerName, err)
	}
	mv, err := layer.FinestMag()
	if err != nil {
		t.Fatalf("finest mag of %q: %v", layerName, err)
	}
	buf := volume.NewBuffer(anno.Point3d{}, anno.Point3d{1, 1, 1}, layer.DataType(), layer.NumChannels())
	buf.SetValue(0, 0, 0, 0, label)
	if err := mv.Write(context.Background(), pos, buf); err != nil {
		t.Fatalf("writing label %d at %s of %q: %v", label, pos, layerName, err)
	}
}

// readLabel returns the label at an absolute mag-1 position of the named layer.
func readLabel(t *testing.T, a *Annotation, layerName string, pos anno.Point3d) uint64 {
	t.Helper()
	layer, err := a.VolumeLayer(layerName)
	if err != nil {
		t.Fatalf("getting layer %q: %v", layerName, err)
	}
	mv, err := layer.FinestMag()
	if err != nil {
		t.Fatalf("finest mag of %q: %v", layerName, err)
	}
	buf, err := mv.Read(context.Background(), pos, anno.Point3d{1, 1, 1})
	if err != nil {
		t.Fatalf("reading %s of %q: %v", pos, layerName, err)
	}
	return buf.Uint64At(0, 0, 0)
}

func TestNewIdentity(t *testing.T) {
	a := New("l4_sample", WithOrganizationID("scalable_minds"), WithOwnerName("Philipp Otto"))
	defer a.Close()

	if a.DatasetName() != "l4_sample" {
		t.Errorf("bad dataset name %q", a.DatasetName())
	}
	if org, found := a.OrganizationID(); !found || org != "scalable_minds" {
		t.Errorf("bad organization %q (found %t)", org, found)
	}
	if owner, found := a.OwnerName(); !found || owner != "Philipp Otto" {
		t.Errorf("bad owner %q (found %t)", owner, found)
	}
	if _, found := a.AnnotationID(); found {
		t.Errorf("expected no annotation id for new container")
	}
	if a.Metadata == nil {
		t.Errorf("expected non-nil metadata")
	}
	if a.Skeleton() == nil || a.Skeleton().NumTrees() != 0 {
		t.Errorf("expected empty skeleton")
	}
}

func TestVolumeLayerLifecycle(t *testing.T) {
	a := New("l4_sample")
	defer a.Close()

	if _, err := a.AddVolumeLayer("L"); err != nil {
		t.Fatalf("adding layer: %v", err)
	}
	names := a.VolumeLayerNames()
	if len(names) != 1 || names[0] != "L" {
		t.Fatalf("expected layer names [L], got %v", names)
	}
	_, err := a.AddVolumeLayer("L")
	if !errors.Is(err, anno.ErrDuplicateName) {
		t.Errorf("expected duplicate name error, got %v", err)
	}
	var dupErr *anno.DuplicateNameError
	if !errors.As(err, &dupErr) || dupErr.Name != "L" {
		t.Errorf("expected *DuplicateNameError for L, got %v", err)
	}

	if err := a.DeleteVolumeLayer("L"); err != nil {
		t.Fatalf("deleting layer: %v", err)
	}
	if names := a.VolumeLayerNames(); len(names) != 0 {
		t.Errorf("expected no layers after delete, got %v", names)
	}
	if err := a.DeleteVolumeLayer("L"); !errors.Is(err, anno.ErrNotFound) {
		t.Errorf("expected not found deleting absent layer, got %v", err)
	}
	if _, err := a.VolumeLayer("L"); !errors.Is(err, anno.ErrNotFound) {
		t.Errorf("expected not found getting absent layer, got %v", err)
	}
}

func TestAddVolumeLayerOptions(t *testing.T) {
	a := New("l4_sample", WithChunkEncoding(storage.Snappy, storage.NoChecksum))
	defer a.Close()

	layer, err := a.AddVolumeLayer("Volume",
		WithDataType(anno.T_uint64),
		WithLayerChunkShape(anno.Point3d{16, 16, 16}),
		WithMags(volume.Mag{2, 2, 1}, volume.Mag{4, 4, 2}),
		WithFallbackLayer("segmentation"),
		WithMappingName("agglomerate_view_70"),
	)
	if err != nil {
		t.Fatalf("adding layer: %v", err)
	}
	info := layer.Info()
	if info.DataType != anno.T_uint64 || info.ChunkShape != (anno.Point3d{16, 16, 16}) {
		t.Errorf("bad layer info %+v", info)
	}
	if info.Compression != storage.Snappy || info.Checksum != storage.NoChecksum {
		t.Errorf("expected container chunk encoding, got %s/%s", info.Compression, info.Checksum)
	}
	if fallback, found := layer.FallbackLayer(); !found || fallback != "segmentation" {
		t.Errorf("bad fallback layer %q", fallback)
	}
	mv, err := layer.FinestMag()
	if err != nil {
		t.Fatalf("finest mag: %v", err)
	}
	if mv.Mag() != (volume.Mag{2, 2, 1}) {
		t.Errorf("expected finest mag 2-2-1, got %s", mv.Mag())
	}

	second, err := a.AddVolumeLayer("Volume_2", WithLayerCompression(storage.Gzip))
	if err != nil {
		t.Fatalf("adding second layer: %v", err)
	}
	if second.ID() == layer.ID() {
		t.Errorf("expected distinct layer ids, both %d", layer.ID())
	}
	if second.Info().Compression != storage.Gzip {
		t.Errorf("expected gzip override, got %s", second.Info().Compression)
	}
}

func TestUserBoundingBoxes(t *testing.T) {
	a := New("l4_sample")
	defer a.Close()

	box1 := a.AddUserBoundingBox(anno.NewBoundingBox(anno.Point3d{2371, 4063, 1676}, anno.Point3d{891, 579, 232}), "Bounding box 1")
	if box1.ID != "1" || !box1.IsVisible || box1.Color == nil || *box1.Color != PaletteColor(0) {
		t.Errorf("bad first box %+v", box1)
	}
	color := anno.Color{0.27058825, 0.64705884, 0.19607843, 1}
	box2, err := a.AddUserBoundingBoxRecord(UserBoundingBox{
		BoundingBox: anno.NewBoundingBox(anno.Point3d{371, 4063, 1676}, anno.Point3d{891, 579, 232}),
		ID:          "7",
		Name:        "Bounding box 2",
		Color:       &color,
	})
	if err != nil {
		t.Fatalf("adding box record: %v", err)
	}
	color[0] = 0
	if box2.Color[0] != 0.27058825 {
		t.Errorf("record color aliases caller's color")
	}
	if _, err := a.AddUserBoundingBoxRecord(UserBoundingBox{ID: "7"}); !errors.Is(err, anno.ErrDuplicateID) {
		t.Errorf("expected duplicate id error, got %v", err)
	}
	box3 := a.AddUserBoundingBox(anno.NewBoundingBox(anno.Point3d{}, anno.Point3d{1, 1, 1}), "")
	if box3.ID != "8" {
		t.Errorf("expected fresh id 8, got %q", box3.ID)
	}

	boxes := a.UserBoundingBoxes()
	if len(boxes) != 3 || boxes[0].ID != "1" || boxes[1].ID != "7" || boxes[2].ID != "8" {
		t.Fatalf("bad boxes %v", boxes)
	}
	boxes[0].Name = "changed"
	if got, _ := a.UserBoundingBox("1"); got.Name != "Bounding box 1" {
		t.Errorf("UserBoundingBoxes does not return a copy")
	}

	if err := a.RemoveUserBoundingBox("7"); err != nil {
		t.Fatalf("removing box: %v", err)
	}
	if _, err := a.UserBoundingBox("7"); !errors.Is(err, anno.ErrNotFound) {
		t.Errorf("expected not found after remove, got %v", err)
	}
	if err := a.RemoveUserBoundingBox("7"); !errors.Is(err, anno.ErrNotFound) {
		t.Errorf("expected not found removing twice, got %v", err)
	}
}

func TestTemporaryVolumeLayerCopy(t *testing.T) {
	ctx := context.Background()
	scratch := t.TempDir()
	a := New("l4_sample", WithScratchDir(scratch))
	defer a.Close()

	err := a.TemporaryVolumeLayerCopy(ctx, "", func(*volume.TemporaryLayer) error { return nil })
	if !errors.Is(err, anno.ErrInvalidArgument) {
		t.Errorf("expected invalid argument without layers, got %v", err)
	}

	if _, err := a.AddVolumeLayer("Volume"); err != nil {
		t.Fatalf("adding layer: %v", err)
	}
	writeLabel(t, a, "Volume", anno.Point3d{590, 512, 16}, 7718)

	var copyDir string
	err = a.TemporaryVolumeLayerCopy(ctx, "", func(tmp *volume.TemporaryLayer) error {
		copyDir = tmp.Dir()
		mv, err := tmp.FinestMag()
		if err != nil {
			return err
		}
		buf, err := mv.Read(ctx, anno.Point3d{590, 512, 16}, anno.Point3d{1, 1, 1})
		if err != nil {
			return err
		}
		if label := buf.Uint64At(0, 0, 0); label != 7718 {
			t.Errorf("expected 7718 in copy, got %d", label)
		}
		buf.SetValue(0, 0, 0, 0, 42)
		return mv.Write(ctx, anno.Point3d{590, 512, 16}, buf)
	})
	if err != nil {
		t.Fatalf("temporary copy: %v", err)
	}
	if label := readLabel(t, a, "Volume", anno.Point3d{590, 512, 16}); label != 7718 {
		t.Errorf("write into copy leaked into container: got %d", label)
	}
	if _, err := os.Stat(copyDir); !os.IsNotExist(err) {
		t.Errorf("expected scratch dir %s to be removed, stat error %v", copyDir, err)
	}

	if _, err := a.AddVolumeLayer("Volume_2"); err != nil {
		t.Fatalf("adding second layer: %v", err)
	}
	err = a.TemporaryVolumeLayerCopy(ctx, "", func(*volume.TemporaryLayer) error { return nil })
	if !errors.Is(err, anno.ErrInvalidArgument) {
		t.Errorf("expected invalid argument with two layers and no name, got %v", err)
	}
	err = a.TemporaryVolumeLayerCopy(ctx, "missing", func(*volume.TemporaryLayer) error { return nil })
	if !errors.Is(err, anno.ErrNotFound) {
		t.Errorf("expected not found for unknown layer, got %v", err)
	}

	failure := errors.New("inside copy")
	err = a.TemporaryVolumeLayerCopy(ctx, "Volume_2", func(tmp *volume.TemporaryLayer) error {
		copyDir = tmp.Dir()
		return failure
	})
	if !errors.Is(err, failure) {
		t.Errorf("expected error from fn, got %v", err)
	}
	if _, err := os.Stat(copyDir); !os.IsNotExist(err) {
		t.Errorf("expected scratch dir %s to be removed after error", copyDir)
	}
	entries, err := os.ReadDir(scratch)
	if err != nil {
		t.Fatalf("reading scratch dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty scratch dir, found %d entries", len(entries))
	}
}

func TestOptionsFromConfig(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "annotar.toml")
	config := `
[storage]
scratch_dir = "scratch"
chunk_cache_mb = 4
compression = "lz4"
checksum = "none"

[remote]
url = "https://example.org"
timeout = "30s"
`
	if err := os.WriteFile(filename, []byte(config), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	cfg, err := anno.LoadConfig(filename)
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		t.Fatalf("mapping config: %v", err)
	}
	a := New("l4_sample", opts...)
	defer a.Close()

	if a.opts.scratchDir != filepath.Join(dir, "scratch") {
		t.Errorf("expected absolute scratch dir, got %q", a.opts.scratchDir)
	}
	if a.opts.cacheBytes != 4<<20 {
		t.Errorf("bad cache size %d", a.opts.cacheBytes)
	}
	if a.opts.compression != storage.LZ4 || a.opts.checksum != storage.NoChecksum {
		t.Errorf("bad chunk encoding %s/%s", a.opts.compression, a.opts.checksum)
	}
	if a.opts.remoteURL != "https://example.org" {
		t.Errorf("bad remote url %q", a.opts.remoteURL)
	}
	fetcher, ok := a.opts.fetcher.(*HTTPFetcher)
	if !ok || fetcher.Client.Timeout.Seconds() != 30 {
		t.Errorf("bad fetcher %#v", a.opts.fetcher)
	}

	cfg.Storage.Compression = "brotli"
	if _, err := OptionsFromConfig(cfg); err == nil {
		t.Errorf("expected error for unknown compression")
	}
}
