package annotation

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zip"

	"github.com/janelia-flyem/annotar/anno"
	"github.com/janelia-flyem/annotar/nml"
	"github.com/janelia-flyem/annotar/storage"
	"github.com/janelia-flyem/annotar/volume"
)

// volumesDir is the archive directory holding one subdirectory per volume layer.
const volumesDir = "volumes/"

var zipMagic = []byte("PK")

// archiveMode is the permission of newly saved archives.
const archiveMode os.FileMode = 0644

// Load reads an annotation from a zip archive or a plain NML file.
func Load(ctx context.Context, filename string, opts ...Option) (*Annotation, error) {
	timedLog := anno.NewTimeLog()
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, anno.NewNotFoundError("annotation file", filename)
		}
		return nil, err
	}
	a, err := decode(ctx, filepath.Base(filename), data, opts)
	if err != nil {
		return nil, err
	}
	timedLog.Infof("Loaded %s from %s (%s)", a, filename, humanize.Bytes(uint64(len(data))))
	return a, nil
}

// Decode reads an annotation from the bytes of a zip archive or a plain NML file.  Any
// malformed input returns an error matching anno.ErrFormat.
func Decode(ctx context.Context, data []byte, opts ...Option) (*Annotation, error) {
	return decode(ctx, "annotation", data, opts)
}

func decode(ctx context.Context, source string, data []byte, opts []Option) (*Annotation, error) {
	if bytes.HasPrefix(data, zipMagic) {
		return decodeZip(ctx, source, data, opts)
	}
	return decodeNML(source, data, opts)
}

// decodeNML reads a plain skeleton description.  Such annotations have no volume layers
// and no organization, owner or annotation id.
func decodeNML(source string, data []byte, opts []Option) (*Annotation, error) {
	n, err := nml.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, anno.WrapFormatError(source, err)
	}
	a := newAnnotation(n.Parameters.Experiment.Name, opts)
	if err := a.applyNML(source, n); err != nil {
		return nil, err
	}
	for _, m := range n.Meta {
		if m.Name != metaWriter {
			a.Metadata[m.Name] = m.Content
		}
	}
	if len(n.Volumes) > 0 {
		anno.Warningf("Ignoring %d volume references of plain skeleton file %s\n", len(n.Volumes), source)
	}
	return a, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func decodeZip(ctx context.Context, source string, data []byte, opts []Option) (*Annotation, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, anno.WrapFormatError(source, err)
	}

	files := make(map[string]*zip.File, len(zr.File))
	var nmlFiles []string
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		files[f.Name] = f
		if !strings.Contains(f.Name, "/") && strings.EqualFold(path.Ext(f.Name), ".nml") {
			nmlFiles = append(nmlFiles, f.Name)
		}
	}
	switch len(nmlFiles) {
	case 0:
		return nil, anno.FormatErrorf(source, "archive holds no skeleton description (.nml)")
	case 1:
	default:
		return nil, anno.FormatErrorf(source, "archive holds %d skeleton descriptions %v", len(nmlFiles), nmlFiles)
	}

	nmlData, err := readZipFile(files[nmlFiles[0]])
	if err != nil {
		return nil, anno.WrapFormatError(nmlFiles[0], err)
	}
	n, err := nml.Decode(bytes.NewReader(nmlData))
	if err != nil {
		return nil, anno.WrapFormatError(nmlFiles[0], err)
	}

	var a *Annotation
	if f, found := files[DescriptorFile]; found {
		raw, err := readZipFile(f)
		if err != nil {
			return nil, anno.WrapFormatError(DescriptorFile, err)
		}
		d, err := decodeDescriptor(raw)
		if err != nil {
			return nil, err
		}
		a = newAnnotation(d.DatasetName, opts)
		a.organizationID = d.OrganizationID
		a.ownerName = d.OwnerName
		a.annotationID = d.AnnotationID
		if a.Metadata, err = d.metadata(); err != nil {
			return nil, err
		}
		a.descriptorExtra = d.Extra
	} else {
		a = newAnnotation(n.Parameters.Experiment.Name, opts)
		if org := n.Parameters.Experiment.Organization; org != "" {
			a.organizationID = &org
		}
		a.annotationID = metaString(n, metaAnnotationID)
		a.ownerName = metaString(n, metaUsername)
		for _, m := range n.Meta {
			switch m.Name {
			case metaWriter, metaAnnotationID, metaUsername:
			default:
				a.Metadata[m.Name] = m.Content
			}
		}
	}
	if err := a.applyNML(nmlFiles[0], n); err != nil {
		return nil, err
	}

	// every layer directory must be declared by a volume element
	locations := make(map[string]nml.Volume, len(n.Volumes))
	for _, v := range n.Volumes {
		loc := strings.TrimSuffix(v.Location, "/")
		if loc == "" {
			return nil, anno.FormatErrorf(nmlFiles[0], "volume %d has no location", v.ID)
		}
		if _, dup := locations[loc]; dup {
			return nil, anno.FormatErrorf(nmlFiles[0], "two volumes stored at %s", loc)
		}
		locations[loc] = v
	}
	layerFiles := make(map[string][]*zip.File, len(locations))
	for name, f := range files {
		var declared bool
		for dir := path.Dir(name); dir != "." && dir != "/"; dir = path.Dir(dir) {
			if _, declared = locations[dir]; declared {
				layerFiles[dir] = append(layerFiles[dir], f)
				break
			}
		}
		if declared || !strings.HasPrefix(name, volumesDir) {
			continue
		}
		parts := strings.SplitN(name, "/", 3)
		if len(parts) < 3 {
			return nil, anno.FormatErrorf(source, "stray file %s in %s", name, volumesDir)
		}
		return nil, anno.FormatErrorf(source, "layer directory %s has no volume entry in %s", parts[0]+"/"+parts[1], nmlFiles[0])
	}

	for _, v := range n.Volumes {
		loc := strings.TrimSuffix(v.Location, "/")
		layer, err := a.decodeLayer(ctx, v, loc, files[loc+"/"+volume.DescriptorFile], layerFiles[loc])
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := a.addLayer(layer); err != nil {
			layer.Close()
			a.Close()
			return nil, &anno.FormatError{Source: source, Err: err}
		}
		if len(v.Unknown) > 0 {
			a.volumeExtra[layer] = v.Unknown
		}
	}
	return a, nil
}

// decodeLayer rebuilds a volume layer in memory from its archive directory.
func (a *Annotation) decodeLayer(ctx context.Context, v nml.Volume, loc string, descFile *zip.File, layerFiles []*zip.File) (*volume.Layer, error) {
	descName := loc + "/" + volume.DescriptorFile
	if descFile == nil {
		return nil, anno.FormatErrorf(descName, "missing descriptor of volume %d %q", v.ID, v.Name)
	}
	raw, err := readZipFile(descFile)
	if err != nil {
		return nil, anno.WrapFormatError(descName, err)
	}
	info, err := volume.DecodeLayerInfo(descName, raw)
	if err != nil {
		return nil, err
	}
	if v.Name != "" {
		info.Name = v.Name
	}
	if v.FallbackLayer != "" {
		info.FallbackLayer = v.FallbackLayer
	}
	if v.MappingName != "" {
		info.MappingName = v.MappingName
	}

	store := storage.NewMemoryStore()
	var numBytes uint64
	found := make(map[volume.Mag]bool)
	for _, f := range layerFiles {
		if f.Name == descName {
			continue
		}
		key := strings.TrimPrefix(f.Name, loc+"/")
		magName, _, _ := strings.Cut(key, "/")
		m, err := volume.ParseMag(magName)
		if err != nil {
			store.Close()
			return nil, anno.FormatErrorf(f.Name, "chunk outside a mag directory: %v", err)
		}
		found[m] = true
		value, err := readZipFile(f)
		if err != nil {
			store.Close()
			return nil, anno.WrapFormatError(f.Name, err)
		}
		if err := store.PutChunk(ctx, key, value); err != nil {
			store.Close()
			return nil, err
		}
		numBytes += uint64(len(value))
	}
	// a descriptor without mags takes them from the chunk directories
	if len(info.Mags) == 0 {
		for m := range found {
			info.Mags = append(info.Mags, m)
		}
		if len(info.Mags) == 0 {
			info.Mags = []volume.Mag{volume.Mag1}
		}
		volume.SortMags(info.Mags)
	}
	layer, err := volume.NewLayer(v.ID, info, store, storage.NewChunkCache(a.opts.cacheBytes))
	if err != nil {
		store.Close()
		return nil, anno.WrapFormatError(descName, err)
	}
	anno.Debugf("Decoded %s with %d files (%s)\n", layer, len(layerFiles), humanize.Bytes(numBytes))
	return layer, nil
}

// Save writes the annotation as a zip archive.  The archive is written to a temporary
// file next to filename and renamed into place, so an existing file is either replaced
// whole or left untouched.
func (a *Annotation) Save(ctx context.Context, filename string) (err error) {
	timedLog := anno.NewTimeLog()
	dir, base := filepath.Split(filename)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	// an overwritten archive keeps its permissions
	mode := archiveMode
	if fi, statErr := os.Stat(filename); statErr == nil && fi.Mode().IsRegular() {
		mode = fi.Mode().Perm()
	}
	if err = tmp.Chmod(mode); err != nil {
		return err
	}

	if err = a.Encode(ctx, tmp); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	var size int64
	if fi, statErr := tmp.Stat(); statErr == nil {
		size = fi.Size()
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Rename(tmpName, filename); err != nil {
		return err
	}
	timedLog.Infof("Saved %s to %s (%s)", a, filename, humanize.Bytes(uint64(size)))
	return nil
}

// Encode writes the annotation as a zip archive to w.  The skeleton description and the
// descriptor are checked before anything is written.
func (a *Annotation) Encode(ctx context.Context, w io.Writer) error {
	nmlData, err := nml.Marshal(a.toNML())
	if err != nil {
		return fmt.Errorf("encoding skeleton description: %w", err)
	}
	d, err := a.descriptor()
	if err != nil {
		return err
	}
	desc, err := encodeDescriptor(d)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", DescriptorFile, err)
	}

	zw := zip.NewWriter(w)
	if err := writeZipFile(zw, nmlFileName(a.datasetName), zip.Deflate, nmlData); err != nil {
		return err
	}
	if err := writeZipFile(zw, DescriptorFile, zip.Deflate, desc); err != nil {
		return err
	}

	for _, layer := range a.layers {
		if err := encodeLayer(ctx, zw, layer); err != nil {
			return err
		}
	}
	return zw.Close()
}

func encodeLayer(ctx context.Context, zw *zip.Writer, layer *volume.Layer) error {
	loc := volumeLocation(layer.ID())
	info, err := volume.EncodeLayerInfo(layer.Info())
	if err != nil {
		return fmt.Errorf("encoding descriptor of %s: %w", layer, err)
	}
	if err := writeZipFile(zw, loc+"/"+volume.DescriptorFile, zip.Deflate, info); err != nil {
		return err
	}
	keys, err := layer.Store().Keys(ctx, "")
	if err != nil {
		return fmt.Errorf("listing chunks of %s: %w", layer, err)
	}
	sort.Strings(keys)
	for _, key := range keys {
		value, err := layer.Store().GetChunk(ctx, key)
		if err != nil {
			return fmt.Errorf("reading chunk %q of %s: %w", key, layer, err)
		}
		if value == nil {
			continue
		}
		// chunk values are already compressed
		if err := writeZipFile(zw, loc+"/"+key, zip.Store, value); err != nil {
			return err
		}
	}
	return nil
}

func writeZipFile(zw *zip.Writer, name string, method uint16, data []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method})
	if err != nil {
		return fmt.Errorf("adding %s to archive: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing %s to archive: %w", name, err)
	}
	return nil
}
