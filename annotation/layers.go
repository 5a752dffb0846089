package annotation

import (
	"context"
	"fmt"
	"sort"

	"github.com/janelia-flyem/annotar/anno"
	"github.com/janelia-flyem/annotar/storage"
	"github.com/janelia-flyem/annotar/volume"
)

// LayerOption sets a property of a new volume layer.
type LayerOption func(*volume.LayerInfo)

// WithDataType sets the voxel type of a new layer.
func WithDataType(dt anno.DataType) LayerOption {
	return func(info *volume.LayerInfo) { info.DataType = dt }
}

// WithLayerChunkShape sets the chunk shape of a new layer.
func WithLayerChunkShape(shape anno.Point3d) LayerOption {
	return func(info *volume.LayerInfo) { info.ChunkShape = shape }
}

// WithMags sets the mags of a new layer instead of just mag 1.
func WithMags(mags ...volume.Mag) LayerOption {
	return func(info *volume.LayerInfo) { info.Mags = append([]volume.Mag(nil), mags...) }
}

// WithFallbackLayer names the dataset layer supplying voxels not in the new layer.
func WithFallbackLayer(name string) LayerOption {
	return func(info *volume.LayerInfo) { info.FallbackLayer = name }
}

// WithMappingName sets the mapping applied to the new layer's labels.
func WithMappingName(name string) LayerOption {
	return func(info *volume.LayerInfo) { info.MappingName = name }
}

// WithLayerCompression overrides the container's chunk compression for a new layer.
func WithLayerCompression(compress storage.Compression) LayerOption {
	return func(info *volume.LayerInfo) { info.Compression = compress }
}

// VolumeLayerNames returns the layer names in archive order.
func (a *Annotation) VolumeLayerNames() []string {
	names := make([]string, len(a.layers))
	for i, l := range a.layers {
		names[i] = l.Name()
	}
	return names
}

// VolumeLayers returns the layers in archive order.
func (a *Annotation) VolumeLayers() []*volume.Layer {
	return append([]*volume.Layer(nil), a.layers...)
}

func (a *Annotation) layerIndex(name string) (int, bool) {
	for i, l := range a.layers {
		if l.Name() == name {
			return i, true
		}
	}
	return 0, false
}

// VolumeLayer returns the layer with the given name.
func (a *Annotation) VolumeLayer(name string) (*volume.Layer, error) {
	i, found := a.layerIndex(name)
	if !found {
		return nil, anno.NewNotFoundError("volume layer", name)
	}
	return a.layers[i], nil
}

func (a *Annotation) nextLayerID() int {
	next := 0
	for _, l := range a.layers {
		if l.ID() >= next {
			next = l.ID() + 1
		}
	}
	return next
}

// AddVolumeLayer adds an empty layer with mag 1 held in memory.  A name already in use
// returns a *anno.DuplicateNameError.
func (a *Annotation) AddVolumeLayer(name string, opts ...LayerOption) (*volume.Layer, error) {
	if _, found := a.layerIndex(name); found {
		return nil, &anno.DuplicateNameError{Kind: "volume layer", Name: name}
	}
	info := volume.DefaultLayerInfo(name)
	info.Compression = a.opts.compression
	info.Checksum = a.opts.checksum
	for _, opt := range opts {
		opt(&info)
	}
	layer, err := volume.NewLayer(a.nextLayerID(), info, storage.NewMemoryStore(), storage.NewChunkCache(a.opts.cacheBytes))
	if err != nil {
		return nil, err
	}
	a.layers = append(a.layers, layer)
	anno.Debugf("Added %s\n", layer)
	return layer, nil
}

// addLayer appends a decoded layer, enforcing unique names.
func (a *Annotation) addLayer(layer *volume.Layer) error {
	if _, found := a.layerIndex(layer.Name()); found {
		return &anno.DuplicateNameError{Kind: "volume layer", Name: layer.Name()}
	}
	for _, l := range a.layers {
		if l.ID() == layer.ID() {
			return anno.NewDuplicateIDError("volume layer", layer.ID())
		}
	}
	a.layers = append(a.layers, layer)
	sort.SliceStable(a.layers, func(i, j int) bool { return a.layers[i].ID() < a.layers[j].ID() })
	return nil
}

// DeleteVolumeLayer removes a layer and releases its store.  An unknown name returns a
// *anno.NotFoundError.
func (a *Annotation) DeleteVolumeLayer(name string) error {
	i, found := a.layerIndex(name)
	if !found {
		return anno.NewNotFoundError("volume layer", name)
	}
	layer := a.layers[i]
	a.layers = append(a.layers[:i:i], a.layers[i+1:]...)
	delete(a.volumeExtra, layer)
	if err := layer.Close(); err != nil {
		anno.Warningf("error closing deleted %s: %v\n", layer, err)
	}
	anno.Debugf("Deleted %s\n", layer)
	return nil
}

// resolveLayer returns the named layer.  An empty name selects the only layer and is an
// error if there isn't exactly one.
func (a *Annotation) resolveLayer(name string) (*volume.Layer, error) {
	if name != "" {
		return a.VolumeLayer(name)
	}
	switch len(a.layers) {
	case 1:
		return a.layers[0], nil
	case 0:
		return nil, anno.InvalidArgumentf("annotation has no volume layer")
	default:
		return nil, anno.InvalidArgumentf("annotation has %d volume layers, name one of %v", len(a.layers), a.VolumeLayerNames())
	}
}

// AcquireVolumeLayerCopy materializes a copy of the named layer in the scratch directory.
// The caller must Release it.  See TemporaryVolumeLayerCopy for the name rules.
func (a *Annotation) AcquireVolumeLayerCopy(ctx context.Context, name string) (*volume.TemporaryLayer, error) {
	layer, err := a.resolveLayer(name)
	if err != nil {
		return nil, err
	}
	return volume.AcquireCopy(ctx, layer, a.opts.scratchDir, a.opts.cacheBytes)
}

// TemporaryVolumeLayerCopy runs fn with an isolated copy of the named layer.  Reads and
// writes through the copy never change the container.  The copy is released when fn
// returns, fails or panics.  An empty name selects the only layer; an unknown name
// returns a *anno.NotFoundError.
func (a *Annotation) TemporaryVolumeLayerCopy(ctx context.Context, name string, fn func(*volume.TemporaryLayer) error) error {
	layer, err := a.resolveLayer(name)
	if err != nil {
		return err
	}
	if err := volume.WithCopy(ctx, layer, a.opts.scratchDir, a.opts.cacheBytes, fn); err != nil {
		return fmt.Errorf("temporary copy of volume layer %q: %w", layer.Name(), err)
	}
	return nil
}
