/*
Package volume implements segmentation volume layers: the layer.json descriptor, mags,
typed voxel buffers and read access by absolute voxel offset through MagViews.
*/
package volume

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/janelia-flyem/annotar/anno"
	"github.com/janelia-flyem/annotar/storage"
)

// DescriptorFile is the name of the layer descriptor within a layer directory.
const DescriptorFile = "layer.json"

var (
	// DefaultChunkShape is the chunk shape of new layers.
	DefaultChunkShape = anno.Point3d{32, 32, 32}

	// DefaultCompression and DefaultChecksum set the chunk encoding of new layers.
	DefaultCompression = storage.Zstd
	DefaultChecksum    = storage.CRC32
)

//go:embed layer.schema.json
var layerSchemaJSON string

var (
	layerSchemaOnce sync.Once
	layerSchema     *jsonschema.Schema
	layerSchemaErr  error
)

func getLayerSchema() (*jsonschema.Schema, error) {
	layerSchemaOnce.Do(func() {
		layerSchema, layerSchemaErr = jsonschema.CompileString("layer.schema.json", layerSchemaJSON)
	})
	return layerSchema, layerSchemaErr
}

// jsonBox is the layer.json form of a bounding box.
type jsonBox struct {
	TopLeft anno.Point3d `json:"topLeft"`
	Size    anno.Point3d `json:"size"`
}

// LayerInfo is the layer descriptor stored as layer.json.
type LayerInfo struct {
	Name        string              `json:"name"`
	DataType    anno.DataType       `json:"dataType"`
	NumChannels int32               `json:"numChannels"`
	ChunkShape  anno.Point3d        `json:"chunkShape"`
	Compression storage.Compression `json:"compression"`
	Checksum    storage.Checksum    `json:"checksum"`
	Mags        []Mag               `json:"mags"`

	// BoundingBox spans all written voxels in mag-1 coordinates.
	BoundingBox *anno.BoundingBox `json:"-"`

	// LargestSegmentID is the largest label written, if known.
	LargestSegmentID *uint64 `json:"largestSegmentId,omitempty"`

	// FallbackLayer names a dataset layer supplying voxels not present in this layer.
	FallbackLayer string `json:"fallbackLayer,omitempty"`
	MappingName   string `json:"mappingName,omitempty"`

	// Extra holds descriptor fields not recognized by this package, preserved verbatim.
	Extra map[string]json.RawMessage `json:"-"`
}

// DefaultLayerInfo returns the descriptor of a new empty layer with a single mag 1.
func DefaultLayerInfo(name string) LayerInfo {
	return LayerInfo{
		Name:        name,
		DataType:    anno.T_uint32,
		NumChannels: 1,
		ChunkShape:  DefaultChunkShape,
		Compression: DefaultCompression,
		Checksum:    DefaultChecksum,
		Mags:        []Mag{Mag1},
	}
}

var layerInfoFields = map[string]bool{
	"name": true, "dataType": true, "numChannels": true, "chunkShape": true,
	"compression": true, "checksum": true, "mags": true, "boundingBox": true,
	"largestSegmentId": true, "fallbackLayer": true, "mappingName": true,
}

type layerInfoAlias LayerInfo

type layerInfoJSON struct {
	layerInfoAlias
	BoundingBox *jsonBox `json:"boundingBox,omitempty"`
}

func (info LayerInfo) MarshalJSON() ([]byte, error) {
	out := layerInfoJSON{layerInfoAlias: layerInfoAlias(info)}
	if info.BoundingBox != nil {
		out.BoundingBox = &jsonBox{TopLeft: info.BoundingBox.TopLeft, Size: info.BoundingBox.Size}
	}
	known, err := json.Marshal(out)
	if err != nil || len(info.Extra) == 0 {
		return known, err
	}
	merged := make(map[string]json.RawMessage, len(info.Extra)+len(layerInfoFields))
	for k, v := range info.Extra {
		if !layerInfoFields[k] {
			merged[k] = v
		}
	}
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	return json.Marshal(merged)
}

func (info *LayerInfo) UnmarshalJSON(b []byte) error {
	in := layerInfoJSON{layerInfoAlias: layerInfoAlias(DefaultLayerInfo(""))}
	in.Mags = nil
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return err
	}
	*info = LayerInfo(in.layerInfoAlias)
	if in.BoundingBox != nil {
		box := anno.NewBoundingBox(in.BoundingBox.TopLeft, in.BoundingBox.Size)
		info.BoundingBox = &box
	}
	info.Extra = nil
	for k, v := range all {
		if layerInfoFields[k] {
			continue
		}
		if info.Extra == nil {
			info.Extra = make(map[string]json.RawMessage)
		}
		info.Extra[k] = v
	}
	return nil
}

// Validate checks the descriptor for consistency.
func (info *LayerInfo) Validate() error {
	if info.Name == "" {
		return anno.InvalidArgumentf("volume layer needs a name")
	}
	if !info.DataType.IsSegmentationType() {
		return anno.InvalidArgumentf("volume layer %q has non-segmentation data type %s", info.Name, info.DataType)
	}
	if info.NumChannels < 1 {
		return anno.InvalidArgumentf("volume layer %q needs at least 1 channel, got %d", info.Name, info.NumChannels)
	}
	if info.ChunkShape[0] < 1 || info.ChunkShape[1] < 1 || info.ChunkShape[2] < 1 {
		return anno.InvalidArgumentf("volume layer %q has bad chunk shape %s", info.Name, info.ChunkShape)
	}
	seen := make(map[Mag]bool, len(info.Mags))
	for _, m := range info.Mags {
		if !m.IsValid() {
			return anno.InvalidArgumentf("volume layer %q has bad mag %v", info.Name, [3]int32(m))
		}
		if seen[m] {
			return anno.InvalidArgumentf("volume layer %q lists mag %s twice", info.Name, m)
		}
		seen[m] = true
	}
	return nil
}

// DecodeLayerInfo parses and validates a layer.json descriptor.  Any problem is
// returned as an *anno.FormatError for the given source name.
func DecodeLayerInfo(source string, data []byte) (LayerInfo, error) {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return LayerInfo{}, anno.WrapFormatError(source, err)
	}
	sch, err := getLayerSchema()
	if err != nil {
		return LayerInfo{}, fmt.Errorf("compiling layer schema: %w", err)
	}
	if err := sch.Validate(v); err != nil {
		return LayerInfo{}, anno.WrapFormatError(source, err)
	}
	var info LayerInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return LayerInfo{}, anno.WrapFormatError(source, err)
	}
	if err := info.Validate(); err != nil {
		return LayerInfo{}, anno.WrapFormatError(source, err)
	}
	return info, nil
}

// EncodeLayerInfo returns the indented layer.json form of the descriptor.
func EncodeLayerInfo(info LayerInfo) ([]byte, error) {
	data, err := json.Marshal(info)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (info LayerInfo) clone() LayerInfo {
	c := info
	c.Mags = append([]Mag(nil), info.Mags...)
	if info.BoundingBox != nil {
		box := *info.BoundingBox
		c.BoundingBox = &box
	}
	if info.LargestSegmentID != nil {
		id := *info.LargestSegmentID
		c.LargestSegmentID = &id
	}
	if info.Extra != nil {
		c.Extra = make(map[string]json.RawMessage, len(info.Extra))
		for k, v := range info.Extra {
			c.Extra[k] = v
		}
	}
	return c
}

// Layer is a volume layer: a descriptor plus the chunk store holding its voxels.
// Chunks of all mags share the store under "<mag>/z<z>/y<y>/x<x>.chunk" keys.
type Layer struct {
	id    int
	info  LayerInfo
	store storage.ChunkStore
	cache *storage.ChunkCache
}

// NewLayer returns a layer over an existing store.  The cache may be nil.
func NewLayer(id int, info LayerInfo, store storage.ChunkStore, cache *storage.ChunkCache) (*Layer, error) {
	if store == nil {
		return nil, anno.InvalidArgumentf("volume layer %q needs a chunk store", info.Name)
	}
	if err := info.Validate(); err != nil {
		return nil, err
	}
	return &Layer{id: id, info: info.clone(), store: store, cache: cache}, nil
}

// ID returns the layer id used for its location within an archive.
func (l *Layer) ID() int {
	return l.id
}

// Name returns the layer name.
func (l *Layer) Name() string {
	return l.info.Name
}

// Info returns a copy of the layer descriptor.
func (l *Layer) Info() LayerInfo {
	return l.info.clone()
}

// Store returns the backing chunk store.
func (l *Layer) Store() storage.ChunkStore {
	return l.store
}

func (l *Layer) DataType() anno.DataType {
	return l.info.DataType
}

func (l *Layer) NumChannels() int32 {
	return l.info.NumChannels
}

func (l *Layer) ChunkShape() anno.Point3d {
	return l.info.ChunkShape
}

// FallbackLayer returns the name of the fallback dataset layer, if any.
func (l *Layer) FallbackLayer() (string, bool) {
	return l.info.FallbackLayer, l.info.FallbackLayer != ""
}

// BoundingBox returns the extent of all written voxels in mag-1 coordinates.
func (l *Layer) BoundingBox() (anno.BoundingBox, bool) {
	if l.info.BoundingBox == nil {
		return anno.BoundingBox{}, false
	}
	return *l.info.BoundingBox, true
}

// LargestSegmentID returns the largest label written so far, if known.
func (l *Layer) LargestSegmentID() (uint64, bool) {
	if l.info.LargestSegmentID == nil {
		return 0, false
	}
	return *l.info.LargestSegmentID, true
}

// Mags returns the layer's mags sorted from finest to coarsest.
func (l *Layer) Mags() []Mag {
	mags := append([]Mag(nil), l.info.Mags...)
	SortMags(mags)
	return mags
}

// HasMag returns true if the layer has the given mag.
func (l *Layer) HasMag(m Mag) bool {
	for _, have := range l.info.Mags {
		if have == m {
			return true
		}
	}
	return false
}

// GetMag returns a view of the given mag.
func (l *Layer) GetMag(m Mag) (*MagView, error) {
	if !l.HasMag(m) {
		return nil, anno.NewNotFoundError("mag", fmt.Sprintf("%s of volume layer %s", m, l.info.Name))
	}
	return &MagView{layer: l, mag: m}, nil
}

// AddMag adds an empty mag to the layer.
func (l *Layer) AddMag(m Mag) (*MagView, error) {
	if !m.IsValid() {
		return nil, anno.InvalidArgumentf("bad mag %v", [3]int32(m))
	}
	if l.HasMag(m) {
		return nil, &anno.DuplicateNameError{Kind: "mag", Name: m.String()}
	}
	l.info.Mags = append(l.info.Mags, m)
	return &MagView{layer: l, mag: m}, nil
}

// FinestMag returns a view of mag (1,1,1) if present, else of the finest mag.
func (l *Layer) FinestMag() (*MagView, error) {
	m, found := FinestMag(l.info.Mags)
	if !found {
		return nil, anno.NewNotFoundError("mag", "finest of volume layer "+l.info.Name)
	}
	return &MagView{layer: l, mag: m}, nil
}

// Close releases the backing store and drops cached chunks.
func (l *Layer) Close() error {
	l.cache.Clear()
	return l.store.Close()
}

func (l *Layer) String() string {
	return fmt.Sprintf("volume layer %q (id %d, %s, %s)", l.info.Name, l.id, l.info.DataType, l.store)
}
