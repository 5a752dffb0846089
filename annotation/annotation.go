/*
Package annotation implements the annotation container: a skeleton, volume layers, user
bounding boxes and metadata in the coordinate space of one dataset, together with the
archive codec that loads and saves them.

Identity fields (dataset, organization, owner, annotation id) are fixed when a container
is built or loaded.  Mutations go through container methods so layer names and bounding
box ids stay unique.  Nothing is persisted until Save is called.
*/
package annotation

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"time"

	"github.com/janelia-flyem/annotar/anno"
	"github.com/janelia-flyem/annotar/nml"
	"github.com/janelia-flyem/annotar/skeleton"
	"github.com/janelia-flyem/annotar/storage"
	"github.com/janelia-flyem/annotar/volume"
)

// Parameters are the viewer and dataset settings carried in the skeleton description.
type Parameters struct {
	Description     string
	Scale           *anno.Vector3d // nm per voxel
	Offset          *anno.Point3d
	EditPosition    *anno.Point3d
	EditRotation    *anno.Vector3d
	ZoomLevel       *float64
	Time            *int64 // ms since epoch
	TaskBoundingBox *anno.BoundingBox
}

// Annotation is the root container.
type Annotation struct {
	datasetName    string
	organizationID *string
	ownerName      *string
	annotationID   *string

	// Metadata holds free-form key/value data.  It is never nil.
	Metadata map[string]any

	// Parameters holds the dataset scale and viewer state.
	Parameters Parameters

	skel   *skeleton.Skeleton
	layers []*volume.Layer
	bboxes []UserBoundingBox

	opts options

	// unrecognized fields of the descriptor and the skeleton description
	descriptorExtra map[string]json.RawMessage
	nmlExtra        []nml.Element
	parameterExtra  []nml.Element
	experimentExtra []xml.Attr
	meta            []nml.Meta
	treeExtra       map[*skeleton.Tree][]nml.Element
	volumeExtra     map[*volume.Layer][]xml.Attr
}

// Fetcher retrieves the bytes behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type options struct {
	organizationID *string
	ownerName      *string
	annotationID   *string

	scratchDir  string
	cacheBytes  int
	compression storage.Compression
	checksum    storage.Checksum
	fetcher     Fetcher
	remoteURL   string
}

func defaultOptions() options {
	return options{
		compression: volume.DefaultCompression,
		checksum:    volume.DefaultChecksum,
		remoteURL:   anno.DefaultRemoteURL,
	}
}

// Option configures a container when it is built, loaded or downloaded.
type Option func(*options)

// WithOrganizationID sets the organization of a new container.  Loaded archives take
// their identity from the archive instead.
func WithOrganizationID(id string) Option {
	return func(o *options) { o.organizationID = &id }
}

// WithOwnerName sets the owner of a new container.
func WithOwnerName(name string) Option {
	return func(o *options) { o.ownerName = &name }
}

// WithAnnotationID sets the annotation id of a new container.
func WithAnnotationID(id string) Option {
	return func(o *options) { o.annotationID = &id }
}

// WithScratchDir sets the directory for temporary volume layer copies.
func WithScratchDir(dir string) Option {
	return func(o *options) { o.scratchDir = dir }
}

// WithChunkCache gives each volume layer a decoded-chunk cache of about numBytes.
func WithChunkCache(numBytes int) Option {
	return func(o *options) { o.cacheBytes = numBytes }
}

// WithChunkEncoding sets the compression and checksum of new volume layers.
func WithChunkEncoding(compress storage.Compression, checksum storage.Checksum) Option {
	return func(o *options) {
		o.compression = compress
		o.checksum = checksum
	}
}

// WithFetcher sets the fetcher used by Download.
func WithFetcher(f Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// OptionsFromConfig maps a loaded configuration onto container options.
func OptionsFromConfig(cfg *anno.Config) ([]Option, error) {
	if cfg == nil {
		return nil, nil
	}
	compress, err := storage.ParseCompression(cfg.Storage.Compression)
	if err != nil {
		return nil, fmt.Errorf("bad [storage] compression: %w", err)
	}
	checksum, err := storage.ParseChecksum(cfg.Storage.Checksum)
	if err != nil {
		return nil, fmt.Errorf("bad [storage] checksum: %w", err)
	}
	timeout := cfg.Remote.Timeout.Duration
	if timeout <= 0 {
		timeout = anno.DefaultRemoteTimeout
	}
	return []Option{
		WithScratchDir(cfg.Storage.ScratchDir),
		WithChunkCache(cfg.ChunkCacheBytes()),
		WithChunkEncoding(compress, checksum),
		WithFetcher(NewHTTPFetcher(timeout)),
		func(o *options) {
			if cfg.Remote.URL != "" {
				o.remoteURL = cfg.Remote.URL
			}
		},
	}, nil
}

func newAnnotation(datasetName string, opts []Option) *Annotation {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Annotation{
		datasetName: datasetName,
		Metadata:    make(map[string]any),
		skel:        skeleton.New(),
		opts:        o,
		treeExtra:   make(map[*skeleton.Tree][]nml.Element),
		volumeExtra: make(map[*volume.Layer][]xml.Attr),
	}
}

// New returns an empty container for the given dataset.
func New(datasetName string, opts ...Option) *Annotation {
	a := newAnnotation(datasetName, opts)
	a.organizationID = a.opts.organizationID
	a.ownerName = a.opts.ownerName
	a.annotationID = a.opts.annotationID
	return a
}

// DatasetName returns the name of the dataset the annotation refers to.
func (a *Annotation) DatasetName() string {
	return a.datasetName
}

// OrganizationID returns the organization owning the dataset, if known.
func (a *Annotation) OrganizationID() (string, bool) {
	return deref(a.organizationID)
}

// OwnerName returns the name of the annotation's owner, if known.
func (a *Annotation) OwnerName() (string, bool) {
	return deref(a.ownerName)
}

// AnnotationID returns the remote annotation id, if the annotation came from a server.
func (a *Annotation) AnnotationID() (string, bool) {
	return deref(a.annotationID)
}

func deref(s *string) (string, bool) {
	if s == nil {
		return "", false
	}
	return *s, true
}

// Skeleton returns the skeleton owned by the container.  It is never nil.
func (a *Annotation) Skeleton() *skeleton.Skeleton {
	return a.skel
}

// Close releases the backing stores of all volume layers.
func (a *Annotation) Close() error {
	var errs []error
	for _, l := range a.layers {
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", l, err))
		}
	}
	return errors.Join(errs...)
}

func (a *Annotation) String() string {
	return fmt.Sprintf("annotation of dataset %q (%d trees, %d volume layers, %d bounding boxes)",
		a.datasetName, a.skel.NumTrees(), len(a.layers), len(a.bboxes))
}

// timestamp returns the current time in ms, the unit used for NML times.
func timestamp() int64 {
	return time.Now().UnixMilli()
}
