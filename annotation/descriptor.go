package annotation

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/blang/semver"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/janelia-flyem/annotar/anno"
)

// DescriptorFile is the name of the container descriptor within an archive.
const DescriptorFile = "annotation.json"

// DescriptorVersion is the version written into new descriptors.  Archives with another
// major version are rejected.
var DescriptorVersion = semver.MustParse("1.0.0")

//go:embed annotation.schema.json
var descriptorSchemaJSON string

var (
	descriptorSchemaOnce sync.Once
	descriptorSchema     *jsonschema.Schema
	descriptorSchemaErr  error
)

func getDescriptorSchema() (*jsonschema.Schema, error) {
	descriptorSchemaOnce.Do(func() {
		descriptorSchema, descriptorSchemaErr = jsonschema.CompileString("annotation.schema.json", descriptorSchemaJSON)
	})
	return descriptorSchema, descriptorSchemaErr
}

// descriptor is the annotation.json content.
type descriptor struct {
	Version        string                     `json:"version"`
	DatasetName    string                     `json:"datasetName"`
	OrganizationID *string                    `json:"organizationId,omitempty"`
	OwnerName      *string                    `json:"ownerName,omitempty"`
	AnnotationID   *string                    `json:"annotationId,omitempty"`
	Metadata       map[string]json.RawMessage `json:"metadata,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

var descriptorFields = map[string]bool{
	"version": true, "datasetName": true, "organizationId": true,
	"ownerName": true, "annotationId": true, "metadata": true,
}

func validateDescriptor(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	sch, err := getDescriptorSchema()
	if err != nil {
		return fmt.Errorf("compiling descriptor schema: %w", err)
	}
	return sch.Validate(v)
}

func decodeDescriptor(data []byte) (*descriptor, error) {
	if err := validateDescriptor(data); err != nil {
		return nil, anno.WrapFormatError(DescriptorFile, err)
	}

	var d descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, anno.WrapFormatError(DescriptorFile, err)
	}
	version, err := semver.Parse(d.Version)
	if err != nil {
		return nil, anno.WrapFormatError(DescriptorFile, err)
	}
	if version.Major != DescriptorVersion.Major {
		return nil, anno.FormatErrorf(DescriptorFile, "unsupported version %s, expected %d.x", version, DescriptorVersion.Major)
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, anno.WrapFormatError(DescriptorFile, err)
	}
	for k, raw := range all {
		if descriptorFields[k] {
			continue
		}
		if d.Extra == nil {
			d.Extra = make(map[string]json.RawMessage)
		}
		d.Extra[k] = raw
	}
	return &d, nil
}

// metadata returns the decoded metadata values.  Numbers written without a fraction or
// exponent become int, all others float64.
func (d *descriptor) metadata() (map[string]any, error) {
	values := make(map[string]any, len(d.Metadata))
	for k, raw := range d.Metadata {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, anno.WrapFormatError(DescriptorFile, err)
		}
		if n, ok := v.(json.Number); ok {
			num, err := numberValue(n)
			if err != nil {
				return nil, anno.FormatErrorf(DescriptorFile, "metadata %q: %v", k, err)
			}
			v = num
		}
		values[k] = v
	}
	return values, nil
}

func numberValue(n json.Number) (any, error) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 0); err == nil {
			return int(i), nil
		}
	}
	return n.Float64()
}

// metadataValue encodes one metadata value.  Floats always carry a fraction so they
// decode as floats again.
func metadataValue(v any) (json.RawMessage, error) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	default:
		return json.Marshal(v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("unsupported number %v", f)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e21 {
		return json.RawMessage(strconv.FormatFloat(f, 'f', 1, 64)), nil
	}
	return json.Marshal(f)
}

// encodeDescriptor returns the indented annotation.json bytes.  A descriptor that would
// not load again returns an error matching anno.ErrInvalidArgument.
func encodeDescriptor(d *descriptor) ([]byte, error) {
	known, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	if len(d.Extra) > 0 {
		merged := make(map[string]json.RawMessage, len(d.Extra)+len(descriptorFields))
		for k, v := range d.Extra {
			if !descriptorFields[k] {
				merged[k] = v
			}
		}
		if err := json.Unmarshal(known, &merged); err != nil {
			return nil, err
		}
		if known, err = json.Marshal(merged); err != nil {
			return nil, err
		}
	}
	if err := validateDescriptor(known); err != nil {
		return nil, anno.InvalidArgumentf("%s would not load: %v", DescriptorFile, err)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, known, "", "  "); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (a *Annotation) descriptor() (*descriptor, error) {
	d := &descriptor{
		Version:        DescriptorVersion.String(),
		DatasetName:    a.datasetName,
		OrganizationID: a.organizationID,
		OwnerName:      a.ownerName,
		AnnotationID:   a.annotationID,
		Extra:          a.descriptorExtra,
	}
	if len(a.Metadata) > 0 {
		d.Metadata = make(map[string]json.RawMessage, len(a.Metadata))
		for k, v := range a.Metadata {
			raw, err := metadataValue(v)
			if err != nil {
				return nil, anno.InvalidArgumentf("metadata %q: %v", k, err)
			}
			d.Metadata[k] = raw
		}
	}
	return d, nil
}
