/*
Package nml reads and writes NML, the XML skeleton description embedded in annotation
archives.  It only handles the wire form; conversion to the skeleton model lives with
the annotation container.

Attributes and elements not modeled here are kept in Unknown and Extra fields and
written back unchanged.
*/
package nml

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"strconv"
)

// Float is a numeric attribute written without exponent notation.
type Float float64

func (f Float) MarshalXMLAttr(name xml.Name) (xml.Attr, error) {
	return xml.Attr{Name: name, Value: strconv.FormatFloat(float64(f), 'f', -1, 64)}, nil
}

func (f *Float) UnmarshalXMLAttr(attr xml.Attr) error {
	v, err := strconv.ParseFloat(attr.Value, 64)
	if err != nil {
		return fmt.Errorf("attribute %s: %w", attr.Name.Local, err)
	}
	*f = Float(v)
	return nil
}

// Int32 rounds the value to the nearest integer.
func (f Float) Int32() int32 {
	return int32(math.Round(float64(f)))
}

// Element is an XML element not modeled by this package.
type Element struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Inner   []byte     `xml:",innerxml"`
}

// NML is the root <things> element.
type NML struct {
	XMLName      xml.Name      `xml:"things"`
	Meta         []Meta        `xml:"meta"`
	Parameters   Parameters    `xml:"parameters"`
	Trees        []Tree        `xml:"thing"`
	Branchpoints []Branchpoint `xml:"branchpoints>branchpoint"`
	Comments     []Comment     `xml:"comments>comment"`
	Groups       []Group       `xml:"groups>group"`
	Volumes      []Volume      `xml:"volume"`
	Extra        []Element     `xml:",any"`
}

// Meta is a <meta name content/> tag.
type Meta struct {
	Name    string `xml:"name,attr"`
	Content string `xml:"content,attr"`
}

// Parameters holds dataset and viewer settings.
type Parameters struct {
	Experiment        Experiment        `xml:"experiment"`
	Scale             *Vector           `xml:"scale"`
	Offset            *Vector           `xml:"offset"`
	Time              *Time             `xml:"time"`
	EditPosition      *Vector           `xml:"editPosition"`
	EditRotation      *Rotation         `xml:"editRotation"`
	ZoomLevel         *ZoomLevel        `xml:"zoomLevel"`
	TaskBoundingBox   *BoundingBox      `xml:"taskBoundingBox"`
	UserBoundingBoxes []UserBoundingBox `xml:"userBoundingBox"`
	Extra             []Element         `xml:",any"`
}

// Experiment names the dataset.
type Experiment struct {
	Name         string     `xml:"name,attr"`
	Organization string     `xml:"organization,attr,omitempty"`
	Description  string     `xml:"description,attr,omitempty"`
	Unknown      []xml.Attr `xml:",any,attr"`
}

// Vector is an element with x, y and z attributes.
type Vector struct {
	X Float `xml:"x,attr"`
	Y Float `xml:"y,attr"`
	Z Float `xml:"z,attr"`
}

// Rotation is an element with xRot, yRot and zRot attributes.
type Rotation struct {
	X Float `xml:"xRot,attr"`
	Y Float `xml:"yRot,attr"`
	Z Float `xml:"zRot,attr"`
}

// Time is the <time ms/> element.
type Time struct {
	Ms int64 `xml:"ms,attr"`
}

// ZoomLevel is the <zoomLevel zoom/> element.
type ZoomLevel struct {
	Zoom Float `xml:"zoom,attr"`
}

// BoundingBox is a box given by its top-left corner and extent.
type BoundingBox struct {
	TopLeftX Float `xml:"topLeftX,attr"`
	TopLeftY Float `xml:"topLeftY,attr"`
	TopLeftZ Float `xml:"topLeftZ,attr"`
	Width    Float `xml:"width,attr"`
	Height   Float `xml:"height,attr"`
	Depth    Float `xml:"depth,attr"`
}

// Color holds optional RGBA attributes.
type Color struct {
	R *Float `xml:"color.r,attr,omitempty"`
	G *Float `xml:"color.g,attr,omitempty"`
	B *Float `xml:"color.b,attr,omitempty"`
	A *Float `xml:"color.a,attr,omitempty"`
}

// IsSet returns true if all of r, g and b are present.
func (c Color) IsSet() bool {
	return c.R != nil && c.G != nil && c.B != nil
}

// RGBA returns the color channels, with alpha defaulting to 1.
func (c Color) RGBA() [4]float32 {
	rgba := [4]float32{0, 0, 0, 1}
	for i, ch := range []*Float{c.R, c.G, c.B, c.A} {
		if ch != nil {
			rgba[i] = float32(*ch)
		}
	}
	return rgba
}

// NewColor returns a Color with all four channels set.
func NewColor(rgba [4]float32) Color {
	var ch [4]Float
	for i, v := range rgba {
		// float32 values are written with their shortest float32 representation
		f, _ := strconv.ParseFloat(strconv.FormatFloat(float64(v), 'g', -1, 32), 64)
		ch[i] = Float(f)
	}
	return Color{R: &ch[0], G: &ch[1], B: &ch[2], A: &ch[3]}
}

// UserBoundingBox is a named, colored box set by the user.
type UserBoundingBox struct {
	ID        string `xml:"id,attr"`
	Name      string `xml:"name,attr"`
	IsVisible *bool  `xml:"isVisible,attr,omitempty"`
	Color
	BoundingBox
	Unknown []xml.Attr `xml:",any,attr"`
}

// Tree is a <thing> element.
type Tree struct {
	ID   int    `xml:"id,attr"`
	Name string `xml:"name,attr"`
	Color
	GroupID  *int       `xml:"groupId,attr,omitempty"`
	Type     string     `xml:"type,attr,omitempty"`
	Unknown  []xml.Attr `xml:",any,attr"`
	Nodes    []Node     `xml:"nodes>node"`
	Edges    []Edge     `xml:"edges>edge"`
	Metadata []Entry    `xml:"metadata>metadataEntry"`
	Extra    []Element  `xml:",any"`
}

// Node is a traced point.
type Node struct {
	ID            int        `xml:"id,attr"`
	Radius        *Float     `xml:"radius,attr,omitempty"`
	X             Float      `xml:"x,attr"`
	Y             Float      `xml:"y,attr"`
	Z             Float      `xml:"z,attr"`
	RotX          *Float     `xml:"rotX,attr,omitempty"`
	RotY          *Float     `xml:"rotY,attr,omitempty"`
	RotZ          *Float     `xml:"rotZ,attr,omitempty"`
	InVp          *int       `xml:"inVp,attr,omitempty"`
	InMag         *int       `xml:"inMag,attr,omitempty"`
	BitDepth      *int       `xml:"bitDepth,attr,omitempty"`
	Interpolation *bool      `xml:"interpolation,attr,omitempty"`
	Time          *int64     `xml:"time,attr,omitempty"`
	Unknown       []xml.Attr `xml:",any,attr"`
	Metadata      []Entry    `xml:"metadata>metadataEntry"`
}

// Edge connects two nodes of a tree.
type Edge struct {
	Source int `xml:"source,attr"`
	Target int `xml:"target,attr"`
}

// Entry is a key/value metadata entry.
type Entry struct {
	Key   string `xml:"key,attr"`
	Value string `xml:"value,attr"`
}

// Branchpoint flags a node as a branchpoint.
type Branchpoint struct {
	ID   int    `xml:"id,attr"`
	Time *int64 `xml:"time,attr,omitempty"`
}

// Comment attaches text to a node.
type Comment struct {
	Node    int    `xml:"node,attr"`
	Content string `xml:"content,attr"`
}

// Group is a possibly nested tree group.
type Group struct {
	ID         int        `xml:"id,attr"`
	Name       string     `xml:"name,attr"`
	IsExpanded *bool      `xml:"isExpanded,attr,omitempty"`
	Unknown    []xml.Attr `xml:",any,attr"`
	Groups     []Group    `xml:"group"`
}

// Volume references a volume layer stored alongside the NML.
type Volume struct {
	ID            int        `xml:"id,attr"`
	Name          string     `xml:"name,attr,omitempty"`
	Location      string     `xml:"location,attr"`
	FallbackLayer string     `xml:"fallbackLayer,attr,omitempty"`
	MappingName   string     `xml:"mappingName,attr,omitempty"`
	Unknown       []xml.Attr `xml:",any,attr"`
}

// MetaValue returns the content of the first meta tag with the given name.
func (n *NML) MetaValue(name string) (string, bool) {
	for _, m := range n.Meta {
		if m.Name == name {
			return m.Content, true
		}
	}
	return "", false
}

// Decode parses an NML document.
func Decode(r io.Reader) (*NML, error) {
	var n NML
	dec := xml.NewDecoder(r)
	if err := dec.Decode(&n); err != nil {
		return nil, err
	}
	return &n, nil
}

// Encode writes the NML document with an XML header.
func Encode(w io.Writer, n *NML) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(n); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// Marshal returns the encoded document.
func Marshal(n *NML) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, n); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
