package annotation

import (
	"fmt"
	"maps"
	"strconv"

	"github.com/janelia-flyem/annotar/anno"
)

// UserBoundingBox is a named region of interest.  The embedded BoundingBox gives its
// geometry; two records describe the same region when their BoundingBox fields are ==,
// regardless of display attributes.
type UserBoundingBox struct {
	anno.BoundingBox

	ID        string
	Name      string
	IsVisible bool
	Color     *anno.Color

	// Unknown holds serialized attributes not recognized by the codec.
	Unknown map[string]string
}

// boxPalette gives boxes without a color a stable one based on their position.
var boxPalette = []anno.Color{
	{0.8941177, 0.1019608, 0.1098039, 1},
	{0.2156863, 0.4941177, 0.7215686, 1},
	{0.3019608, 0.6862745, 0.2901961, 1},
	{0.5960785, 0.3058824, 0.6392157, 1},
	{1.0, 0.4980392, 0, 1},
	{1.0, 1.0, 0.2, 1},
	{0.6509804, 0.3372549, 0.1568628, 1},
	{0.9686275, 0.5058824, 0.7490196, 1},
}

// PaletteColor returns the default color of the bounding box at position index.
func PaletteColor(index int) anno.Color {
	if index < 0 {
		index = -index
	}
	return boxPalette[index%len(boxPalette)]
}

// UserBoundingBoxes returns a copy of the bounding boxes in order.
func (a *Annotation) UserBoundingBoxes() []UserBoundingBox {
	out := make([]UserBoundingBox, len(a.bboxes))
	for i, b := range a.bboxes {
		out[i] = b
		if b.Color != nil {
			c := *b.Color
			out[i].Color = &c
		}
		if b.Unknown != nil {
			out[i].Unknown = maps.Clone(b.Unknown)
		}
	}
	return out
}

func (a *Annotation) freshBoxID() string {
	var max int
	for _, b := range a.bboxes {
		if n, err := strconv.Atoi(b.ID); err == nil && n > max {
			max = n
		}
	}
	for n := max + 1; ; n++ {
		id := strconv.Itoa(n)
		if _, found := a.boxIndex(id); !found {
			return id
		}
	}
}

func (a *Annotation) boxIndex(id string) (int, bool) {
	for i, b := range a.bboxes {
		if b.ID == id {
			return i, true
		}
	}
	return 0, false
}

// AddUserBoundingBox appends a visible box with a fresh id and a palette color.
func (a *Annotation) AddUserBoundingBox(box anno.BoundingBox, name string) UserBoundingBox {
	ubb := UserBoundingBox{BoundingBox: box, Name: name, IsVisible: true}
	ubb, _ = a.AddUserBoundingBoxRecord(ubb)
	return ubb
}

// AddUserBoundingBoxRecord appends a box as given.  An empty id is replaced by a fresh
// one and a nil color by the palette color of the box's position.  An id already in use
// returns a *anno.DuplicateIDError.
func (a *Annotation) AddUserBoundingBoxRecord(ubb UserBoundingBox) (UserBoundingBox, error) {
	if ubb.ID == "" {
		ubb.ID = a.freshBoxID()
	} else if _, found := a.boxIndex(ubb.ID); found {
		return UserBoundingBox{}, &anno.DuplicateIDError{Kind: "user bounding box", ID: ubb.ID}
	}
	if ubb.Color == nil {
		c := PaletteColor(len(a.bboxes))
		ubb.Color = &c
	} else {
		c := *ubb.Color
		ubb.Color = &c
	}
	a.bboxes = append(a.bboxes, ubb)
	return ubb, nil
}

// UserBoundingBox returns the box with the given id.
func (a *Annotation) UserBoundingBox(id string) (UserBoundingBox, error) {
	i, found := a.boxIndex(id)
	if !found {
		return UserBoundingBox{}, anno.NewNotFoundError("user bounding box", id)
	}
	return a.UserBoundingBoxes()[i], nil
}

// RemoveUserBoundingBox deletes the box with the given id.  Later boxes keep their colors.
func (a *Annotation) RemoveUserBoundingBox(id string) error {
	i, found := a.boxIndex(id)
	if !found {
		return anno.NewNotFoundError("user bounding box", id)
	}
	a.bboxes = append(a.bboxes[:i:i], a.bboxes[i+1:]...)
	return nil
}

func (ubb UserBoundingBox) String() string {
	return fmt.Sprintf("user bounding box %s %q %s", ubb.ID, ubb.Name, ubb.BoundingBox)
}
