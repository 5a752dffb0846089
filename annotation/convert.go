package annotation

import (
	"encoding/xml"
	"errors"
	"fmt"
	"sort"

	"github.com/janelia-flyem/annotar/anno"
	"github.com/janelia-flyem/annotar/nml"
	"github.com/janelia-flyem/annotar/skeleton"
)

// Meta tag names with special meaning.
const (
	metaWriter       = "writer"
	metaAnnotationID = "annotationId"
	metaUsername     = "username"

	writerName = "annotar"
)

// volumeLocation returns the archive directory of the layer with the given id.
func volumeLocation(id int) string {
	return fmt.Sprintf("volumes/%d", id)
}

func attrMap(attrs []xml.Attr) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	m := make(map[string]string, len(attrs))
	for _, a := range attrs {
		m[a.Name.Local] = a.Value
	}
	return m
}

func attrList(m map[string]string) []xml.Attr {
	if len(m) == 0 {
		return nil
	}
	keys := sortedKeys(m)
	attrs := make([]xml.Attr, len(keys))
	for i, k := range keys {
		attrs[i] = xml.Attr{Name: xml.Name{Local: k}, Value: m[k]}
	}
	return attrs
}

func entryMap(entries []nml.Entry) map[string]string {
	if len(entries) == 0 {
		return nil
	}
	m := make(map[string]string, len(entries))
	for _, e := range entries {
		m[e.Key] = e.Value
	}
	return m
}

func entryList(m map[string]string) []nml.Entry {
	keys := sortedKeys(m)
	if len(keys) == 0 {
		return nil
	}
	entries := make([]nml.Entry, len(keys))
	for i, k := range keys {
		entries[i] = nml.Entry{Key: k, Value: m[k]}
	}
	return entries
}

func vectorPoint(v *nml.Vector) *anno.Point3d {
	if v == nil {
		return nil
	}
	return &anno.Point3d{v.X.Int32(), v.Y.Int32(), v.Z.Int32()}
}

func pointVector(p *anno.Point3d) *nml.Vector {
	if p == nil {
		return nil
	}
	return &nml.Vector{X: nml.Float(p[0]), Y: nml.Float(p[1]), Z: nml.Float(p[2])}
}

func nmlBox(b nml.BoundingBox) anno.BoundingBox {
	return anno.NewBoundingBox(
		anno.Point3d{b.TopLeftX.Int32(), b.TopLeftY.Int32(), b.TopLeftZ.Int32()},
		anno.Point3d{b.Width.Int32(), b.Height.Int32(), b.Depth.Int32()},
	)
}

func boxNML(b anno.BoundingBox) nml.BoundingBox {
	return nml.BoundingBox{
		TopLeftX: nml.Float(b.TopLeft[0]),
		TopLeftY: nml.Float(b.TopLeft[1]),
		TopLeftZ: nml.Float(b.TopLeft[2]),
		Width:    nml.Float(b.Size[0]),
		Height:   nml.Float(b.Size[1]),
		Depth:    nml.Float(b.Size[2]),
	}
}

// skeletonFormatError turns model errors raised while rebuilding a skeleton into format
// errors of the source file.
func skeletonFormatError(source string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, anno.ErrDuplicateID) || errors.Is(err, anno.ErrNotFound) || errors.Is(err, anno.ErrInvalidArgument) {
		return &anno.FormatError{Source: source, Err: err}
	}
	return err
}

// applyNML fills the skeleton, bounding boxes and parameters of a from a decoded NML.
func (a *Annotation) applyNML(source string, n *nml.NML) error {
	if err := addNMLGroups(a.skel.Root(), n.Groups); err != nil {
		return skeletonFormatError(source, err)
	}

	nodesByID := make(map[int][]*skeleton.Node)
	for _, nt := range n.Trees {
		group := a.skel.Root()
		if nt.GroupID != nil && *nt.GroupID != skeleton.RootGroupID {
			g, err := a.skel.Group(*nt.GroupID)
			if err != nil {
				return skeletonFormatError(source, err)
			}
			group = g
		}
		tree, err := group.InsertTree(nt.Name, nt.ID)
		if err != nil {
			return skeletonFormatError(source, err)
		}
		if nt.IsSet() {
			c := anno.Color(nt.RGBA())
			tree.Color = &c
		}
		tree.Type = nt.Type
		tree.Metadata = entryMap(nt.Metadata)
		tree.Unknown = attrMap(nt.Unknown)
		if len(nt.Extra) > 0 {
			a.treeExtra[tree] = nt.Extra
		}

		for _, nn := range nt.Nodes {
			node := skeleton.Node{
				ID:            nn.ID,
				Position:      anno.Point3d{nn.X.Int32(), nn.Y.Int32(), nn.Z.Int32()},
				InMag:         nn.InMag,
				BitDepth:      nn.BitDepth,
				Interpolation: nn.Interpolation,
				Time:          nn.Time,
				Metadata:      entryMap(nn.Metadata),
				Unknown:       attrMap(nn.Unknown),
			}
			if nn.Radius != nil {
				node.Radius = float32(*nn.Radius)
			}
			if nn.RotX != nil || nn.RotY != nil || nn.RotZ != nil {
				var rot anno.Vector3d
				for i, r := range []*nml.Float{nn.RotX, nn.RotY, nn.RotZ} {
					if r != nil {
						rot[i] = float64(*r)
					}
				}
				node.Rotation = &rot
			}
			if nn.InVp != nil {
				inVp := *nn.InVp != 0
				node.InViewport = &inVp
			}
			added, err := tree.InsertNode(node)
			if err != nil {
				return skeletonFormatError(source, err)
			}
			nodesByID[added.ID] = append(nodesByID[added.ID], added)
		}
		for _, e := range nt.Edges {
			if err := tree.AddEdge(e.Source, e.Target); err != nil {
				return skeletonFormatError(source, err)
			}
		}
	}

	for _, c := range n.Comments {
		nodes, found := nodesByID[c.Node]
		if !found {
			return anno.FormatErrorf(source, "comment references missing node %d", c.Node)
		}
		for _, node := range nodes {
			node.Comment = c.Content
		}
	}
	for _, bp := range n.Branchpoints {
		nodes, found := nodesByID[bp.ID]
		if !found {
			return anno.FormatErrorf(source, "branchpoint references missing node %d", bp.ID)
		}
		for _, node := range nodes {
			node.IsBranchpoint = true
			node.BranchpointTime = bp.Time
		}
	}
	if err := a.skel.Validate(); err != nil {
		return skeletonFormatError(source, err)
	}

	for _, nb := range n.Parameters.UserBoundingBoxes {
		ubb := UserBoundingBox{
			BoundingBox: nmlBox(nb.BoundingBox),
			ID:          nb.ID,
			Name:        nb.Name,
			IsVisible:   nb.IsVisible == nil || *nb.IsVisible,
			Unknown:     attrMap(nb.Unknown),
		}
		if nb.Color.IsSet() {
			c := anno.Color(nb.RGBA())
			ubb.Color = &c
		}
		if _, err := a.AddUserBoundingBoxRecord(ubb); err != nil {
			return &anno.FormatError{Source: source, Err: err}
		}
	}

	p := n.Parameters
	a.Parameters = Parameters{
		Description:  p.Experiment.Description,
		Offset:       vectorPoint(p.Offset),
		EditPosition: vectorPoint(p.EditPosition),
	}
	if p.Scale != nil {
		a.Parameters.Scale = &anno.Vector3d{float64(p.Scale.X), float64(p.Scale.Y), float64(p.Scale.Z)}
	}
	if p.EditRotation != nil {
		a.Parameters.EditRotation = &anno.Vector3d{float64(p.EditRotation.X), float64(p.EditRotation.Y), float64(p.EditRotation.Z)}
	}
	if p.ZoomLevel != nil {
		zoom := float64(p.ZoomLevel.Zoom)
		a.Parameters.ZoomLevel = &zoom
	}
	if p.Time != nil {
		ms := p.Time.Ms
		a.Parameters.Time = &ms
	}
	if p.TaskBoundingBox != nil {
		box := nmlBox(*p.TaskBoundingBox)
		a.Parameters.TaskBoundingBox = &box
	}
	a.parameterExtra = p.Extra
	a.experimentExtra = p.Experiment.Unknown
	a.nmlExtra = n.Extra
	for _, m := range n.Meta {
		switch m.Name {
		case metaWriter, metaAnnotationID, metaUsername:
		default:
			a.meta = append(a.meta, m)
		}
	}
	return nil
}

func addNMLGroups(parent *skeleton.Group, groups []nml.Group) error {
	for _, ng := range groups {
		if ng.ID <= 0 {
			return anno.InvalidArgumentf("group %q has reserved id %d", ng.Name, ng.ID)
		}
		g, err := parent.AddGroup(ng.Name, ng.ID)
		if err != nil {
			return err
		}
		g.IsExpanded = ng.IsExpanded
		g.Unknown = attrMap(ng.Unknown)
		if err := addNMLGroups(g, ng.Groups); err != nil {
			return err
		}
	}
	return nil
}

func nmlGroups(groups []*skeleton.Group) []nml.Group {
	if len(groups) == 0 {
		return nil
	}
	out := make([]nml.Group, len(groups))
	for i, g := range groups {
		out[i] = nml.Group{
			ID:         g.ID(),
			Name:       g.Name,
			IsExpanded: g.IsExpanded,
			Unknown:    attrList(g.Unknown),
			Groups:     nmlGroups(g.Children()),
		}
	}
	return out
}

// toNML returns the skeleton description of a.
func (a *Annotation) toNML() *nml.NML {
	n := &nml.NML{
		Meta:   []nml.Meta{{Name: metaWriter, Content: writerName}},
		Groups: nmlGroups(a.skel.Root().Children()),
		Extra:  a.nmlExtra,
	}
	if id, found := a.AnnotationID(); found {
		n.Meta = append(n.Meta, nml.Meta{Name: metaAnnotationID, Content: id})
	}
	if owner, found := a.OwnerName(); found {
		n.Meta = append(n.Meta, nml.Meta{Name: metaUsername, Content: owner})
	}
	n.Meta = append(n.Meta, a.meta...)

	p := &n.Parameters
	p.Experiment = nml.Experiment{
		Name:        a.datasetName,
		Description: a.Parameters.Description,
		Unknown:     a.experimentExtra,
	}
	if org, found := a.OrganizationID(); found {
		p.Experiment.Organization = org
	}
	if s := a.Parameters.Scale; s != nil {
		p.Scale = &nml.Vector{X: nml.Float(s[0]), Y: nml.Float(s[1]), Z: nml.Float(s[2])}
	}
	p.Offset = pointVector(a.Parameters.Offset)
	p.EditPosition = pointVector(a.Parameters.EditPosition)
	if r := a.Parameters.EditRotation; r != nil {
		p.EditRotation = &nml.Rotation{X: nml.Float(r[0]), Y: nml.Float(r[1]), Z: nml.Float(r[2])}
	}
	if z := a.Parameters.ZoomLevel; z != nil {
		p.ZoomLevel = &nml.ZoomLevel{Zoom: nml.Float(*z)}
	}
	ms := timestamp()
	if a.Parameters.Time != nil {
		ms = *a.Parameters.Time
	}
	p.Time = &nml.Time{Ms: ms}
	if b := a.Parameters.TaskBoundingBox; b != nil {
		box := boxNML(*b)
		p.TaskBoundingBox = &box
	}
	for _, ubb := range a.bboxes {
		visible := ubb.IsVisible
		nb := nml.UserBoundingBox{
			ID:          ubb.ID,
			Name:        ubb.Name,
			IsVisible:   &visible,
			BoundingBox: boxNML(ubb.BoundingBox),
			Unknown:     attrList(ubb.Unknown),
		}
		if ubb.Color != nil {
			nb.Color = nml.NewColor(*ubb.Color)
		}
		p.UserBoundingBoxes = append(p.UserBoundingBoxes, nb)
	}
	p.Extra = a.parameterExtra

	for tree := range a.skel.FlattenedTrees() {
		nt := nml.Tree{
			ID:       tree.ID(),
			Name:     tree.Name,
			Type:     tree.Type,
			Metadata: entryList(tree.Metadata),
			Unknown:  attrList(tree.Unknown),
			Extra:    a.treeExtra[tree],
		}
		if tree.Color != nil {
			nt.Color = nml.NewColor(*tree.Color)
		}
		if g := tree.Group(); g != nil && !g.IsRoot() {
			id := g.ID()
			nt.GroupID = &id
		}
		for _, node := range tree.Nodes() {
			nn := nml.Node{
				ID:            node.ID,
				X:             nml.Float(node.Position[0]),
				Y:             nml.Float(node.Position[1]),
				Z:             nml.Float(node.Position[2]),
				InMag:         node.InMag,
				BitDepth:      node.BitDepth,
				Interpolation: node.Interpolation,
				Time:          node.Time,
				Metadata:      entryList(node.Metadata),
				Unknown:       attrList(node.Unknown),
			}
			if node.Radius != 0 {
				r := nml.Float(node.Radius)
				nn.Radius = &r
			}
			if rot := node.Rotation; rot != nil {
				x, y, z := nml.Float(rot[0]), nml.Float(rot[1]), nml.Float(rot[2])
				nn.RotX, nn.RotY, nn.RotZ = &x, &y, &z
			}
			if node.InViewport != nil {
				var inVp int
				if *node.InViewport {
					inVp = 1
				}
				nn.InVp = &inVp
			}
			nt.Nodes = append(nt.Nodes, nn)
			if node.Comment != "" {
				n.Comments = append(n.Comments, nml.Comment{Node: node.ID, Content: node.Comment})
			}
			if node.IsBranchpoint {
				n.Branchpoints = append(n.Branchpoints, nml.Branchpoint{ID: node.ID, Time: node.BranchpointTime})
			}
		}
		for _, e := range tree.Edges() {
			nt.Edges = append(nt.Edges, nml.Edge{Source: e.Source, Target: e.Target})
		}
		n.Trees = append(n.Trees, nt)
	}

	for _, layer := range a.layers {
		v := nml.Volume{
			ID:          layer.ID(),
			Name:        layer.Name(),
			Location:    volumeLocation(layer.ID()),
			MappingName: layer.Info().MappingName,
			Unknown:     a.volumeExtra[layer],
		}
		if fallback, found := layer.FallbackLayer(); found {
			v.FallbackLayer = fallback
		}
		n.Volumes = append(n.Volumes, v)
	}
	return n
}

// nmlFileName returns the archive entry name of the skeleton description.
func nmlFileName(datasetName string) string {
	name := make([]rune, 0, len(datasetName))
	for _, r := range datasetName {
		switch r {
		case '/', '\\', ':':
			r = '_'
		}
		name = append(name, r)
	}
	if len(name) == 0 {
		return "annotation.nml"
	}
	return string(name) + ".nml"
}

func metaString(n *nml.NML, name string) *string {
	if v, found := n.MetaValue(name); found && v != "" {
		return &v
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
