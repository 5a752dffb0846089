package skeleton

import (
	"fmt"
	"iter"

	"github.com/janelia-flyem/annotar/anno"
)

// Group is a named folder of trees and other groups.
type Group struct {
	skel *Skeleton
	id   int

	Name       string
	IsExpanded *bool

	// Unknown holds serialized attributes not recognized by the codec.
	Unknown map[string]string

	parent   int
	children []int
	trees    []int
}

// ID returns the group id.  The root group has id 0.
func (g *Group) ID() int {
	return g.id
}

// IsRoot returns true for the implicit root group.
func (g *Group) IsRoot() bool {
	return g.id == RootGroupID
}

// Parent returns the parent group, or nil for the root.
func (g *Group) Parent() *Group {
	if g.IsRoot() || g.skel == nil {
		return nil
	}
	return g.skel.groups[g.parent]
}

// Children returns the direct child groups in stored order.
func (g *Group) Children() []*Group {
	if g.skel == nil {
		return nil
	}
	out := make([]*Group, 0, len(g.children))
	for _, id := range g.children {
		out = append(out, g.skel.groups[id])
	}
	return out
}

// Trees returns the trees directly within the group in stored order.
func (g *Group) Trees() []*Tree {
	if g.skel == nil {
		return nil
	}
	out := make([]*Tree, 0, len(g.trees))
	for _, id := range g.trees {
		out = append(out, g.skel.trees[id])
	}
	return out
}

// AddGroup adds a child group.  An id of 0 assigns a fresh id; an explicit id already
// used by another group returns a *anno.DuplicateIDError.
func (g *Group) AddGroup(name string, id int) (*Group, error) {
	s := g.skel
	if s == nil {
		return nil, anno.InvalidArgumentf("group %d was removed", g.id)
	}
	switch {
	case id == 0:
		id = s.freshGroupID()
	case id < 0:
		return nil, anno.InvalidArgumentf("bad group id %d", id)
	default:
		if _, found := s.groups[id]; found {
			return nil, anno.NewDuplicateIDError("group", id)
		}
	}
	child := &Group{skel: s, id: id, Name: name, parent: g.id}
	s.groups[id] = child
	g.children = append(g.children, id)
	return child, nil
}

// AddTree adds a tree to the group.  An id of 0 assigns a fresh id; an explicit id
// already used by another tree returns a *anno.DuplicateIDError.
func (g *Group) AddTree(name string, id int) (*Tree, error) {
	if id == 0 && g.skel != nil {
		id = g.skel.freshTreeID()
	}
	return g.InsertTree(name, id)
}

// InsertTree adds a tree with exactly the given id.  Unlike AddTree, 0 is a valid id,
// as found in loaded skeleton files.
func (g *Group) InsertTree(name string, id int) (*Tree, error) {
	s := g.skel
	if s == nil {
		return nil, anno.InvalidArgumentf("group %d was removed", g.id)
	}
	if id < 0 {
		return nil, anno.InvalidArgumentf("bad tree id %d", id)
	}
	if _, found := s.trees[id]; found {
		return nil, anno.NewDuplicateIDError("tree", id)
	}
	t := &Tree{skel: s, id: id, Name: name, group: g.id, nodeIdx: make(map[int]*Node)}
	s.trees[id] = t
	g.trees = append(g.trees, id)
	return t, nil
}

// FlattenedTrees returns a restartable iterator over every tree in and below the group.
// Each group yields the trees of its child groups first, depth-first in stored order,
// followed by its own trees in stored order.
func (g *Group) FlattenedTrees() iter.Seq[*Tree] {
	return func(yield func(*Tree) bool) {
		if g.skel == nil {
			return
		}
		visited := make(map[int]bool)
		g.walkTrees(visited, yield)
	}
}

func (g *Group) walkTrees(visited map[int]bool, yield func(*Tree) bool) bool {
	if visited[g.id] {
		return true
	}
	visited[g.id] = true
	for _, id := range g.children {
		if child, found := g.skel.groups[id]; found {
			if !child.walkTrees(visited, yield) {
				return false
			}
		}
	}
	for _, id := range g.trees {
		if t, found := g.skel.trees[id]; found {
			if !yield(t) {
				return false
			}
		}
	}
	return true
}

// FlattenedGroups returns a restartable iterator over every group below this one, each
// group before its children.
func (g *Group) FlattenedGroups() iter.Seq[*Group] {
	return func(yield func(*Group) bool) {
		if g.skel == nil {
			return
		}
		visited := map[int]bool{g.id: true}
		g.walkGroups(visited, yield)
	}
}

func (g *Group) walkGroups(visited map[int]bool, yield func(*Group) bool) bool {
	for _, id := range g.children {
		child, found := g.skel.groups[id]
		if !found || visited[id] {
			continue
		}
		visited[id] = true
		if !yield(child) || !child.walkGroups(visited, yield) {
			return false
		}
	}
	return true
}

// TotalNodeCount returns the number of nodes in all trees in and below the group.
func (g *Group) TotalNodeCount() int {
	var n int
	for t := range g.FlattenedTrees() {
		n += t.TotalNodeCount()
	}
	return n
}

func (g *Group) String() string {
	return fmt.Sprintf("group %d %q (%d groups, %d trees)", g.id, g.Name, len(g.children), len(g.trees))
}
