package skeleton

import (
	"fmt"

	"github.com/janelia-flyem/annotar/anno"
)

// Node is a traced point of a tree.  Optional viewer state is nil when absent.
type Node struct {
	ID       int
	Position anno.Point3d
	Radius   float32

	Comment         string
	IsBranchpoint   bool
	BranchpointTime *int64

	Rotation      *anno.Vector3d
	InViewport    *bool
	InMag         *int
	BitDepth      *int
	Interpolation *bool
	Time          *int64

	// Metadata holds user key/value properties of the node.
	Metadata map[string]string

	// Unknown holds serialized attributes not recognized by the codec.
	Unknown map[string]string
}

// Edge connects two nodes of the same tree.  Edges are undirected.
type Edge struct {
	Source int
	Target int
}

func (e Edge) key() [2]int {
	if e.Source <= e.Target {
		return [2]int{e.Source, e.Target}
	}
	return [2]int{e.Target, e.Source}
}

// Tree is a connected (usually) graph of nodes.
type Tree struct {
	skel *Skeleton
	id   int

	Name     string
	Color    *anno.Color
	Type     string
	Metadata map[string]string
	Unknown  map[string]string

	group   int
	nodes   []*Node
	nodeIdx map[int]*Node
	edges   []Edge
	edgeSet map[[2]int]bool
}

// ID returns the tree id.
func (t *Tree) ID() int {
	return t.id
}

// Group returns the group containing the tree.
func (t *Tree) Group() *Group {
	if t.skel == nil {
		return nil
	}
	return t.skel.groups[t.group]
}

// Nodes returns the nodes in insertion order.
func (t *Tree) Nodes() []*Node {
	return append([]*Node(nil), t.nodes...)
}

// Node returns the node with the given id.
func (t *Tree) Node(id int) (*Node, error) {
	n, found := t.nodeIdx[id]
	if !found {
		return nil, anno.NewNotFoundError("node", fmt.Sprintf("%d in tree %d", id, t.id))
	}
	return n, nil
}

// NumNodes returns the number of nodes of the tree.
func (t *Tree) NumNodes() int {
	return len(t.nodes)
}

// TotalNodeCount returns the number of nodes of the tree.
func (t *Tree) TotalNodeCount() int {
	return len(t.nodes)
}

// AddNode adds a copy of n to the tree.  A zero n.ID assigns an id one larger than any
// node id of the skeleton.  An explicit id already in this tree returns a
// *anno.DuplicateIDError.
func (t *Tree) AddNode(n Node) (*Node, error) {
	if n.ID == 0 && t.skel != nil {
		n.ID = t.skel.maxNodeID + 1
	}
	return t.InsertNode(n)
}

// InsertNode adds a copy of n keeping n.ID as is, including 0.
func (t *Tree) InsertNode(n Node) (*Node, error) {
	if t.skel == nil {
		return nil, anno.InvalidArgumentf("tree %d was removed", t.id)
	}
	if n.ID < 0 {
		return nil, anno.InvalidArgumentf("bad node id %d", n.ID)
	}
	if _, found := t.nodeIdx[n.ID]; found {
		return nil, anno.NewDuplicateIDError(fmt.Sprintf("node of tree %d", t.id), n.ID)
	}
	if n.ID > t.skel.maxNodeID {
		t.skel.maxNodeID = n.ID
	}
	node := new(Node)
	*node = n
	t.nodes = append(t.nodes, node)
	t.nodeIdx[node.ID] = node
	return node, nil
}

// RemoveNode deletes a node and all its edges.
func (t *Tree) RemoveNode(id int) error {
	if _, found := t.nodeIdx[id]; !found {
		return anno.NewNotFoundError("node", fmt.Sprintf("%d in tree %d", id, t.id))
	}
	delete(t.nodeIdx, id)
	for i, n := range t.nodes {
		if n.ID == id {
			t.nodes = append(t.nodes[:i:i], t.nodes[i+1:]...)
			break
		}
	}
	kept := t.edges[:0:0]
	for _, e := range t.edges {
		if e.Source == id || e.Target == id {
			delete(t.edgeSet, e.key())
			continue
		}
		kept = append(kept, e)
	}
	t.edges = kept
	return nil
}

// AddEdge connects two nodes of the tree.  Adding an existing edge, in either direction,
// is a no-op.  Both nodes must exist.
func (t *Tree) AddEdge(source, target int) error {
	for _, id := range []int{source, target} {
		if _, found := t.nodeIdx[id]; !found {
			return anno.NewNotFoundError("node", fmt.Sprintf("%d in tree %d", id, t.id))
		}
	}
	if source == target {
		return anno.InvalidArgumentf("edge from node %d to itself", source)
	}
	e := Edge{Source: source, Target: target}
	if t.edgeSet == nil {
		t.edgeSet = make(map[[2]int]bool)
	}
	if t.edgeSet[e.key()] {
		return nil
	}
	t.edgeSet[e.key()] = true
	t.edges = append(t.edges, e)
	return nil
}

// HasEdge returns true if the two nodes are connected, in either direction.
func (t *Tree) HasEdge(source, target int) bool {
	return t.edgeSet[Edge{Source: source, Target: target}.key()]
}

// RemoveEdge disconnects two nodes.
func (t *Tree) RemoveEdge(source, target int) error {
	e := Edge{Source: source, Target: target}
	if !t.edgeSet[e.key()] {
		return anno.NewNotFoundError("edge", fmt.Sprintf("%d-%d in tree %d", source, target, t.id))
	}
	delete(t.edgeSet, e.key())
	for i, have := range t.edges {
		if have.key() == e.key() {
			t.edges = append(t.edges[:i:i], t.edges[i+1:]...)
			break
		}
	}
	return nil
}

// Edges returns the edges in insertion order.
func (t *Tree) Edges() []Edge {
	return append([]Edge(nil), t.edges...)
}

// NumEdges returns the number of edges.
func (t *Tree) NumEdges() int {
	return len(t.edges)
}

// Comments returns the nodes with a comment.
func (t *Tree) Comments() []*Node {
	var out []*Node
	for _, n := range t.nodes {
		if n.Comment != "" {
			out = append(out, n)
		}
	}
	return out
}

// Branchpoints returns the nodes flagged as branchpoints.
func (t *Tree) Branchpoints() []*Node {
	var out []*Node
	for _, n := range t.nodes {
		if n.IsBranchpoint {
			out = append(out, n)
		}
	}
	return out
}

func (t *Tree) String() string {
	return fmt.Sprintf("tree %d %q (%d nodes, %d edges)", t.id, t.Name, len(t.nodes), len(t.edges))
}
