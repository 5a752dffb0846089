package skeleton

import (
	"errors"
	"testing"

	"github.com/janelia-flyem/annotar/anno"
)

// buildTestSkeleton returns
//
//	root
//	├── group 1 "Axons"
//	│   ├── group 3 "Nested"
//	│   │   └── tree 4
//	│   └── tree 2
//	├── group 2 "Dendrites"
//	│   └── tree 3
//	└── tree 1
func buildTestSkeleton(t *testing.T) *Skeleton {
	s := New()
	tree1, err := s.AddTree("tree 1", 0)
	if err != nil {
		t.Fatalf("AddTree: %v", err)
	}
	axons, err := s.AddGroup("Axons", 0)
	if err != nil {
		t.Fatalf("AddGroup: %v", err)
	}
	dendrites, err := s.AddGroup("Dendrites", 0)
	if err != nil {
		t.Fatalf("AddGroup: %v", err)
	}
	if axons.ID() != 1 || dendrites.ID() != 2 {
		t.Fatalf("expected group ids 1 and 2, got %d and %d", axons.ID(), dendrites.ID())
	}
	nested, err := axons.AddGroup("Nested", 0)
	if err != nil || nested.ID() != 3 {
		t.Fatalf("bad nested group: %v", err)
	}
	tree2, _ := axons.AddTree("tree 2", 0)
	tree3, _ := dendrites.AddTree("tree 3", 0)
	tree4, _ := nested.AddTree("tree 4", 0)
	for i, tree := range []*Tree{tree1, tree2, tree3, tree4} {
		if tree.ID() != i+1 {
			t.Fatalf("expected tree id %d, got %d", i+1, tree.ID())
		}
		for n := 0; n <= i; n++ {
			if _, err := tree.AddNode(Node{Position: anno.Point3d{int32(n), 0, 0}, Radius: 1}); err != nil {
				t.Fatalf("AddNode: %v", err)
			}
		}
	}
	return s
}

func TestFlattenedTrees(t *testing.T) {
	s := buildTestSkeleton(t)
	var ids []int
	for tree := range s.FlattenedTrees() {
		ids = append(ids, tree.ID())
	}
	expected := []int{4, 2, 3, 1}
	if len(ids) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, ids)
	}
	for i := range ids {
		if ids[i] != expected[i] {
			t.Fatalf("expected order %v, got %v", expected, ids)
		}
	}

	// restartable and stoppable
	var n int
	for range s.FlattenedTrees() {
		n++
	}
	if n != 4 {
		t.Errorf("second iteration gave %d trees", n)
	}
	n = 0
	for range s.FlattenedTrees() {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Errorf("early break failed")
	}

	var groupIDs []int
	for g := range s.FlattenedGroups() {
		groupIDs = append(groupIDs, g.ID())
	}
	if len(groupIDs) != 3 || groupIDs[0] != 1 || groupIDs[1] != 3 || groupIDs[2] != 2 {
		t.Errorf("bad group order %v", groupIDs)
	}
}

func TestNodeCounts(t *testing.T) {
	s := buildTestSkeleton(t)
	if n := s.TotalNodeCount(); n != 1+2+3+4 {
		t.Errorf("expected 10 nodes, got %d", n)
	}
	axons, _ := s.Group(1)
	if n := axons.TotalNodeCount(); n != 2+4 {
		t.Errorf("expected 6 nodes in axons, got %d", n)
	}
	tree3, _ := s.Tree(3)
	if n := tree3.TotalNodeCount(); n != 3 {
		t.Errorf("expected 3 nodes in tree 3, got %d", n)
	}
	if s.MaxNodeID() != 10 {
		t.Errorf("expected node ids assigned up to 10, got %d", s.MaxNodeID())
	}
}

func TestDuplicateIDs(t *testing.T) {
	s := buildTestSkeleton(t)
	if _, err := s.AddTree("dup", 2); !errors.Is(err, anno.ErrDuplicateID) {
		t.Errorf("expected duplicate tree id error, got %v", err)
	}
	axons, _ := s.Group(1)
	if _, err := axons.AddTree("dup", 4); !errors.Is(err, anno.ErrDuplicateID) {
		t.Errorf("expected duplicate tree id error in nested group, got %v", err)
	}
	if _, err := s.AddGroup("dup", 3); !errors.Is(err, anno.ErrDuplicateID) {
		t.Errorf("expected duplicate group id error, got %v", err)
	}
	var dupErr *anno.DuplicateIDError
	_, err := s.AddTree("dup", 1)
	if !errors.As(err, &dupErr) || dupErr.ID != "1" {
		t.Errorf("expected DuplicateIDError for id 1, got %v", err)
	}

	// explicit ids are preserved and fresh ids continue above them
	tree, err := s.AddTree("explicit", 10)
	if err != nil || tree.ID() != 10 {
		t.Fatalf("explicit tree id: %v", err)
	}
	tree, err = s.AddTree("fresh", 0)
	if err != nil || tree.ID() != 11 {
		t.Errorf("expected fresh tree id 11, got %d (%v)", tree.ID(), err)
	}

	node, err := tree.AddNode(Node{ID: 5})
	if err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if _, err := tree.AddNode(Node{ID: 5}); !errors.Is(err, anno.ErrDuplicateID) {
		t.Errorf("expected duplicate node id error, got %v", err)
	}
	other, _ := s.Tree(1)
	if _, err := other.AddNode(Node{ID: node.ID}); err != nil {
		t.Errorf("node ids need only be unique per tree: %v", err)
	}
}

func TestInsertKeepsZeroIDs(t *testing.T) {
	s := New()
	zero, err := s.Root().InsertTree("zero", 0)
	if err != nil || zero.ID() != 0 {
		t.Fatalf("InsertTree with id 0: %v", err)
	}
	one, err := s.Root().InsertTree("one", 1)
	if err != nil || one.ID() != 1 {
		t.Fatalf("InsertTree with id 1 after id 0: %v", err)
	}
	if _, err := s.Root().InsertTree("again", 0); !errors.Is(err, anno.ErrDuplicateID) {
		t.Errorf("expected duplicate tree id 0 error, got %v", err)
	}
	if _, err := s.Root().InsertTree("negative", -1); !errors.Is(err, anno.ErrInvalidArgument) {
		t.Errorf("expected invalid argument for negative id, got %v", err)
	}
	if fresh, err := s.AddTree("fresh", 0); err != nil || fresh.ID() != 2 {
		t.Errorf("expected fresh tree id 2, got %v (%v)", fresh, err)
	}

	node, err := zero.InsertNode(Node{ID: 0, Position: anno.Point3d{1, 2, 3}})
	if err != nil || node.ID != 0 {
		t.Fatalf("InsertNode with id 0: %v", err)
	}
	if _, err := zero.InsertNode(Node{ID: 1}); err != nil {
		t.Fatalf("InsertNode with id 1 after id 0: %v", err)
	}
	if err := zero.AddEdge(0, 1); err != nil {
		t.Errorf("edge to node 0: %v", err)
	}
	if _, err := zero.InsertNode(Node{ID: 0}); !errors.Is(err, anno.ErrDuplicateID) {
		t.Errorf("expected duplicate node id 0 error, got %v", err)
	}
	if fresh, err := zero.AddNode(Node{}); err != nil || fresh.ID != 2 {
		t.Errorf("expected fresh node id 2, got %v (%v)", fresh, err)
	}
}

func TestEdges(t *testing.T) {
	s := New()
	tree, _ := s.AddTree("edges", 0)
	for i := 1; i <= 3; i++ {
		tree.AddNode(Node{ID: i})
	}
	if err := tree.AddEdge(1, 2); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	if err := tree.AddEdge(2, 1); err != nil {
		t.Fatalf("AddEdge reversed: %v", err)
	}
	if tree.NumEdges() != 1 || !tree.HasEdge(2, 1) {
		t.Errorf("edges should be undirected and unique: %v", tree.Edges())
	}
	if err := tree.AddEdge(1, 99); !errors.Is(err, anno.ErrNotFound) {
		t.Errorf("expected not found for missing endpoint, got %v", err)
	}
	if err := tree.AddEdge(3, 3); !errors.Is(err, anno.ErrInvalidArgument) {
		t.Errorf("expected invalid argument for self edge, got %v", err)
	}
	tree.AddEdge(2, 3)
	if err := tree.RemoveNode(2); err != nil {
		t.Fatalf("RemoveNode: %v", err)
	}
	if tree.NumEdges() != 0 || tree.NumNodes() != 2 {
		t.Errorf("removing node 2 should drop its edges: %v", tree.Edges())
	}
	if err := tree.RemoveEdge(1, 3); !errors.Is(err, anno.ErrNotFound) {
		t.Errorf("expected not found removing missing edge, got %v", err)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestMoveAndRemove(t *testing.T) {
	s := buildTestSkeleton(t)

	if err := s.MoveGroup(1, 3); !errors.Is(err, anno.ErrInvalidArgument) {
		t.Errorf("expected cycle rejection moving group into its child, got %v", err)
	}
	if err := s.MoveGroup(1, 1); !errors.Is(err, anno.ErrInvalidArgument) {
		t.Errorf("expected cycle rejection moving group into itself, got %v", err)
	}
	if err := s.MoveGroup(3, 2); err != nil {
		t.Fatalf("MoveGroup: %v", err)
	}
	dendrites, _ := s.Group(2)
	if dendrites.TotalNodeCount() != 3+4 {
		t.Errorf("moved group's trees not counted: %d", dendrites.TotalNodeCount())
	}
	if err := s.MoveTree(1, 2); err != nil {
		t.Fatalf("MoveTree: %v", err)
	}
	tree1, _ := s.Tree(1)
	if tree1.Group().ID() != 2 {
		t.Errorf("tree 1 not moved")
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if err := s.RemoveGroup(2); err != nil {
		t.Fatalf("RemoveGroup: %v", err)
	}
	if s.NumTrees() != 1 || s.NumGroups() != 1 {
		t.Errorf("expected 1 tree and 1 group left, got %d and %d", s.NumTrees(), s.NumGroups())
	}
	if _, err := s.Tree(4); !errors.Is(err, anno.ErrNotFound) {
		t.Errorf("nested tree 4 should be removed, got %v", err)
	}
	if err := s.RemoveGroup(RootGroupID); !errors.Is(err, anno.ErrInvalidArgument) {
		t.Errorf("expected error removing root group, got %v", err)
	}
	if err := s.RemoveTree(2); err != nil {
		t.Fatalf("RemoveTree: %v", err)
	}
	if s.TotalNodeCount() != 0 {
		t.Errorf("expected no nodes left, got %d", s.TotalNodeCount())
	}
	if err := s.RemoveTree(2); !errors.Is(err, anno.ErrNotFound) {
		t.Errorf("expected not found removing tree twice, got %v", err)
	}
}

func TestValidateDetectsCycle(t *testing.T) {
	s := buildTestSkeleton(t)
	// corrupt the arena directly: group 1 and group 3 become each other's parent
	s.groups[1].parent = 3
	if err := s.Validate(); !errors.Is(err, anno.ErrFormat) {
		t.Errorf("expected format error for parent cycle, got %v", err)
	}
}
