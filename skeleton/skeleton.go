/*
Package skeleton models traced neurite skeletons: trees of nodes and undirected edges,
organized into a forest of groups.

Groups and trees live in an arena owned by the Skeleton and are addressed by integer
id.  Parent links are explicit ids, so traversal never relies on pointer cycles and a
corrupted hierarchy is detected by Validate instead of recursing without bound.  The
root group has id 0 and is implicit in serialized forms.  Tree ids and group ids are
separate id spaces.
*/
package skeleton

import (
	"fmt"
	"iter"

	"github.com/janelia-flyem/annotar/anno"
)

// RootGroupID is the id of the implicit root group.
const RootGroupID = 0

// Skeleton is the owner of all groups, trees and nodes of an annotation.
type Skeleton struct {
	groups    map[int]*Group
	trees     map[int]*Tree
	maxNodeID int
}

// New returns an empty skeleton holding only the root group.
func New() *Skeleton {
	s := &Skeleton{
		groups: make(map[int]*Group),
		trees:  make(map[int]*Tree),
	}
	s.groups[RootGroupID] = &Group{skel: s, id: RootGroupID, parent: RootGroupID}
	return s
}

// Root returns the root group.
func (s *Skeleton) Root() *Group {
	return s.groups[RootGroupID]
}

// AddTree adds a tree to the root group.  An id of 0 assigns a fresh id.
func (s *Skeleton) AddTree(name string, id int) (*Tree, error) {
	return s.Root().AddTree(name, id)
}

// AddGroup adds a group to the root group.  An id of 0 assigns a fresh id.
func (s *Skeleton) AddGroup(name string, id int) (*Group, error) {
	return s.Root().AddGroup(name, id)
}

// Tree returns the tree with the given id.
func (s *Skeleton) Tree(id int) (*Tree, error) {
	t, found := s.trees[id]
	if !found {
		return nil, anno.NewNotFoundError("tree", fmt.Sprintf("%d", id))
	}
	return t, nil
}

// Group returns the group with the given id.  Id 0 is the root group.
func (s *Skeleton) Group(id int) (*Group, error) {
	g, found := s.groups[id]
	if !found {
		return nil, anno.NewNotFoundError("group", fmt.Sprintf("%d", id))
	}
	return g, nil
}

// NumTrees returns the number of trees regardless of nesting.
func (s *Skeleton) NumTrees() int {
	return len(s.trees)
}

// NumGroups returns the number of groups, not counting the root.
func (s *Skeleton) NumGroups() int {
	return len(s.groups) - 1
}

// FlattenedTrees iterates over all trees of the skeleton.  See Group.FlattenedTrees.
func (s *Skeleton) FlattenedTrees() iter.Seq[*Tree] {
	return s.Root().FlattenedTrees()
}

// FlattenedGroups iterates over all groups below the root, depth-first in stored order.
func (s *Skeleton) FlattenedGroups() iter.Seq[*Group] {
	return s.Root().FlattenedGroups()
}

// TotalNodeCount returns the number of nodes in all trees.
func (s *Skeleton) TotalNodeCount() int {
	return s.Root().TotalNodeCount()
}

// MaxNodeID returns the largest node id ever added, or 0.
func (s *Skeleton) MaxNodeID() int {
	return s.maxNodeID
}

func (s *Skeleton) freshTreeID() int {
	var max int
	for id := range s.trees {
		if id > max {
			max = id
		}
	}
	return max + 1
}

func (s *Skeleton) freshGroupID() int {
	var max int
	for id := range s.groups {
		if id > max {
			max = id
		}
	}
	return max + 1
}

// RemoveTree deletes a tree and its nodes.
func (s *Skeleton) RemoveTree(id int) error {
	t, found := s.trees[id]
	if !found {
		return anno.NewNotFoundError("tree", fmt.Sprintf("%d", id))
	}
	parent := s.groups[t.group]
	parent.trees = removeID(parent.trees, id)
	delete(s.trees, id)
	t.skel = nil
	return nil
}

// RemoveGroup deletes a group with all groups and trees below it.
func (s *Skeleton) RemoveGroup(id int) error {
	if id == RootGroupID {
		return anno.InvalidArgumentf("cannot remove the root group")
	}
	g, found := s.groups[id]
	if !found {
		return anno.NewNotFoundError("group", fmt.Sprintf("%d", id))
	}
	var doomed []*Group
	for sub := range g.FlattenedGroups() {
		doomed = append(doomed, sub)
	}
	for _, sub := range append(doomed, g) {
		for _, treeID := range sub.trees {
			if t, found := s.trees[treeID]; found {
				t.skel = nil
				delete(s.trees, treeID)
			}
		}
		delete(s.groups, sub.id)
		sub.skel = nil
	}
	parent := s.groups[g.parent]
	parent.children = removeID(parent.children, id)
	return nil
}

// MoveTree moves a tree to the end of another group.
func (s *Skeleton) MoveTree(treeID, groupID int) error {
	t, err := s.Tree(treeID)
	if err != nil {
		return err
	}
	dst, err := s.Group(groupID)
	if err != nil {
		return err
	}
	src := s.groups[t.group]
	src.trees = removeID(src.trees, treeID)
	dst.trees = append(dst.trees, treeID)
	t.group = groupID
	return nil
}

// MoveGroup moves a group with everything below it to the end of another group.
// Moving a group below itself is rejected.
func (s *Skeleton) MoveGroup(groupID, newParentID int) error {
	if groupID == RootGroupID {
		return anno.InvalidArgumentf("cannot move the root group")
	}
	g, err := s.Group(groupID)
	if err != nil {
		return err
	}
	dst, err := s.Group(newParentID)
	if err != nil {
		return err
	}
	for cur := dst; ; cur = s.groups[cur.parent] {
		if cur.id == groupID {
			return anno.InvalidArgumentf("cannot move group %d below itself", groupID)
		}
		if cur.id == RootGroupID {
			break
		}
	}
	src := s.groups[g.parent]
	src.children = removeID(src.children, groupID)
	dst.children = append(dst.children, groupID)
	g.parent = newParentID
	return nil
}

// Validate checks the integrity of the group hierarchy and the trees.  It rejects parent
// cycles, dangling ids and edges whose endpoints are missing.
func (s *Skeleton) Validate() error {
	for id, g := range s.groups {
		if id == RootGroupID {
			continue
		}
		visited := map[int]bool{id: true}
		for cur := g; cur.id != RootGroupID; {
			parent, found := s.groups[cur.parent]
			if !found {
				return anno.FormatErrorf("skeleton", "group %d has missing parent %d", cur.id, cur.parent)
			}
			if visited[parent.id] {
				return anno.FormatErrorf("skeleton", "group %d is part of a cycle", id)
			}
			visited[parent.id] = true
			cur = parent
		}
		if !containsID(s.groups[g.parent].children, id) {
			return anno.FormatErrorf("skeleton", "group %d not listed by its parent %d", id, g.parent)
		}
	}
	for id, t := range s.trees {
		g, found := s.groups[t.group]
		if !found {
			return anno.FormatErrorf("skeleton", "tree %d has missing group %d", id, t.group)
		}
		if !containsID(g.trees, id) {
			return anno.FormatErrorf("skeleton", "tree %d not listed by its group %d", id, t.group)
		}
		for _, e := range t.edges {
			if t.nodeIdx[e.Source] == nil || t.nodeIdx[e.Target] == nil {
				return anno.FormatErrorf("skeleton", "tree %d has edge %d-%d with a missing node", id, e.Source, e.Target)
			}
		}
	}
	return nil
}

func removeID(ids []int, id int) []int {
	for i, have := range ids {
		if have == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}

func containsID(ids []int, id int) bool {
	for _, have := range ids {
		if have == id {
			return true
		}
	}
	return false
}
