// Package codec converts nested pose records to flat numeric rows and back.
//
// A Descriptor is derived once from a sample record: it mirrors the sample's
// shape with every number replaced by its position in the flattened row.
// Every following record of the same shape then flattens in a single pass
// without re-serializing key names.
package codec

import (
	"github.com/teranos/handcap/record"
	"github.com/teranos/handcap/trip"
)

type nodeKind int

const (
	leafNode nodeKind = iota + 1
	listNode
	recordNode
)

// Entry is one keyed child of a record descriptor.
type Entry struct {
	Key  string
	Node Descriptor
}

// Descriptor mirrors a record's shape. Leaves hold row indices.
type Descriptor struct {
	kind    nodeKind
	index   int
	items   []Descriptor
	entries []Entry
}

// Leaf returns a descriptor leaf pointing at row index i.
func Leaf(i int) Descriptor { return Descriptor{kind: leafNode, index: i} }

// List returns a list descriptor.
func List(items ...Descriptor) Descriptor {
	return Descriptor{kind: listNode, items: append([]Descriptor{}, items...)}
}

// Record returns a record descriptor with the given entries in order.
func Record(entries ...Entry) Descriptor {
	return Descriptor{kind: recordNode, entries: append([]Entry{}, entries...)}
}

// IsLeaf reports whether d is a leaf, and its index.
func (d Descriptor) IsLeaf() (int, bool) { return d.index, d.kind == leafNode }

// IsZero reports whether d was never built.
func (d Descriptor) IsZero() bool { return d.kind == 0 }

// Items returns the children of a list descriptor.
func (d Descriptor) Items() []Descriptor { return d.items }

// Entries returns the children of a record descriptor.
func (d Descriptor) Entries() []Entry { return d.entries }

// Lookup returns the child for key in a record descriptor.
func (d Descriptor) Lookup(key string) (Descriptor, bool) {
	for _, e := range d.entries {
		if e.Key == key {
			return e.Node, true
		}
	}
	return Descriptor{}, false
}

// CreateDescriptor assigns indices to the leaves of sample depth first,
// object keys in insertion order then array elements in order, starting at 0.
func CreateDescriptor(sample record.Value) (Descriptor, error) {
	next := 0
	return describe(sample, &next, "")
}

func describe(v record.Value, next *int, path string) (Descriptor, error) {
	switch v.Kind() {
	case record.Number:
		d := Leaf(*next)
		*next++
		return d, nil
	case record.Array:
		items := make([]Descriptor, v.Len())
		for i := range items {
			items[i] = Leaf(*next)
			*next++
		}
		return Descriptor{kind: listNode, items: items}, nil
	case record.Object:
		entries := make([]Entry, 0, v.Len())
		for _, f := range v.Fields() {
			child, err := describe(f.Value, next, path+"/"+f.Key)
			if err != nil {
				return Descriptor{}, err
			}
			entries = append(entries, Entry{Key: f.Key, Node: child})
		}
		return Descriptor{kind: recordNode, entries: entries}, nil
	}
	return Descriptor{}, trip.Typef("%s: cannot describe %s leaf", where(path), v.Kind())
}

// Leaves returns the number of leaf indices in d.
func (d Descriptor) Leaves() int {
	switch d.kind {
	case leafNode:
		return 1
	case listNode:
		n := 0
		for _, it := range d.items {
			n += it.Leaves()
		}
		return n
	case recordNode:
		n := 0
		for _, e := range d.entries {
			n += e.Node.Leaves()
		}
		return n
	}
	return 0
}

// Check verifies that the leaf indices of d are exactly 0..N-1 with no repeats.
func (d Descriptor) Check() error {
	n := d.Leaves()
	seen := make([]bool, n)
	var visit func(Descriptor) error
	visit = func(node Descriptor) error {
		switch node.kind {
		case leafNode:
			if node.index < 0 || node.index >= n {
				return trip.Schemaf("descriptor index %d outside [0,%d)", node.index, n)
			}
			if seen[node.index] {
				return trip.Schemaf("descriptor index %d repeated", node.index)
			}
			seen[node.index] = true
		case listNode:
			for _, it := range node.items {
				if err := visit(it); err != nil {
					return err
				}
			}
		case recordNode:
			for _, e := range node.entries {
				if err := visit(e.Node); err != nil {
					return err
				}
			}
		default:
			return trip.Schemaf("empty descriptor node")
		}
		return nil
	}
	return visit(d)
}

// Clone returns a deep copy of d.
func (d Descriptor) Clone() Descriptor {
	out := Descriptor{kind: d.kind, index: d.index}
	if d.items != nil {
		out.items = make([]Descriptor, len(d.items))
		for i, it := range d.items {
			out.items[i] = it.Clone()
		}
	}
	if d.entries != nil {
		out.entries = make([]Entry, len(d.entries))
		for i, e := range d.entries {
			out.entries[i] = Entry{Key: e.Key, Node: e.Node.Clone()}
		}
	}
	return out
}

// Equal reports exact structural equality, including key order and indices.
func Equal(a, b Descriptor) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case leafNode:
		return a.index == b.index
	case listNode:
		if len(a.items) != len(b.items) {
			return false
		}
		for i := range a.items {
			if !Equal(a.items[i], b.items[i]) {
				return false
			}
		}
		return true
	case recordNode:
		if len(a.entries) != len(b.entries) {
			return false
		}
		for i := range a.entries {
			if a.entries[i].Key != b.entries[i].Key || !Equal(a.entries[i].Node, b.entries[i].Node) {
				return false
			}
		}
		return true
	}
	return true
}

func where(path string) string {
	if path == "" {
		return "/"
	}
	return path
}
