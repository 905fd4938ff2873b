package query

import "sort"

// FacetNode is one bucket of a facet or pivot response. The root node of a
// facet is named after the field and counts every matching record; its
// children are the field's values.
type FacetNode struct {
	Name     string       `json:"name"`
	Count    int64        `json:"count"`
	Children []*FacetNode `json:"children,omitempty"`
}

// Child returns the direct child called name.
func (n *FacetNode) Child(name string) (*FacetNode, bool) {
	if n == nil {
		return nil, false
	}
	for _, c := range n.Children {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Find walks the path of bucket names below n.
func (n *FacetNode) Find(path ...string) (*FacetNode, bool) {
	cur := n
	for _, p := range path {
		next, ok := cur.Child(p)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, cur != nil
}

// Counts returns the direct children as a name -> count map.
func (n *FacetNode) Counts() map[string]int64 {
	out := make(map[string]int64)
	if n == nil {
		return out
	}
	for _, c := range n.Children {
		out[c.Name] = c.Count
	}
	return out
}

// Walk calls fn for every node below n, depth first, with the bucket path
// leading to it.
func (n *FacetNode) Walk(fn func(path []string, node *FacetNode)) {
	if n == nil {
		return
	}
	var visit func(path []string, node *FacetNode)
	visit = func(path []string, node *FacetNode) {
		for _, c := range node.Children {
			p := append(append([]string(nil), path...), c.Name)
			fn(p, c)
			visit(p, c)
		}
	}
	visit(nil, n)
}

// SortChildren orders children by descending count then name, recursively.
func (n *FacetNode) SortChildren() {
	if n == nil {
		return
	}
	sort.Slice(n.Children, func(i, j int) bool {
		a, b := n.Children[i], n.Children[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Name < b.Name
	})
	for _, c := range n.Children {
		c.SortChildren()
	}
}

// Add records count occurrences of the value path below n, creating
// intermediate buckets as needed.
func (n *FacetNode) Add(count int64, path ...string) {
	cur := n
	cur.Count += count
	for _, p := range path {
		next, ok := cur.Child(p)
		if !ok {
			next = &FacetNode{Name: p}
			cur.Children = append(cur.Children, next)
		}
		next.Count += count
		cur = next
	}
}
