package index

import "sort"

// components tracks which users are linked through shared entities.
// Users map to dense slots; each slot points at its parent slot and a
// root slot records the size of its group.
type components struct {
	slot   map[int]int
	parent []int
	size   []int
	groups int
}

func newComponents(users []int) *components {
	c := &components{
		slot:   make(map[int]int, len(users)),
		parent: make([]int, len(users)),
		size:   make([]int, len(users)),
		groups: len(users),
	}
	for i, u := range users {
		c.slot[u] = i
		c.parent[i] = i
		c.size[i] = 1
	}
	return c
}

// root returns the root slot of s, halving the path on the way up.
func (c *components) root(s int) int {
	for c.parent[s] != s {
		c.parent[s] = c.parent[c.parent[s]]
		s = c.parent[s]
	}
	return s
}

// link joins the groups of users a and b, hanging the smaller group under
// the larger. Unknown users are ignored. It reports whether two groups merged.
func (c *components) link(a, b int) bool {
	sa, okA := c.slot[a]
	sb, okB := c.slot[b]
	if !okA || !okB {
		return false
	}
	ra, rb := c.root(sa), c.root(sb)
	if ra == rb {
		return false
	}
	if c.size[ra] < c.size[rb] {
		ra, rb = rb, ra
	}
	c.parent[rb] = ra
	c.size[ra] += c.size[rb]
	c.groups--
	return true
}

// linkAll joins every user in users into one group.
func (c *components) linkAll(users map[int]int) {
	first, seen := 0, false
	for u := range users {
		if !seen {
			first, seen = u, true
			continue
		}
		c.link(first, u)
	}
}

// connected reports whether users a and b are in the same group.
func (c *components) connected(a, b int) bool {
	sa, okA := c.slot[a]
	sb, okB := c.slot[b]
	return okA && okB && c.root(sa) == c.root(sb)
}

// sizes returns the size of every group, largest first.
func (c *components) sizes() []int {
	out := make([]int, 0, c.groups)
	for s, p := range c.parent {
		if p == s {
			out = append(out, c.size[s])
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}
