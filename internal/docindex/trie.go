package docindex

import (
	"sort"
)

type trieNode struct {
	children map[rune]*trieNode
	terminal bool
}

func newTrieNode() *trieNode {
	return &trieNode{children: make(map[rune]*trieNode)}
}

// sortedRunes returns the node's child edges in code-point order, which is
// also the byte order of their UTF-8 encodings.
func (n *trieNode) sortedRunes() []rune {
	rs := make([]rune, 0, len(n.children))
	for r := range n.children {
		rs = append(rs, r)
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i] < rs[j] })
	return rs
}

// Trie is a rune-keyed prefix tree. It stores keys verbatim; callers fold
// before inserting and before querying. A Trie is not safe for concurrent
// mutation, but a fully built one may be read from many goroutines.
type Trie struct {
	root *trieNode
	keys int
}

func NewTrie() *Trie {
	return &Trie{root: newTrieNode()}
}

// Insert adds key as a complete key. Empty keys are ignored.
func (t *Trie) Insert(key string) {
	if key == "" {
		return
	}
	node := t.root
	for _, r := range key {
		child, ok := node.children[r]
		if !ok {
			child = newTrieNode()
			node.children[r] = child
		}
		node = child
	}
	if !node.terminal {
		node.terminal = true
		t.keys++
	}
}

// Len returns the number of distinct complete keys.
func (t *Trie) Len() int {
	return t.keys
}

func (t *Trie) find(prefix string) *trieNode {
	node := t.root
	for _, r := range prefix {
		child, ok := node.children[r]
		if !ok {
			return nil
		}
		node = child
	}
	return node
}

// Contains reports whether key was inserted as a complete key.
func (t *Trie) Contains(key string) bool {
	node := t.find(key)
	return node != nil && node.terminal
}

// HasPrefix reports whether any inserted key starts with prefix.
func (t *Trie) HasPrefix(prefix string) bool {
	return t.find(prefix) != nil
}

// KeysWithPrefix returns up to limit complete keys starting with prefix, in
// lexical order. A limit of zero or less returns every match.
func (t *Trie) KeysWithPrefix(prefix string, limit int) []string {
	node := t.find(prefix)
	if node == nil {
		return []string{}
	}
	out := make([]string, 0)
	buf := []rune(prefix)
	var walk func(n *trieNode) bool
	walk = func(n *trieNode) bool {
		if n.terminal {
			out = append(out, string(buf))
			if limit > 0 && len(out) >= limit {
				return false
			}
		}
		for _, r := range n.sortedRunes() {
			buf = append(buf, r)
			more := walk(n.children[r])
			buf = buf[:len(buf)-1]
			if !more {
				return false
			}
		}
		return true
	}
	walk(node)
	return out
}

// AnyWithin reports whether some complete key lies within maxDist
// Levenshtein edits of query. It walks the trie carrying one row of the
// edit-distance matrix per depth and abandons a branch once every cell in
// the row exceeds maxDist, so unrelated subtrees are never expanded.
func (t *Trie) AnyWithin(query string, maxDist int) bool {
	if maxDist < 0 {
		return false
	}
	q := []rune(query)
	row := make([]int, len(q)+1)
	for j := range row {
		row[j] = j
	}
	if t.root.terminal && row[len(q)] <= maxDist {
		return true
	}
	for r, child := range t.root.children {
		if anyWithin(child, r, q, row, maxDist) {
			return true
		}
	}
	return false
}

func anyWithin(node *trieNode, r rune, q []rune, prev []int, maxDist int) bool {
	cur := make([]int, len(prev))
	cur[0] = prev[0] + 1
	rowMin := cur[0]
	for j := 1; j < len(cur); j++ {
		cost := 1
		if q[j-1] == r {
			cost = 0
		}
		cur[j] = min(cur[j-1]+1, prev[j]+1, prev[j-1]+cost)
		rowMin = min(rowMin, cur[j])
	}
	if node.terminal && cur[len(q)] <= maxDist {
		return true
	}
	if rowMin > maxDist {
		return false
	}
	for next, child := range node.children {
		if anyWithin(child, next, q, cur, maxDist) {
			return true
		}
	}
	return false
}
