package rcforest

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// boxMemo is a transient, per-tree memo of lazily recomputed bounding
// boxes for internal nodes below the configured cache fraction (§4.3).
// Unlike a node's permanent cache (kept forever, always tight), this is a
// bounded LRU: within a single query or update's traversal, a node whose
// box already got rebuilt this round is returned from the memo instead of
// re-walking its children, but the memo itself is free to evict entries
// between calls rather than grow unbounded across the tree's lifetime.
// Grounded in the pack's own use of github.com/hashicorp/golang-lru/v2 for
// exactly this "recently recomputed, don't redo the work" shape (see
// transparency-dev-trillian-tessera's dedupe.go).
type boxMemo struct {
	cache *lru.Cache[*node, *BoundingBox]
}

func newBoxMemo(size int) *boxMemo {
	c, err := lru.New[*node, *BoundingBox](size)
	if err != nil {
		// size is always a positive compile-time constant at call sites;
		// this can only fail on a non-positive size.
		panic(err)
	}
	return &boxMemo{cache: c}
}

func (m *boxMemo) get(n *node) (*BoundingBox, bool) {
	return m.cache.Get(n)
}

func (m *boxMemo) add(n *node, b *BoundingBox) {
	m.cache.Add(n, b)
}

func (m *boxMemo) remove(n *node) {
	m.cache.Remove(n)
}
