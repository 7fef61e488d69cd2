// Package dupes implements the perceptual-hash duplicate grouper: union-find
// over pairwise Hamming distance of 64-bit perceptual hashes.
package dupes

import (
	"context"
	"sort"

	"github.com/ronimuliawan/Wanderer/internal/mediautil"
	"github.com/ronimuliawan/Wanderer/internal/store"
)

// FindDuplicatesInStore loads every non-deleted item with a perceptual
// hash from the store and groups it.
func FindDuplicatesInStore(ctx context.Context, s *store.Store) ([][]store.MediaItem, error) {
	items, err := s.ListAllWithPerceptualHash(ctx)
	if err != nil {
		return nil, err
	}
	return FindDuplicates(items), nil
}

// MaxHammingDistance is the union threshold: hard-coded and coupled to
// the hasher choice.
const MaxHammingDistance = 10

type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.rank[ra] < uf.rank[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	if uf.rank[ra] == uf.rank[rb] {
		uf.rank[ra]++
	}
}

// FindDuplicates groups items by perceptual hash proximity: every pair in a
// returned group has Hamming distance <= MaxHammingDistance by some chain
// of union-find hops. Only groups of size >= 2 are returned,
// each internally sorted by CreatedAt ascending, groups sorted by size
// descending.
//
// Complexity is O(N^2) over the candidate set, acceptable for libraries up
// to ~10^5 items without a spatial index.
func FindDuplicates(items []store.MediaItem) [][]store.MediaItem {
	candidates := make([]store.MediaItem, 0, len(items))
	for _, it := range items {
		if it.IsDeleted || it.PerceptualHash == "" {
			continue
		}
		candidates = append(candidates, it)
	}

	uf := newUnionFind(len(candidates))
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			if mediautil.HammingDistance64(candidates[i].PerceptualHash, candidates[j].PerceptualHash) <= MaxHammingDistance {
				uf.union(i, j)
			}
		}
	}

	groups := map[int][]store.MediaItem{}
	for i, item := range candidates {
		root := uf.find(i)
		groups[root] = append(groups[root], item)
	}

	var out [][]store.MediaItem
	for _, g := range groups {
		if len(g) < 2 {
			continue
		}
		sort.Slice(g, func(a, b int) bool { return g[a].CreatedAt.Before(g[b].CreatedAt) })
		out = append(out, g)
	}
	sort.Slice(out, func(a, b int) bool { return len(out[a]) > len(out[b]) })
	return out
}
