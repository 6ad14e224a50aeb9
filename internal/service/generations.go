package service

import (
	"hash/fnv"
	"sync/atomic"
)

const generationStripes = 256

// generations counts cache invalidations per user. Users share a stripe, so a
// collision only costs an extra cache delete.
type generations struct {
	stripes [generationStripes]atomic.Uint64
}

func (g *generations) stripe(userID string) *atomic.Uint64 {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return &g.stripes[h.Sum32()%generationStripes]
}

func (g *generations) current(userID string) uint64 {
	return g.stripe(userID).Load()
}

func (g *generations) bump(userID string) {
	g.stripe(userID).Add(1)
}
