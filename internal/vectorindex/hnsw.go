package vectorindex

import (
	"container/heap"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/sutra-db/sutra/internal/concept"
)

// DefaultM is the default number of neighbors per node per layer.
const DefaultM = 16

// DefaultEfConstruction is the default candidate-list size used while
// building the graph.
const DefaultEfConstruction = 200

type node struct {
	vector    []float32
	neighbors []map[concept.ID]struct{} // neighbors[level] for level in [0, len(neighbors))
}

// Graph is a single shard's HNSW index over its concept embeddings. It is
// safe for concurrent use: inserts take the exclusive lock, searches take
// the shared lock.
type Graph struct {
	mu             sync.RWMutex
	rng            *rand.Rand
	nodes          map[concept.ID]*node
	metric         Metric
	dimension      int
	m              int
	mMax0          int
	efConstruction int
	levelMult      float64
	entryPoint     concept.ID
	hasEntry       bool
	maxLevel       int
}

// New returns an empty HNSW graph for vectors of the given dimension.
func New(metric Metric, dimension, m, efConstruction int) *Graph {
	if m <= 0 {
		m = DefaultM
	}
	if efConstruction <= 0 {
		efConstruction = DefaultEfConstruction
	}
	return &Graph{
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
		nodes:          make(map[concept.ID]*node),
		metric:         metric,
		dimension:      dimension,
		m:              m,
		mMax0:          m * 2,
		efConstruction: efConstruction,
		levelMult:      1 / math.Log(float64(m)),
	}
}

// Len returns the number of vectors currently indexed.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

func (g *Graph) randomLevel() int {
	level := int(math.Floor(-math.Log(g.rng.Float64()) * g.levelMult))
	return level
}

// Insert adds or replaces the vector for id. A replacement first removes
// the node's existing edges so stale neighbors don't linger after a
// re-embedding (the store's WAL replay re-inserts the id of every concept
// record it applies, so the same id can arrive more than once).
func (g *Graph) Insert(id concept.ID, vector []float32) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.nodes[id]; ok {
		g.unlinkLocked(id, existing)
	}

	level := g.randomLevel()
	n := &node{vector: vector, neighbors: make([]map[concept.ID]struct{}, level+1)}
	for l := range n.neighbors {
		n.neighbors[l] = make(map[concept.ID]struct{})
	}
	g.nodes[id] = n

	if !g.hasEntry {
		g.entryPoint = id
		g.hasEntry = true
		g.maxLevel = level
		return
	}

	entry := g.entryPoint
	curDist := g.distLocked(vector, entry)
	for l := g.maxLevel; l > level; l-- {
		entry, curDist = g.greedyDescend(vector, entry, curDist, l)
	}

	for l := min(level, g.maxLevel); l >= 0; l-- {
		candidates := g.searchLayerLocked(vector, []candidate{{id: entry, dist: curDist}}, g.efConstruction, l)
		maxConns := g.m
		if l == 0 {
			maxConns = g.mMax0
		}
		selected := selectNeighbors(candidates, maxConns)
		for _, c := range selected {
			n.neighbors[l][c.id] = struct{}{}
			other := g.nodes[c.id]
			if l < len(other.neighbors) {
				other.neighbors[l][id] = struct{}{}
				g.trimLocked(other, l, maxConnsFor(g, l))
			}
		}
		if len(candidates) > 0 {
			entry, curDist = candidates[0].id, candidates[0].dist
		}
	}

	if level > g.maxLevel {
		g.maxLevel = level
		g.entryPoint = id
	}
}

func maxConnsFor(g *Graph, level int) int {
	if level == 0 {
		return g.mMax0
	}
	return g.m
}

// trimLocked keeps only the nearest maxConns neighbors of n at level,
// evicting the farthest when degree exceeds the bound.
func (g *Graph) trimLocked(n *node, level, maxConns int) {
	if len(n.neighbors[level]) <= maxConns {
		return
	}
	cands := make([]candidate, 0, len(n.neighbors[level]))
	for id := range n.neighbors[level] {
		cands = append(cands, candidate{id: id, dist: g.distLocked(n.vector, id)})
	}
	kept := selectNeighbors(cands, maxConns)
	n.neighbors[level] = make(map[concept.ID]struct{}, len(kept))
	for _, c := range kept {
		n.neighbors[level][c.id] = struct{}{}
	}
}

func (g *Graph) unlinkLocked(id concept.ID, n *node) {
	for l, peers := range n.neighbors {
		for peerID := range peers {
			if peer, ok := g.nodes[peerID]; ok && l < len(peer.neighbors) {
				delete(peer.neighbors[l], id)
			}
		}
	}
	delete(g.nodes, id)
}

func (g *Graph) distLocked(v []float32, id concept.ID) float64 {
	return Distance(g.metric, v, g.nodes[id].vector)
}

func (g *Graph) greedyDescend(query []float32, entry concept.ID, entryDist float64, level int) (concept.ID, float64) {
	improved := true
	for improved {
		improved = false
		n := g.nodes[entry]
		if level >= len(n.neighbors) {
			continue
		}
		for peerID := range n.neighbors[level] {
			d := g.distLocked(query, peerID)
			if d < entryDist {
				entry, entryDist = peerID, d
				improved = true
			}
		}
	}
	return entry, entryDist
}

// searchLayerLocked runs the standard HNSW layer search from entryPoints,
// returning up to ef candidates sorted nearest-first.
func (g *Graph) searchLayerLocked(query []float32, entryPoints []candidate, ef int, level int) []candidate {
	visited := make(map[concept.ID]struct{}, ef*2)
	frontier := &minHeap{}
	results := &maxHeap{}
	heap.Init(frontier)
	heap.Init(results)

	for _, ep := range entryPoints {
		visited[ep.id] = struct{}{}
		heap.Push(frontier, ep)
		heap.Push(results, ep)
	}

	for frontier.Len() > 0 {
		nearest := heap.Pop(frontier).(candidate)
		if results.Len() >= ef && nearest.dist > (*results)[0].dist {
			break
		}
		n := g.nodes[nearest.id]
		if level >= len(n.neighbors) {
			continue
		}
		for peerID := range n.neighbors[level] {
			if _, seen := visited[peerID]; seen {
				continue
			}
			visited[peerID] = struct{}{}
			d := g.distLocked(query, peerID)
			if results.Len() < ef || d < (*results)[0].dist {
				heap.Push(frontier, candidate{id: peerID, dist: d})
				heap.Push(results, candidate{id: peerID, dist: d})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]candidate, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(results).(candidate)
	}
	return out
}

// selectNeighbors picks the max nearest candidates, already sorted
// nearest-first by the caller's heap-drain order.
func selectNeighbors(candidates []candidate, max int) []candidate {
	if len(candidates) <= max {
		return candidates
	}
	return candidates[:max]
}

// SearchResult is one ranked hit from Search.
type SearchResult struct {
	ID       concept.ID
	Distance float64
}

// Search returns the approximate k nearest neighbors of query, exploring a
// candidate list of size ef at the base layer. If ef < k, ef is raised to k.
func (g *Graph) Search(query []float32, k, ef int) []SearchResult {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if !g.hasEntry {
		return nil
	}
	if ef < k {
		ef = k
	}

	entry := g.entryPoint
	curDist := g.distLocked(query, entry)
	for l := g.maxLevel; l > 0; l-- {
		entry, curDist = g.greedyDescend(query, entry, curDist, l)
	}

	candidates := g.searchLayerLocked(query, []candidate{{id: entry, dist: curDist}}, ef, 0)
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	out := make([]SearchResult, len(candidates))
	for i, c := range candidates {
		out[i] = SearchResult{ID: c.id, Distance: c.dist}
	}
	return out
}
