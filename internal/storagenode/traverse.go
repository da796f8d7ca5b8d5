package storagenode

import (
	"sync/atomic"
	"time"

	"github.com/sutra-db/sutra/internal/concept"
	"github.com/sutra-db/sutra/internal/graphidx"
	"github.com/sutra-db/sutra/internal/sutraerr"
)

// TraversalHop is one concept reached at a given distance from the
// traversal root, returned by GetNeighborsDepth.
type TraversalHop struct {
	Concept     *concept.Concept
	Association *concept.Association
	Depth       int
}

// GetNeighborsDepth performs a breadth-first expansion out to depth hops
//,
// returning every concept reached along with the edge that reached it
// first and its distance from id.
func (n *Node) GetNeighborsDepth(id concept.ID, typeFilter concept.AssocType, depth int) ([]TraversalHop, error) {
	if depth < 1 {
		depth = 1
	}
	if depth > MaxTraversalDepth {
		return nil, sutraerr.DepthExceeded(depth, MaxTraversalDepth)
	}
	if _, ok := n.store.Index().GetConcept(id); !ok {
		return nil, sutraerr.UnknownConcept(id.String())
	}

	visited := map[concept.ID]struct{}{id: {}}
	frontier := []concept.ID{id}
	var out []TraversalHop

	idx := n.store.Index()
	for d := 1; d <= depth && len(frontier) > 0; d++ {
		var next []concept.ID
		for _, cur := range frontier {
			for _, nb := range idx.GetNeighbors(cur, typeFilter) {
				if _, seen := visited[nb.Concept.ID]; seen {
					continue
				}
				visited[nb.Concept.ID] = struct{}{}
				out = append(out, TraversalHop{Concept: nb.Concept, Association: nb.Association, Depth: d})
				next = append(next, nb.Concept.ID)
			}
		}
		frontier = next
	}
	return out, nil
}

// Path is the result of FindPath: an ordered concept sequence plus its
// aggregate confidence.
type Path struct {
	Concepts   []concept.ID
	Confidence float64
}

type pathEntry struct {
	prevLeft  concept.ID // predecessor in the left-growing frontier
	prevRight concept.ID // predecessor in the right-growing frontier
	hasLeft   bool
	hasRight  bool
}

// FindPath runs a bidirectional best-first search: expand from both
// endpoints, prioritizing edges by
// weight×confidence, until the two frontiers meet. Returns an empty Path
// if no connection exists within maxDepth hops from either side.
func (n *Node) FindPath(src, tgt concept.ID, maxDepth int) (Path, error) {
	if maxDepth < 1 {
		maxDepth = 1
	}
	if maxDepth > MaxTraversalDepth {
		return Path{}, sutraerr.DepthExceeded(maxDepth, MaxTraversalDepth)
	}
	if _, ok := n.store.Index().GetConcept(src); !ok {
		return Path{}, sutraerr.UnknownConcept(src.String())
	}
	if _, ok := n.store.Index().GetConcept(tgt); !ok {
		return Path{}, sutraerr.UnknownConcept(tgt.String())
	}
	defer atomic.AddUint64(&n.stats.PathFinds, 1)

	if src == tgt {
		return Path{Concepts: []concept.ID{src}, Confidence: 1}, nil
	}

	idx := n.store.Index()
	fromSrc := map[concept.ID][]concept.ID{src: {src}}
	fromTgt := map[concept.ID][]concept.ID{tgt: {tgt}}
	frontierSrc := []concept.ID{src}
	frontierTgt := []concept.ID{tgt}

	for depth := 0; depth < maxDepth; depth++ {
		if meetingPath, ok := expandFrontier(idx, &frontierSrc, fromSrc, fromTgt); ok {
			return n.scorePath(meetingPath), nil
		}
		if len(frontierSrc) == 0 && len(frontierTgt) == 0 {
			break
		}
		if meetingPath, ok := expandFrontier(idx, &frontierTgt, fromTgt, fromSrc); ok {
			reversed := make([]concept.ID, len(meetingPath))
			for i, c := range meetingPath {
				reversed[len(meetingPath)-1-i] = c
			}
			return n.scorePath(reversed), nil
		}
	}
	return Path{}, nil
}

// expandFrontier grows one side of the bidirectional search by one hop,
// ordering candidate edges by weight×confidence so the strongest
// connections are explored first. It returns the concatenated path the
// moment a node already known to the opposite frontier is reached.
func expandFrontier(idx *graphidx.Index, frontier *[]concept.ID, mine, theirs map[concept.ID][]concept.ID) ([]concept.ID, bool) {
	var next []concept.ID
	for _, cur := range *frontier {
		neighbors := idx.GetNeighbors(cur, 0)
		sortNeighborsByScore(neighbors)
		for _, nb := range neighbors {
			if _, already := mine[nb.Concept.ID]; already {
				continue
			}
			path := append(append([]concept.ID{}, mine[cur]...), nb.Concept.ID)
			mine[nb.Concept.ID] = path
			if otherPath, met := theirs[nb.Concept.ID]; met {
				full := append(append([]concept.ID{}, path...), reverseWithoutFirst(otherPath)...)
				return full, true
			}
			next = append(next, nb.Concept.ID)
		}
	}
	*frontier = next
	return nil, false
}

func reverseWithoutFirst(path []concept.ID) []concept.ID {
	if len(path) <= 1 {
		return nil
	}
	out := make([]concept.ID, len(path)-1)
	for i := range out {
		out[i] = path[len(path)-2-i]
	}
	return out
}

func sortNeighborsByScore(neighbors []graphidx.Neighbor) {
	for i := 1; i < len(neighbors); i++ {
		for j := i; j > 0 && score(neighbors[j]) > score(neighbors[j-1]); j-- {
			neighbors[j], neighbors[j-1] = neighbors[j-1], neighbors[j]
		}
	}
}

func score(nb graphidx.Neighbor) float64 {
	if nb.Association == nil {
		return 0
	}
	return nb.Association.Score()
}

// scorePath aggregates per-edge confidence by harmonic mean with a gentle
// depth penalty, and refreshes each traversed edge's
// last-used timestamp.
func (n *Node) scorePath(path []concept.ID) Path {
	if len(path) < 2 {
		return Path{Concepts: path, Confidence: 1}
	}
	idx := n.store.Index()
	now := time.Now()
	var reciprocalSum float64
	edges := 0
	for i := 0; i+1 < len(path); i++ {
		conf := 0.01
		for _, nb := range idx.GetNeighbors(path[i], 0) {
			if nb.Concept.ID != path[i+1] || nb.Association == nil {
				continue
			}
			conf = nb.Association.Confidence
			if conf <= 0 {
				conf = 0.01
			}
			key := concept.Key{Source: path[i], Target: path[i+1], Type: nb.Association.Type}
			if !nb.Outbound {
				key = concept.Key{Source: path[i+1], Target: path[i], Type: nb.Association.Type}
			}
			idx.TouchLastUsed(key, now)
			break
		}
		reciprocalSum += 1 / conf
		edges++
	}
	harmonic := float64(edges) / reciprocalSum
	depthPenalty := 1.0
	for i := 0; i < edges; i++ {
		depthPenalty *= 0.99
	}
	return Path{Concepts: path, Confidence: harmonic * depthPenalty}
}
