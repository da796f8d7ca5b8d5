package vectorindex

import (
	"bufio"
	"encoding/binary"
	"math"
	"os"

	"github.com/sutra-db/sutra/internal/concept"
	"github.com/sutra-db/sutra/internal/sutraerr"
)

// idxMagic identifies a serialized hnsw.idx file; idxVersion is bumped
// whenever the on-disk layout changes, forcing a rebuild-from-vectors on
// load rather than attempting to interpret a stale format.
var idxMagic = [4]byte{'H', 'N', 'S', 'W'}

const idxVersion = uint32(1)

// Save writes the graph's full adjacency structure to path so a later
// Load can skip reconstruction entirely.
func (g *Graph) Save(path string) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	if _, err := w.Write(idxMagic[:]); err != nil {
		return err
	}
	if err := writeU32(w, idxVersion); err != nil {
		return err
	}
	if err := writeU32(w, uint32(g.dimension)); err != nil {
		return err
	}
	if err := writeU32(w, uint32(g.metric)); err != nil {
		return err
	}
	if err := writeU32(w, uint32(g.m)); err != nil {
		return err
	}
	if err := writeU32(w, uint32(g.efConstruction)); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(g.nodes))); err != nil {
		return err
	}

	for id, n := range g.nodes {
		if _, err := w.Write(id[:]); err != nil {
			return err
		}
		for _, v := range n.vector {
			if err := writeU32(w, math.Float32bits(v)); err != nil {
				return err
			}
		}
		if err := writeU32(w, uint32(len(n.neighbors))); err != nil {
			return err
		}
		for _, layer := range n.neighbors {
			if err := writeU32(w, uint32(len(layer))); err != nil {
				return err
			}
			for peer := range layer {
				if _, err := w.Write(peer[:]); err != nil {
					return err
				}
			}
		}
	}

	if g.hasEntry {
		if err := writeU32(w, 1); err != nil {
			return err
		}
		if _, err := w.Write(g.entryPoint[:]); err != nil {
			return err
		}
	} else {
		if err := writeU32(w, 0); err != nil {
			return err
		}
	}
	if err := writeU32(w, uint32(g.maxLevel)); err != nil {
		return err
	}

	if err := w.Flush(); err != nil {
		return err
	}
	return f.Sync()
}

// Load reads a graph previously written by Save. A foreign file yields
// BadMagic and a dimension or metric mismatch LoadDimensionMismatch (both
// corruption kind); a version mismatch yields MalformedFrame. Any of these
// signals the caller to fall back to RebuildFromVectors.
func Load(path string, wantDimension int, wantMetric Metric) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var magic [4]byte
	if _, err := readFull(r, magic[:]); err != nil {
		return nil, err
	}
	if magic != idxMagic {
		return nil, sutraerr.BadMagic(0)
	}
	version, err := readU32(r)
	if err != nil {
		return nil, err
	}
	if version != idxVersion {
		return nil, sutraerr.MalformedFrame("hnsw.idx version mismatch")
	}
	dimension, err := readU32(r)
	if err != nil {
		return nil, err
	}
	metric, err := readU32(r)
	if err != nil {
		return nil, err
	}
	if int(dimension) != wantDimension || Metric(metric) != wantMetric {
		return nil, sutraerr.LoadDimensionMismatch(int(dimension), wantDimension)
	}
	m, err := readU32(r)
	if err != nil {
		return nil, err
	}
	efc, err := readU32(r)
	if err != nil {
		return nil, err
	}
	count, err := readU32(r)
	if err != nil {
		return nil, err
	}

	g := New(Metric(metric), int(dimension), int(m), int(efc))

	for i := uint32(0); i < count; i++ {
		var id concept.ID
		if _, err := readFull(r, id[:]); err != nil {
			return nil, err
		}
		vector := make([]float32, dimension)
		for d := range vector {
			bits, err := readU32(r)
			if err != nil {
				return nil, err
			}
			vector[d] = math.Float32frombits(bits)
		}
		numLevels, err := readU32(r)
		if err != nil {
			return nil, err
		}
		n := &node{vector: vector, neighbors: make([]map[concept.ID]struct{}, numLevels)}
		for l := range n.neighbors {
			layerSize, err := readU32(r)
			if err != nil {
				return nil, err
			}
			n.neighbors[l] = make(map[concept.ID]struct{}, layerSize)
			for j := uint32(0); j < layerSize; j++ {
				var peer concept.ID
				if _, err := readFull(r, peer[:]); err != nil {
					return nil, err
				}
				n.neighbors[l][peer] = struct{}{}
			}
		}
		g.nodes[id] = n
	}

	hasEntry, err := readU32(r)
	if err != nil {
		return nil, err
	}
	if hasEntry == 1 {
		var entry concept.ID
		if _, err := readFull(r, entry[:]); err != nil {
			return nil, err
		}
		g.entryPoint = entry
		g.hasEntry = true
	}
	maxLevel, err := readU32(r)
	if err != nil {
		return nil, err
	}
	g.maxLevel = int(maxLevel)

	return g, nil
}

// RebuildFromVectors reconstructs the graph from scratch by inserting every
// (id, vector) pair in the order given. Used when hnsw.idx is missing or
// stale relative to the segment it sits beside.
func RebuildFromVectors(metric Metric, dimension, m, efConstruction int, vectors map[concept.ID][]float32) *Graph {
	g := New(metric, dimension, m, efConstruction)
	for id, v := range vectors {
		g.Insert(id, v)
	}
	return g
}

func writeU32(w *bufio.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readU32(r *bufio.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := readFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		k, err := r.Read(buf[n:])
		n += k
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
