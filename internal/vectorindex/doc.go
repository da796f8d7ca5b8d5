// Package vectorindex implements the hierarchical navigable small-world
// (HNSW) approximate nearest-neighbor index over concept embeddings:
// M neighbors per node (default 16), ef_construction at build time (default
// 200), a tunable ef_search per query, cosine distance by default with
// Euclidean selectable at store creation. The index is persisted next to
// the segment file as hnsw.idx and rebuilt from the segment's vectors if
// that file is absent or its header's dimension/metric don't match.
//
// The graph construction and search algorithms follow the structure of
// the original HNSW paper (Malkov & Yashunin); the vector arithmetic
// underneath (dot product, norm) is delegated to gonum.org/v1/gonum/floats
// rather than hand-rolled loops over []float32.
package vectorindex
