package vectorindex

import "gonum.org/v1/gonum/floats"

// Metric selects the distance function used to rank neighbors.
type Metric uint8

const (
	// Cosine is the default metric: 1 - cosine similarity,
	// so identical vectors have distance 0.
	Cosine Metric = iota
	// Euclidean is selectable at store creation.
	Euclidean
)

// ParseMetric parses the store-creation metric name, defaulting to Cosine
// for an empty or unrecognized string.
func ParseMetric(s string) Metric {
	if s == "euclidean" {
		return Euclidean
	}
	return Cosine
}

// Distance computes the configured metric between a and b. Embeddings are
// widened to float64 at the call boundary so the arithmetic itself can be
// delegated to gonum.org/v1/gonum/floats rather than hand-rolled loops.
func Distance(metric Metric, a, b []float32) float64 {
	switch metric {
	case Euclidean:
		return euclidean(a, b)
	default:
		return cosineDistance(a, b)
	}
}

func cosineDistance(a, b []float32) float64 {
	fa, fb := widen(a), widen(b)
	na, nb := floats.Norm(fa, 2), floats.Norm(fb, 2)
	if na == 0 || nb == 0 {
		return 1
	}
	dot := floats.Dot(fa, fb)
	sim := dot / (na * nb)
	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}
	return 1 - sim
}

func euclidean(a, b []float32) float64 {
	fa, fb := widen(a), widen(b)
	diff := make([]float64, len(fa))
	copy(diff, fa)
	floats.Sub(diff, fb)
	return floats.Norm(diff, 2)
}

func widen(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
