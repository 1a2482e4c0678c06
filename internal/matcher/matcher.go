package matcher

import "math"

// EmbeddingDim is the fixed length of a face embedding produced by the
// inference service. Vectors of any other length are treated as absent.
const EmbeddingDim = 128

// DefaultThreshold is the empirically tuned match cutoff on Euclidean
// distance. Deployments override it via MATCH_THRESHOLD.
const DefaultThreshold = 0.55

// Distance returns the Euclidean distance between two embeddings.
// Nil, empty, or wrong-length inputs yield +Inf so that a malformed
// embedding can never produce a match.
func Distance(a, b []float64) float64 {
	if len(a) != EmbeddingDim || len(b) != EmbeddingDim {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// IsMatch reports whether two embeddings are within threshold of each other.
func IsMatch(a, b []float64, threshold float64) bool {
	return Distance(a, b) <= threshold
}

// Similarity maps a distance into (0,1] for display. It must never be used
// for the match decision itself; thresholding happens on raw distance.
func Similarity(distance float64) float64 {
	return math.Exp(-distance)
}

// Mean returns the element-wise arithmetic mean of the given embeddings.
// Returns nil if the slice is empty or any member has the wrong length.
func Mean(embeddings [][]float64) []float64 {
	if len(embeddings) == 0 {
		return nil
	}
	for _, e := range embeddings {
		if len(e) != EmbeddingDim {
			return nil
		}
	}
	out := make([]float64, EmbeddingDim)
	for _, e := range embeddings {
		for i, v := range e {
			out[i] += v
		}
	}
	n := float64(len(embeddings))
	for i := range out {
		out[i] /= n
	}
	return out
}
