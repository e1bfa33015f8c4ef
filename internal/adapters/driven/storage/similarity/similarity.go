// Package similarity holds the brute-force vector scoring shared by the
// embedded vector stores.
package similarity

import (
	"math"
	"sort"
)

// Cosine returns the cosine similarity of a and b, or 0 when either is
// empty, zero or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Scored pairs an item index with its score.
type Scored struct {
	Index int
	Score float64
}

// TopK returns the k highest scores, descending. Ties keep input order.
func TopK(scores []Scored, k int) []Scored {
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Score > scores[j].Score
	})
	if k >= 0 && len(scores) > k {
		scores = scores[:k]
	}
	return scores
}
