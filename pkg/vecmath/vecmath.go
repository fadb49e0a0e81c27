// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package vecmath holds the similarity arithmetic shared by the vector index
// and the semantic cache, so thresholds computed in one are comparable in the
// other.
package vecmath

import "math"

// Cosine returns the cosine similarity of a and b clamped to [-1, 1].
// Vectors of different length, empty vectors and zero-magnitude vectors
// score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, na2, nb2 float64
	for i := range a {
		va := float64(a[i])
		vb := float64(b[i])
		dot += va * vb
		na2 += va * va
		nb2 += vb * vb
	}
	if na2 == 0 || nb2 == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(na2) * math.Sqrt(nb2))
	return math.Max(-1, math.Min(1, sim))
}

// Distance is the cosine distance, 1 - Cosine(a, b).
func Distance(a, b []float32) float64 {
	return 1 - Cosine(a, b)
}

// ScoreFromDistance converts a cosine distance back into a similarity score.
// Backends that rank by distance use it so their scores match Cosine.
func ScoreFromDistance(d float64) float64 {
	return 1 - d
}
