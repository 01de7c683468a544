package strategy

import "math"

// cosineEpsilon guards the norm product against division by zero. A zero
// vector scores 0 against everything instead of producing NaN.
const cosineEpsilon = 1e-10

// Cosine returns the cosine similarity of two equal-length vectors.
// Callers validate dimensionality; mismatched lengths are a programming
// error at this level.
func Cosine(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	return dot / (math.Sqrt(normA)*math.Sqrt(normB) + cosineEpsilon)
}

// dotProduct returns the inner product of query with a matrix row.
func dotProduct(query, row []float64) float64 {
	var dot float64
	for i := range query {
		dot += query[i] * row[i]
	}
	return dot
}

// l2Norm returns the Euclidean norm of v.
func l2Norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// cosineFromDot converts a raw dot product into a cosine score using
// precomputed norms.
func cosineFromDot(dot, queryNorm, rowNorm float64) float64 {
	return dot / (queryNorm*rowNorm + cosineEpsilon)
}
