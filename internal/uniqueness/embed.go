package uniqueness

import (
	"hash/fnv"
	"math"
	"strings"
)

// Embedder maps text to a fixed-length vector. Any producer of dimension Dim
// satisfies the contract; embedding quality is pluggable and not part of it.
type Embedder interface {
	Embed(text string) []float64
	Dim() int
}

// HashEmbedder is the cheap deterministic reference mapping: each normalized
// token is hashed into one of Dim accumulator buckets. Near-identical texts
// share most buckets, which is all the cosine ranking needs.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 256
	}
	return &HashEmbedder{dim: dim}
}

func (e *HashEmbedder) Dim() int { return e.dim }

func (e *HashEmbedder) Embed(text string) []float64 {
	vec := make([]float64, e.dim)
	for _, token := range Tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[int(h.Sum32())%e.dim]++
	}
	return vec
}

// Tokenize lower-cases and whitespace-normalizes the text. Shared by the
// embedder and the shingle builder so both signals see the same tokens.
func Tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// Cosine returns the cosine similarity of two equal-length vectors, 0 when
// either has no magnitude.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
