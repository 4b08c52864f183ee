package vecstore

import (
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultDimensions is the vector width of the hashing embedder.
const DefaultDimensions = 256

// HashEmbedder is a deterministic, dependency-free embedder: tokens are
// feature-hashed into a fixed-width vector which is then L2-normalized.
// It captures lexical overlap rather than deep semantics, which is
// enough for ranking past sessions by summary text, and it never makes
// a network call.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder creates a hashing embedder. A non-positive dims falls
// back to DefaultDimensions.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &HashEmbedder{dims: dims}
}

// Dimensions returns the vector width.
func (e *HashEmbedder) Dimensions() int { return e.dims }

// Embed converts text into a normalized feature-hashed vector. Empty
// or token-free text yields a zero vector rather than an error.
func (e *HashEmbedder) Embed(text string) ([]float32, error) {
	vec := make([]float32, e.dims)

	tokens := tokenize(text)
	for i, token := range tokens {
		addFeature(vec, token)
		if i > 0 {
			// Bigrams keep some phrase structure in the vector.
			addFeature(vec, tokens[i-1]+" "+token)
		}
	}

	normalize(vec)
	return vec, nil
}

func addFeature(vec []float32, feature string) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(len(vec)))
	// The next bit decides sign so hash collisions partially cancel
	// instead of always accumulating.
	if (sum>>63)&1 == 1 {
		vec[idx]--
	} else {
		vec[idx]++
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
}
