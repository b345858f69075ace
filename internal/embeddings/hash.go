package embeddings

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultHashDimensions is the vector size of the hashing driver.
const DefaultHashDimensions = 512

// HashDriver embeds texts locally by hashing lower-cased word tokens and
// character trigrams into a fixed number of buckets. Vectors are
// L2-normalized, so cosine similarity reflects token overlap. It is
// deterministic and needs no model server.
type HashDriver struct {
	dims int
}

// NewHashDriver creates a hashing driver with dims buckets.
func NewHashDriver(dims int) *HashDriver {
	if dims <= 0 {
		dims = DefaultHashDimensions
	}
	return &HashDriver{dims: dims}
}

func (d *HashDriver) Kind() string                        { return KindHash }
func (d *HashDriver) Dimensions() int                     { return d.dims }
func (d *HashDriver) MaxBatchSize() int                   { return 4096 }
func (d *HashDriver) HealthCheck(ctx context.Context) error { return ctx.Err() }

func (d *HashDriver) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = d.vector(t)
	}
	return out, nil
}

func (d *HashDriver) vector(text string) []float64 {
	v := make([]float64, d.dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		v[d.bucket(w)] += 1
		padded := []rune(" " + w + " ")
		for j := 0; j+3 <= len(padded); j++ {
			v[d.bucket(string(padded[j:j+3]))] += 0.5
		}
	}

	var norm float64
	for _, x := range v {
		norm += x * x
	}
	if norm == 0 {
		return v
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] /= norm
	}
	return v
}

func (d *HashDriver) bucket(token string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	return int(h.Sum32() % uint32(d.dims))
}
