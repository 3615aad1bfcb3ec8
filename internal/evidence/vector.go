package evidence

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

const (
	blobHeaderSize = 4
	floatByteSize  = 4
)

// encodeVector packs a vector as [uint32 dim][dim x float32], little-endian.
func encodeVector(vec []float32) ([]byte, error) {
	if len(vec) == 0 {
		return nil, fmt.Errorf("encode vector: empty vector")
	}
	if zeroNorm(vec) {
		return nil, fmt.Errorf("encode vector: zero vector")
	}
	blob := make([]byte, blobHeaderSize+len(vec)*floatByteSize)
	binary.LittleEndian.PutUint32(blob, uint32(len(vec)))
	for i, v := range vec {
		if !finite(float64(v)) {
			return nil, fmt.Errorf("encode vector: invalid value at index %d", i)
		}
		off := blobHeaderSize + i*floatByteSize
		binary.LittleEndian.PutUint32(blob[off:], math.Float32bits(v))
	}
	return blob, nil
}

func decodeVector(blob []byte) ([]float32, error) {
	if len(blob) < blobHeaderSize {
		return nil, fmt.Errorf("decode vector: blob too short: %d", len(blob))
	}
	dim := int(binary.LittleEndian.Uint32(blob))
	if dim <= 0 || len(blob) != blobHeaderSize+dim*floatByteSize {
		return nil, fmt.Errorf("decode vector: dimension %d does not fit %d bytes", dim, len(blob))
	}
	vec := make([]float32, dim)
	for i := range vec {
		off := blobHeaderSize + i*floatByteSize
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[off:]))
	}
	return vec, nil
}

// cosine is clamped to [-1, 1]. Zero-norm and mismatched vectors are errors.
func cosine(a, b []float32) (float64, error) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, fmt.Errorf("cosine: dimension mismatch: %d vs %d", len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, fmt.Errorf("cosine: zero vector")
	}
	score := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(-1, math.Min(1, score)), nil
}

// topHits sorts by score descending, then id, and keeps at most limit.
func topHits(hits []Hit, limit int) []Hit {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

func zeroNorm(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
