package authentication

import (
	"hash/fnv"
	"math"
	"sync"
)

// BloomFilter answers "was this username never registered?" without a
// database round trip. A negative Test is certain; a positive one is not.
type BloomFilter struct {
	mu        sync.RWMutex
	words     []uint64
	numBits   uint
	numHashes uint
}

func NewBloomFilter(expectedItems uint, falsePositiveRate float64) *BloomFilter {
	if expectedItems == 0 {
		expectedItems = 1
	}

	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.01
	}

	m := optimalBitCount(expectedItems, falsePositiveRate)
	k := optimalHashCount(m, expectedItems)

	return &BloomFilter{
		words:     make([]uint64, (m+63)/64),
		numBits:   m,
		numHashes: k,
	}
}

func optimalBitCount(n uint, p float64) uint {
	m := -float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)

	return max(uint(math.Ceil(m)), 64)
}

func optimalHashCount(m, n uint) uint {
	k := uint(math.Round(float64(m) / float64(n) * math.Ln2))

	return max(k, 1)
}

// positions uses double hashing: FNV-1a and an odd FNV-1 step.
func (bf *BloomFilter) positions(item string) []uint {
	h1 := fnv.New32a()
	_, _ = h1.Write([]byte(item))
	v1 := uint(h1.Sum32())

	h2 := fnv.New32()
	_, _ = h2.Write([]byte(item))
	v2 := uint(h2.Sum32()) | 1

	out := make([]uint, bf.numHashes)
	for i := range bf.numHashes {
		out[i] = (v1 + i*v2) % bf.numBits
	}

	return out
}

func (bf *BloomFilter) Add(item string) {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	for _, pos := range bf.positions(item) {
		bf.words[pos/64] |= 1 << (pos % 64)
	}
}

// Test returns false when item was definitely never added.
func (bf *BloomFilter) Test(item string) bool {
	bf.mu.RLock()
	defer bf.mu.RUnlock()

	for _, pos := range bf.positions(item) {
		if bf.words[pos/64]&(1<<(pos%64)) == 0 {
			return false
		}
	}

	return true
}
