package util

import (
	"encoding/gob"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"sync"

	"github.com/bits-and-blooms/bitset"
)

// BloomFilter is a fixed-size Bloom filter. It is not safe for concurrent use;
// ScalableBloomFilter adds locking and growth on top of it.
type BloomFilter struct {
	M         uint // bits
	K         uint // hash functions
	Bits      *bitset.BitSet
	ItemCount uint
	Capacity  uint
}

// NewBloomFilter sizes a filter for capacity items at the given false-positive rate.
func NewBloomFilter(capacity uint, errorRate float64) *BloomFilter {
	m := optimalBits(capacity, errorRate)
	k := optimalHashes(capacity, m)
	return &BloomFilter{
		M:        m,
		K:        k,
		Bits:     bitset.New(m),
		Capacity: capacity,
	}
}

func (bf *BloomFilter) Add(data []byte) {
	for _, h := range bf.hashes(data) {
		bf.Bits.Set(uint(h % uint64(bf.M)))
	}
	bf.ItemCount++
}

// Test reports whether data may have been added. False means definitely not.
func (bf *BloomFilter) Test(data []byte) bool {
	for _, h := range bf.hashes(data) {
		if !bf.Bits.Test(uint(h % uint64(bf.M))) {
			return false
		}
	}
	return true
}

func (bf *BloomFilter) full() bool {
	return bf.ItemCount >= bf.Capacity
}

// hashes derives K hash values from two FNV hashes (double hashing).
func (bf *BloomFilter) hashes(data []byte) []uint64 {
	h1 := fnv.New64a()
	h1.Write(data)
	a := h1.Sum64()

	h2 := fnv.New64()
	h2.Write(data)
	b := h2.Sum64()

	out := make([]uint64, bf.K)
	for i := uint(0); i < bf.K; i++ {
		out[i] = a + uint64(i)*b
	}
	return out
}

// m = -(n * ln p) / (ln 2)^2
func optimalBits(n uint, p float64) uint {
	return uint(math.Ceil(-(float64(n) * math.Log(p)) / (math.Ln2 * math.Ln2)))
}

// k = (m / n) * ln 2
func optimalHashes(n, m uint) uint {
	k := uint(math.Ceil((float64(m) / float64(n)) * math.Ln2))
	if k < 1 {
		return 1
	}
	return k
}

// SBFConfig configures a ScalableBloomFilter. Fields are exported for gob.
type SBFConfig struct {
	InitialCapacity      uint
	ErrorRate            float64
	GrowthFactor         float64
	ErrorTighteningRatio float64
}

// DefaultSBFConfig suits de-duplicating article ids.
func DefaultSBFConfig(capacity uint) SBFConfig {
	if capacity == 0 {
		capacity = 100_000
	}
	return SBFConfig{InitialCapacity: capacity, ErrorRate: 0.001, GrowthFactor: 2, ErrorTighteningRatio: 0.5}
}

type sbfData struct {
	Config  SBFConfig
	Filters []*BloomFilter
}

// ScalableBloomFilter grows by chaining filters of increasing size and tighter
// error rates. It is safe for concurrent use and can be persisted to disk.
type ScalableBloomFilter struct {
	config  SBFConfig
	filters []*BloomFilter
	lock    sync.RWMutex
}

func NewScalableBloomFilter(config SBFConfig) (*ScalableBloomFilter, error) {
	if config.InitialCapacity == 0 || config.ErrorRate <= 0 || config.GrowthFactor < 1 ||
		config.ErrorTighteningRatio <= 0 || config.ErrorTighteningRatio >= 1 {
		return nil, fmt.Errorf("invalid scalable bloom filter config: %+v", config)
	}
	first := NewBloomFilter(config.InitialCapacity, config.ErrorRate*(1-config.ErrorTighteningRatio))
	return &ScalableBloomFilter{config: config, filters: []*BloomFilter{first}}, nil
}

func (sbf *ScalableBloomFilter) Add(data []byte) {
	sbf.lock.Lock()
	defer sbf.lock.Unlock()

	last := sbf.filters[len(sbf.filters)-1]
	if last.full() {
		capacity := uint(float64(last.Capacity) * sbf.config.GrowthFactor)
		// Current false-positive probability of the full filter, tightened for the next one.
		p := math.Pow(1-math.Exp(-float64(last.K*last.ItemCount)/float64(last.M)), float64(last.K))
		last = NewBloomFilter(capacity, p*sbf.config.ErrorTighteningRatio)
		sbf.filters = append(sbf.filters, last)
	}
	last.Add(data)
}

// Test checks every filter, newest first.
func (sbf *ScalableBloomFilter) Test(data []byte) bool {
	sbf.lock.RLock()
	defer sbf.lock.RUnlock()
	for i := len(sbf.filters) - 1; i >= 0; i-- {
		if sbf.filters[i].Test(data) {
			return true
		}
	}
	return false
}

func (sbf *ScalableBloomFilter) AddString(s string)       { sbf.Add([]byte(s)) }
func (sbf *ScalableBloomFilter) TestString(s string) bool { return sbf.Test([]byte(s)) }

// Len returns the number of chained filters.
func (sbf *ScalableBloomFilter) Len() int {
	sbf.lock.RLock()
	defer sbf.lock.RUnlock()
	return len(sbf.filters)
}

// WriteToFile gob-encodes the filter to filePath.
func (sbf *ScalableBloomFilter) WriteToFile(filePath string) error {
	sbf.lock.RLock()
	defer sbf.lock.RUnlock()

	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("create %s: %w", filePath, err)
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(sbfData{Config: sbf.config, Filters: sbf.filters}); err != nil {
		return fmt.Errorf("encode bloom filter: %w", err)
	}
	return nil
}

// LoadScalableBloomFilter restores a filter written by WriteToFile.
func LoadScalableBloomFilter(filePath string) (*ScalableBloomFilter, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var data sbfData
	if err := gob.NewDecoder(file).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode bloom filter: %w", err)
	}
	if len(data.Filters) == 0 {
		return nil, fmt.Errorf("bloom filter file %s has no filters", filePath)
	}
	return &ScalableBloomFilter{config: data.Config, filters: data.Filters}, nil
}
