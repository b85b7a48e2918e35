// Package sandbox produces synthetic clinical corpora for demos and
// downstream testing. It owns the seeded random source, the independent
// filler-record generator, corpus assembly and export, and the HTTP preview
// handler. Coherent showcase journeys come from the scenario engine.
package sandbox

import (
	"encoding/hex"
	"math/rand/v2"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
)

// Source is the single random draw sequence shared by every generator in a
// run. Two sources built from the same non-zero seed produce identical
// draws. A Source is not safe for concurrent use.
type Source struct {
	seed  int64
	rng   *rand.Rand
	faker *gofakeit.Faker
}

// NewSource returns a source seeded for reproducibility. If seed is 0 a
// time-based seed is chosen; Seed reports it.
func NewSource(seed int64) *Source {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s := uint64(seed)
	return &Source{
		seed:  seed,
		rng:   rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15)),
		faker: gofakeit.New(s),
	}
}

// Seed returns the effective seed.
func (s *Source) Seed() int64 { return s.seed }

// Intn returns a value in [0, n).
func (s *Source) Intn(n int) int { return s.rng.IntN(n) }

// IntRange returns a value in [lo, hi].
func (s *Source) IntRange(lo, hi int) int {
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo + s.rng.IntN(hi-lo+1)
}

// FloatRange returns a value in [lo, hi).
func (s *Source) FloatRange(lo, hi float64) float64 {
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo + s.rng.Float64()*(hi-lo)
}

// Pick returns a random element of pool.
func (s *Source) Pick(pool []string) string {
	return pool[s.rng.IntN(len(pool))]
}

// Read fills p with pseudo-random bytes; it never fails.
func (s *Source) Read(p []byte) (int, error) {
	for i := 0; i < len(p); i += 8 {
		v := s.rng.Uint64()
		for j := 0; j < 8 && i+j < len(p); j++ {
			p[i+j] = byte(v >> (8 * j))
		}
	}
	return len(p), nil
}

// UUID returns a version 4 UUID drawn from the source.
func (s *Source) UUID() uuid.UUID {
	id, err := uuid.NewRandomFromReader(s)
	if err != nil {
		// Read never fails, so neither does NewRandomFromReader.
		panic(err)
	}
	return id
}

// Hex returns the first n hex digits of a fresh UUID, n <= 32.
func (s *Source) Hex(n int) string {
	id := s.UUID()
	return hex.EncodeToString(id[:])[:n]
}

// FirstName, LastName and Sex draw demographics for filler patients.
func (s *Source) FirstName() string { return s.faker.FirstName() }
func (s *Source) LastName() string  { return s.faker.LastName() }
func (s *Source) Sex() string       { return s.faker.RandomString([]string{"M", "F"}) }
