package main

import (
	"crypto/rand"
	"encoding/hex"
	"math"

	"github.com/google/uuid"
)

// GenerateUUID returns a random v4 UUID string, used for durable player ids.
func GenerateUUID() string {
	return uuid.NewString()
}

// GenerateID returns a random hex string of the given byte length
func GenerateID(byteLen int) string {
	b := make([]byte, byteLen)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// round2 rounds to two decimal places (wire precision for coordinates)
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// clampInt restricts v to [min, max]
func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

var randSrc uint64

// randFloat returns a random float64 in [0, 1), seeded from crypto/rand.
// Non-crypto xorshift is plenty for spawn jitter. randSrc is unsynchronized;
// SpawnPosition only ever runs under the game lock.
func randFloat() float64 {
	randSrc ^= randSrc << 13
	randSrc ^= randSrc >> 7
	randSrc ^= randSrc << 17
	if randSrc == 0 {
		randSrc = 1
	}
	return float64(randSrc%10000) / 10000.0
}

func init() {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	for i, v := range b {
		randSrc |= uint64(v) << (uint(i) * 8)
	}
	if randSrc == 0 {
		randSrc = 1
	}
}
