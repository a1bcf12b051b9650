// Package bitutil collects the small, load-bearing bit tricks spec.md's
// system overview carves out as their own component: population count and
// leading/trailing zero counts (used by the HAMT's occupancy bitmap) and the
// 64-bit identifier/string hash mix used to key entries into it.
//
// Population/leading/trailing-zero counting is delegated to the standard
// library's math/bits: no pack repo ships a bit-twiddling library and these
// are single intrinsic-mapped calls, not something worth a dependency for.
package bitutil

import "math/bits"

// PopCount returns the number of set bits in v.
func PopCount(v uint64) int { return bits.OnesCount64(v) }

// LeadingZeros returns the count of leading zero bits in v.
func LeadingZeros(v uint64) int { return bits.LeadingZeros64(v) }

// TrailingZeros returns the count of trailing zero bits in v.
func TrailingZeros(v uint64) int { return bits.TrailingZeros64(v) }

// Hash64 mixes a byte slice into a 64-bit hash using a multiply-xor-shift
// chain over a fixed prime, as spec.md §4.4 requires so identifier/string
// hashes can be precomputed once at lexeme construction and never
// recomputed at lookup time (the two multipliers and the 33-bit shift are
// those of MurmurHash3's fmix64 finalizer, a well-known public-domain mixer).
func Hash64(data []byte) uint64 {
	const (
		prime1 = 0xff51afd7ed558ccd
		prime2 = 0xc4ceb9fe1a85ec53
	)

	var h uint64 = 0xcbf29ce484222325 // FNV offset basis as the seed
	for _, b := range data {
		h ^= uint64(b)
		h *= prime1
		h ^= h >> 33
	}
	h ^= h >> 33
	h *= prime2
	h ^= h >> 29
	return h
}

// HashString is the string-keyed convenience wrapper around Hash64.
func HashString(s string) uint64 { return Hash64([]byte(s)) }
