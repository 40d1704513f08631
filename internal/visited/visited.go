// Package visited provides the two visited-set implementations the
// search and build paths use: a single-threaded generation-counter
// table, and a thread-safe atomic bit-vector for parallel search
// tasks. Both index by a node's position within its partition, not by
// the global vid.
package visited

import "sync/atomic"

// Table is the contract shared by Generation and Bitset.
type Table interface {
	Set(i uint64)
	Get(i uint64) bool
	Reset()
}

// maxGeneration forces a full wipe of the byte table rather than
// letting the counter run unbounded; the byte comparison only needs
// room for one in-flight generation.
const maxGeneration = 250

// Generation is a single-threaded visited set: reset bumps a counter
// instead of clearing the whole table, except every maxGeneration
// resets when it wipes outright.
type Generation struct {
	table      []byte
	generation byte
}

// NewGeneration allocates a generation table sized for n local ids.
func NewGeneration(n int) *Generation {
	return &Generation{table: make([]byte, n), generation: 1}
}

func (g *Generation) Set(i uint64)      { g.table[i] = g.generation }
func (g *Generation) Get(i uint64) bool { return g.table[i] == g.generation }

// Reset starts a new generation.
func (g *Generation) Reset() {
	if g.generation >= maxGeneration {
		for i := range g.table {
			g.table[i] = 0
		}
		g.generation = 1
		return
	}
	g.generation++
}

// Bitset is a thread-safe one-bit-per-id visited set. IsSet/Set/
// ResetBit use acquire/release atomics; Reset clears the whole table
// and requires the caller to hold exclusive access (no concurrent
// search may be using it).
type Bitset struct {
	words []uint32
}

// NewBitset allocates a bit-vector sized for n local ids.
func NewBitset(n int) *Bitset {
	return &Bitset{words: make([]uint32, (n+31)/32)}
}

func (b *Bitset) IsSet(i uint64) bool {
	w := atomic.LoadUint32(&b.words[i/32])
	return w&(1<<(i%32)) != 0
}

// Get is an alias for IsSet so Bitset satisfies Table.
func (b *Bitset) Get(i uint64) bool { return b.IsSet(i) }

func (b *Bitset) Set(i uint64) {
	atomic.OrUint32(&b.words[i/32], 1<<(i%32))
}

// ResetBit clears a single bit.
func (b *Bitset) ResetBit(i uint64) {
	atomic.AndUint32(&b.words[i/32], ^uint32(1<<(i%32)))
}

// Reset clears every bit. Not atomic: requires exclusive access.
func (b *Bitset) Reset() {
	for i := range b.words {
		b.words[i] = 0
	}
}
