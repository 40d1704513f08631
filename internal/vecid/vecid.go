// Package vecid defines the vector identifier shared by every layer of
// the index: storage, graph, quantizer, and search.
package vecid

// VID is an unsigned offset into the vector table.
type VID = uint64

// Invalid marks an empty neighbor slot or an absent entrypoint.
const Invalid VID = ^uint64(0)
