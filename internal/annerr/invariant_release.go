//go:build !annindex_debug

package annerr

// CheckInvariant is a no-op in release builds: invariant scans are
// reserved for -tags annindex_debug builds so production inserts and
// searches never pay for them.
func CheckInvariant(ok bool, where, want string) {}

// DebugAsserts reports whether this build was compiled with
// annindex_debug.
const DebugAsserts = false
