//go:build race

package opt

// Race_ reports whether the race detector is enabled. Stress loops scale
// their iteration counts down under it.
const Race_ = true
