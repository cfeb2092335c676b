//go:build spinlock_enable_padding

package opt

// Padding_ is force-enabled via the spinlock_enable_padding build tag.
// Use: go build -tags=spinlock_enable_padding
const Padding_ uintptr = 1
