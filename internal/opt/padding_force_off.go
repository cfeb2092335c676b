//go:build spinlock_disable_padding

package opt

// Padding_ is force-disabled via the spinlock_disable_padding build tag.
// Use: go build -tags=spinlock_disable_padding
const Padding_ uintptr = 0
