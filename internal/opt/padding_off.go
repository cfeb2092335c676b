//go:build (amd64 || 386 || arm || mips || mipsle || wasm) && !spinlock_disable_padding && !spinlock_enable_padding

package opt

// Padding_ is disabled by default for:
// - amd64
// - 32-bit architectures (386, arm, mips, mipsle, wasm)
const Padding_ uintptr = 0
