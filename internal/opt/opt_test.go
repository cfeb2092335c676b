package opt

import (
	"testing"
)

func TestCacheLineSize(t *testing.T) {
	if CacheLineSize_ == 0 || CacheLineSize_&(CacheLineSize_-1) != 0 {
		t.Fatalf("cache line size %d is not a power of two", CacheLineSize_)
	}
	if Padding_ > 1 {
		t.Fatalf("Padding_ = %d, want 0 or 1", Padding_)
	}
}
