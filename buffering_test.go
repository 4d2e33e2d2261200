package vkr

import (
	"testing"
)

func TestBufferedGet(t *testing.T) {
	var b Buffered[int]
	for i := 0; i < ResourceBuffering; i++ {
		*b.Get(i) = i * 10
	}

	// Frame indices keep counting past the buffering factor and must
	// wrap onto the same slots.
	for i := 0; i < ResourceBuffering*2; i++ {
		want := (i % ResourceBuffering) * 10
		if got := *b.Get(i); got != want {
			t.Errorf("Get(%d) = %d, expected %d", i, got, want)
		}
	}

	if b.Get(0) != &b[0] {
		t.Errorf("Get must return a pointer into the array")
	}
}
