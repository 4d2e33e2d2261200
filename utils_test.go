package vkr

import (
	"testing"
)

func TestAlignUp(t *testing.T) {
	cases := []struct {
		value, align, expected uint64
	}{
		{0, 256, 0},
		{1, 256, 256},
		{256, 256, 256},
		{257, 256, 512},
		{300, 64, 320},
	}

	for _, c := range cases {
		got := alignUp(c.value, c.align)
		if got != c.expected {
			t.Errorf("alignUp(%d, %d) = %d, expected %d", c.value, c.align, got, c.expected)
		}
	}
}

func TestNextPow2(t *testing.T) {
	cases := []struct {
		value, expected int
	}{
		{0, 1},
		{1, 1},
		{2, 2},
		{3, 4},
		{63, 64},
		{64, 64},
		{65, 128},
		{500, 512},
	}

	for _, c := range cases {
		got := nextPow2(c.value)
		if got != c.expected {
			t.Errorf("nextPow2(%d) = %d, expected %d", c.value, got, c.expected)
		}
	}
}

func TestClampUint32(t *testing.T) {
	if got := clampUint32(5, 10, 20); got != 10 {
		t.Errorf("expected clamp to lower bound, got %d", got)
	}
	if got := clampUint32(25, 10, 20); got != 20 {
		t.Errorf("expected clamp to upper bound, got %d", got)
	}
	if got := clampUint32(15, 10, 20); got != 15 {
		t.Errorf("expected value unchanged, got %d", got)
	}
}

func TestSafeString(t *testing.T) {
	if got := safeString("abc"); got != "abc\x00" {
		t.Errorf("expected null terminated string, got %q", got)
	}
	if got := safeString("abc\x00"); got != "abc\x00" {
		t.Errorf("expected already terminated string unchanged, got %q", got)
	}
	if got := safeString(""); got != "\x00" {
		t.Errorf("expected bare terminator for empty string, got %q", got)
	}
}
