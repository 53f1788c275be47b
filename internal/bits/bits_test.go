package bits

import "testing"

func TestRoundUp(t *testing.T) {
	cases := []struct{ n, align, want uint64 }{
		{0, PageSize, 0},
		{1, PageSize, PageSize},
		{PageSize, PageSize, PageSize},
		{PageSize + 1, PageSize, 2 * PageSize},
	}
	for _, c := range cases {
		if got := RoundUp(c.n, c.align); got != c.want {
			t.Errorf("RoundUp(%#x, %#x) = %#x, want %#x", c.n, c.align, got, c.want)
		}
	}
}

func TestRoundDown(t *testing.T) {
	cases := []struct{ n, align, want uint64 }{
		{0, PageSize, 0},
		{1, PageSize, 0},
		{PageSize, PageSize, PageSize},
		{PageSize + 1, PageSize, PageSize},
	}
	for _, c := range cases {
		if got := RoundDown(c.n, c.align); got != c.want {
			t.Errorf("RoundDown(%#x, %#x) = %#x, want %#x", c.n, c.align, got, c.want)
		}
	}
}

func TestSignExtend(t *testing.T) {
	cases := []struct {
		v    uint64
		bits uint
		want uint64
	}{
		{0x20, 12, 0x20},
		{0xfff, 12, 0xffffffffffffffff},
		{0x800, 12, 0xfffffffffffff800},
		{0, 12, 0},
	}
	for _, c := range cases {
		if got := SignExtend(c.v, c.bits); got != c.want {
			t.Errorf("SignExtend(%#x, %d) = %#x, want %#x", c.v, c.bits, got, c.want)
		}
	}
}

func TestZeroExtend(t *testing.T) {
	if got := ZeroExtend(0xfff, 8); got != 0xff {
		t.Errorf("ZeroExtend(0xfff, 8) = %#x, want 0xff", got)
	}
	if got := ZeroExtend(0xff, 64); got != 0xff {
		t.Errorf("ZeroExtend(0xff, 64) = %#x, want 0xff", got)
	}
}
