package seqid

import "testing"

func TestSignedGapSymmetry(t *testing.T) {
	cases := []struct{ a, b ID }{
		{10, 5},
		{5, 10},
		{0, 65535},
		{65535, 0},
		{100, 100},
		{32767, 0},
	}
	for _, c := range cases {
		gab := SignedGap(c.a, c.b)
		gba := SignedGap(c.b, c.a)
		if gab != -gba {
			t.Errorf("SignedGap(%d,%d)=%d, SignedGap(%d,%d)=%d: not anti-symmetric",
				c.a, c.b, gab, c.b, c.a, gba)
		}
	}
}

func TestSignedGapAcrossWraparound(t *testing.T) {
	// 65535 is one step behind 0 in sequence order.
	if got := SignedGap(0, 65535); got != 1 {
		t.Errorf("SignedGap(0, 65535) = %d, want 1", got)
	}
	if !After(0, 65535) {
		t.Errorf("After(0, 65535) = false, want true")
	}
}

func TestSignedGapZero(t *testing.T) {
	if got := SignedGap(42, 42); got != 0 {
		t.Errorf("SignedGap(42, 42) = %d, want 0", got)
	}
	if After(42, 42) {
		t.Errorf("After(42, 42) = true, want false")
	}
}

func TestNextWraps(t *testing.T) {
	var id ID = 65535
	if got := id.Next(); got != 0 {
		t.Errorf("65535.Next() = %d, want 0", got)
	}
}
