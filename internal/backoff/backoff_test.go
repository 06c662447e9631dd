package backoff

import (
	"testing"
	"time"
)

func TestDelayDefaults(t *testing.T) {
	cases := []struct {
		attempts uint32
		want     time.Duration
	}{
		{1, 1000 * time.Millisecond},
		{2, 2000 * time.Millisecond},
		{3, 4000 * time.Millisecond},
	}
	for _, tc := range cases {
		got := Delay(tc.attempts, 1000*time.Millisecond, 2.0)
		if got != tc.want {
			t.Fatalf("Delay(%d) = %v, want %v", tc.attempts, got, tc.want)
		}
	}
}

func TestDelayMonotonic(t *testing.T) {
	var prev time.Duration
	for n := uint32(1); n <= 11; n++ {
		got := Delay(n, 50*time.Millisecond, 1.5)
		if got < prev {
			t.Fatalf("Delay(%d)=%v is less than Delay(%d)=%v", n, got, n-1, prev)
		}
		prev = got
	}
}

func TestDelayClampsAboveTenAttempts(t *testing.T) {
	d10 := Delay(11, 10*time.Millisecond, 2.0)
	d20 := Delay(21, 10*time.Millisecond, 2.0)
	if d10 != d20 {
		t.Fatalf("expected clamp at 10 attempts, got Delay(11)=%v Delay(21)=%v", d10, d20)
	}
}
