package limiter

import (
	"math"
	"testing"
)

func TestDefaults(t *testing.T) {
	l := New()
	if l.Threshold() != 0.9 {
		t.Errorf("Threshold() = %v, want 0.9", l.Threshold())
	}
	if l.Gain() != 1.0 {
		t.Errorf("initial Gain() = %v, want 1.0", l.Gain())
	}
	if l.attack != 0.99 || l.release != 0.9999 {
		t.Errorf("coefficients = %v/%v, want 0.99/0.9999", l.attack, l.release)
	}
}

func TestBelowThresholdPassesThrough(t *testing.T) {
	l := New()
	for _, x := range []float64{0, 0.1, -0.5, 0.9, -0.9} {
		if got := l.Process(x); got != x {
			t.Errorf("Process(%v) = %v, want passthrough", x, got)
		}
	}
}

func TestSingleStepMatchesFormula(t *testing.T) {
	l := New()
	x := 1.8
	target := 0.9 / 1.8
	wantGain := target + (1.0-target)*0.99
	got := l.Process(x)
	if l.Gain() != wantGain {
		t.Errorf("gain after one peak = %.17g, want %.17g", l.Gain(), wantGain)
	}
	if got != x*wantGain {
		t.Errorf("output = %.17g, want %.17g", got, x*wantGain)
	}

	// Recovery step uses the release coefficient.
	prev := l.Gain()
	l.Process(0.1)
	wantGain = 1.0 + (prev-1.0)*0.9999
	if l.Gain() != wantGain {
		t.Errorf("gain after release step = %.17g, want %.17g", l.Gain(), wantGain)
	}
}

func TestConvergesAboveThreshold(t *testing.T) {
	l := New()
	x := 1.5
	want := 0.9 / 1.5
	for i := 0; i < 5000; i++ {
		l.Process(x)
		if l.Gain() > 1.0 {
			t.Fatalf("gain exceeded 1.0 at step %d: %v", i, l.Gain())
		}
	}
	if math.Abs(l.Gain()-want) > 1e-9 {
		t.Errorf("gain converged to %v, want %v", l.Gain(), want)
	}
}

func TestRecoversBelowThreshold(t *testing.T) {
	l := New()
	for i := 0; i < 2000; i++ {
		l.Process(-2.0)
	}
	if l.Gain() >= 0.5 {
		t.Fatalf("gain did not drop: %v", l.Gain())
	}
	for i := 0; i < 400000; i++ {
		l.Process(0.2)
		if l.Gain() > 1.0 {
			t.Fatalf("gain exceeded 1.0 during release: %v", l.Gain())
		}
	}
	if math.Abs(l.Gain()-1.0) > 1e-6 {
		t.Errorf("gain recovered to %v, want ~1.0", l.Gain())
	}
}

func TestNegativePeaksUseMagnitude(t *testing.T) {
	pos, neg := New(), New()
	for i := 0; i < 100; i++ {
		a := pos.Process(1.2)
		b := neg.Process(-1.2)
		if a != -b {
			t.Fatalf("step %d: asymmetric output %v vs %v", i, a, b)
		}
	}
}

func TestProcessInPlaceMatchesProcess(t *testing.T) {
	in := []float64{0.0, 0.1, 0.5, 0.95, 1.3, -1.1, 0.8, -0.6, 0.2, 0.0}
	l1, l2 := New(), New()

	want := make([]float64, len(in))
	for i, x := range in {
		want[i] = l1.Process(x)
	}
	got := append([]float64(nil), in...)
	l2.ProcessInPlace(got)

	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("sample %d: ProcessInPlace() = %.15f, Process() = %.15f", i, got[i], want[i])
		}
	}
}

func TestBankIndependentChannels(t *testing.T) {
	b := NewBank(2)
	for i := 0; i < 100; i++ {
		b[0].Process(2.0)
		b[1].Process(0.1)
	}
	if b[0].Gain() >= 1.0 {
		t.Error("channel 0 should be limiting")
	}
	if b[1].Gain() != 1.0 {
		t.Errorf("channel 1 gain = %v, want 1.0", b[1].Gain())
	}
	b.Reset()
	if b[0].Gain() != 1.0 {
		t.Errorf("Reset left gain %v", b[0].Gain())
	}
}
