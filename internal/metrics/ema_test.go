package metrics

import (
	"math"
	"testing"
)

func TestEMAFirstUpdateSeedsShadow(t *testing.T) {
	e := NewEMA(DefaultDecay)
	if got := e.Update(2.5); got != 2.5 {
		t.Fatalf("first update returned %f", got)
	}
	got := e.Update(0.5)
	want := 0.95*2.5 + 0.05*0.5
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("second update=%f want %f", got, want)
	}
	if e.Value() != got {
		t.Fatalf("Value()=%f want %f", e.Value(), got)
	}
}

func TestEMAConvergesToRepeatedValue(t *testing.T) {
	e := NewEMA(DefaultDecay)
	e.Update(10)
	for i := 0; i < 1000; i++ {
		e.Update(0.25)
	}
	if math.Abs(e.Value()-0.25) > 1e-9 {
		t.Fatalf("EMA did not converge: %f", e.Value())
	}
}
