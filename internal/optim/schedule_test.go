package optim

import (
	"math"
	"testing"
)

func TestStaircasePiecewiseConstant(t *testing.T) {
	s, err := NewStaircase(0.1, 0.5, 100)
	if err != nil {
		t.Fatalf("NewStaircase: %v", err)
	}
	for step := int64(0); step < 100; step++ {
		if s.At(step) != s.At(0) {
			t.Fatalf("lr(%d)=%g differs from lr(0)=%g", step, s.At(step), s.At(0))
		}
	}
	for bucket := int64(0); bucket < 5; bucket++ {
		last := s.At(bucket*100 + 99)
		next := s.At((bucket + 1) * 100)
		if math.Abs(next-last*0.5) > 1e-15 {
			t.Fatalf("bucket %d: lr dropped from %g to %g, want factor 0.5", bucket, last, next)
		}
	}
	if got := s.At(250); math.Abs(got-0.025) > 1e-15 {
		t.Fatalf("lr(250)=%g want 0.025", got)
	}
}

func TestNewStaircaseValidates(t *testing.T) {
	if _, err := NewStaircase(0.1, 0.9, 0); err == nil {
		t.Fatal("expected error for zero decay_steps")
	}
	if _, err := NewStaircase(0, 0.9, 10); err == nil {
		t.Fatal("expected error for zero learning_rate")
	}
	if _, err := NewStaircase(0.1, -1, 10); err == nil {
		t.Fatal("expected error for negative decay_rate")
	}
}
