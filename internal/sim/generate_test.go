package sim_test

import (
	"testing"

	"supplyline/internal/sim"
)

func TestGenerateNextLinear(t *testing.T) {
	style := sim.GeneratedOrderStyle{Kind: sim.StyleLinear, Start: 10, Increase: 3}
	if got := sim.GenerateNext(10, style); got != 13 {
		t.Fatalf("linear next = %d, want 13", got)
	}
	if got := sim.GenerateNext(13, style); got != 16 {
		t.Fatalf("linear next = %d, want 16", got)
	}
}

func TestGenerateNextMultiplication(t *testing.T) {
	style := sim.GeneratedOrderStyle{Kind: sim.StyleMultiplication, Start: 2, Increase: 4}
	if got := sim.GenerateNext(2, style); got != 8 {
		t.Fatalf("multiplication next = %d, want 8", got)
	}
}

func TestGenerateNextDefaultGrowsByHalf(t *testing.T) {
	style := sim.GeneratedOrderStyle{Kind: sim.StyleDefault}
	if got := sim.GenerateNext(10, style); got != 15 {
		t.Fatalf("default next = %d, want 15", got)
	}
	// Truncation, not rounding.
	if got := sim.GenerateNext(5, style); got != 7 {
		t.Fatalf("default next = %d, want 7", got)
	}
}

func TestGenerateNextListAdvancesPastMatch(t *testing.T) {
	style := sim.GeneratedOrderStyle{Kind: sim.StyleList, List: []int64{5, 10, 15}}

	cases := []struct {
		previous int64
		want     int64
	}{
		{5, 10},  // element after the match
		{10, 15}, // element after the match
		{15, 15}, // tail saturates
		{7, 15},  // absent from the script saturates
	}
	for _, tc := range cases {
		if got := sim.GenerateNext(tc.previous, style); got != tc.want {
			t.Errorf("list next after %d = %d, want %d", tc.previous, got, tc.want)
		}
	}
}

func TestGenerateNextEmptyListHoldsSeries(t *testing.T) {
	style := sim.GeneratedOrderStyle{Kind: sim.StyleList}
	if got := sim.GenerateNext(42, style); got != 42 {
		t.Fatalf("empty list next = %d, want 42", got)
	}
}

func TestValidate(t *testing.T) {
	valid := []sim.GeneratedOrderStyle{
		{Kind: sim.StyleDefault},
		{Kind: sim.StyleLinear, Start: 1, Increase: 1},
		{Kind: sim.StyleList, List: []int64{1}},
	}
	for _, s := range valid {
		if err := s.Validate(); err != nil {
			t.Errorf("%q should validate: %v", s.Kind, err)
		}
	}

	invalid := []sim.GeneratedOrderStyle{
		{Kind: sim.StyleList},
		{Kind: "bogus"},
	}
	for _, s := range invalid {
		if err := s.Validate(); err == nil {
			t.Errorf("%q should fail validation", s.Kind)
		}
	}
}

func TestInitialValue(t *testing.T) {
	cases := []struct {
		style sim.GeneratedOrderStyle
		want  int64
	}{
		{sim.GeneratedOrderStyle{Kind: sim.StyleDefault}, 10},
		{sim.GeneratedOrderStyle{Kind: sim.StyleLinear, Start: 7}, 7},
		{sim.GeneratedOrderStyle{Kind: sim.StyleList, List: []int64{5, 10}}, 5},
	}
	for _, tc := range cases {
		got, err := tc.style.InitialValue()
		if err != nil {
			t.Fatalf("initial value for %q: %v", tc.style.Kind, err)
		}
		if got != tc.want {
			t.Errorf("initial value for %q = %d, want %d", tc.style.Kind, got, tc.want)
		}
	}
}
