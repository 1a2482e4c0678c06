package matcher

import (
	"math"
	"testing"
)

func embeddingOf(v float64) []float64 {
	e := make([]float64, EmbeddingDim)
	for i := range e {
		e[i] = v
	}
	return e
}

func TestDistance_Identity(t *testing.T) {
	e := embeddingOf(0.3)
	if d := Distance(e, e); d != 0 {
		t.Errorf("distance to self: got %v, want 0", d)
	}
	if !IsMatch(e, e, 0.0001) {
		t.Error("IsMatch to self with tiny threshold: got false, want true")
	}
}

func TestDistance_FailsClosed(t *testing.T) {
	valid := embeddingOf(0.1)
	tests := []struct {
		name string
		a, b []float64
	}{
		{"nil-a", nil, valid},
		{"nil-b", valid, nil},
		{"both-nil", nil, nil},
		{"short-a", make([]float64, 64), valid},
		{"long-b", valid, make([]float64, 256)},
		{"empty-a", []float64{}, valid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if d := Distance(tt.a, tt.b); !math.IsInf(d, 1) {
				t.Errorf("distance: got %v, want +Inf", d)
			}
			if IsMatch(tt.a, tt.b, 1e9) {
				t.Error("IsMatch: got true, want false even with huge threshold")
			}
		})
	}
}

func TestDistance_Known(t *testing.T) {
	a := embeddingOf(0)
	b := embeddingOf(0)
	b[0] = 3
	b[1] = 4
	if d := Distance(a, b); math.Abs(d-5) > 1e-12 {
		t.Errorf("distance: got %v, want 5", d)
	}
}

func TestIsMatch_Threshold(t *testing.T) {
	a := embeddingOf(0)
	b := embeddingOf(0)
	b[0] = 0.42
	if !IsMatch(a, b, 0.55) {
		t.Error("distance 0.42 vs threshold 0.55: got no match, want match")
	}
	b[0] = 0.70
	if IsMatch(a, b, 0.55) {
		t.Error("distance 0.70 vs threshold 0.55: got match, want no match")
	}
}

func TestSimilarity(t *testing.T) {
	if s := Similarity(0); s != 1 {
		t.Errorf("similarity at zero distance: got %v, want 1", s)
	}
	if s := Similarity(math.Inf(1)); s != 0 {
		t.Errorf("similarity at +Inf: got %v, want 0", s)
	}
	if s := Similarity(0.5); s <= 0 || s >= 1 {
		t.Errorf("similarity at 0.5: got %v, want in (0,1)", s)
	}
}

func TestMean(t *testing.T) {
	e1 := embeddingOf(1)
	e2 := embeddingOf(2)
	e3 := embeddingOf(6)

	got := Mean([][]float64{e1, e2, e3})
	if got == nil {
		t.Fatal("mean of three valid embeddings: got nil")
	}
	for i, v := range got {
		if math.Abs(v-3) > 1e-12 {
			t.Fatalf("mean[%d]: got %v, want 3", i, v)
		}
	}

	single := Mean([][]float64{e2})
	for i, v := range single {
		if v != e2[i] {
			t.Fatalf("mean of one embedding should equal it; index %d got %v", i, v)
		}
	}

	if Mean(nil) != nil {
		t.Error("mean of no embeddings: want nil")
	}
	if Mean([][]float64{e1, make([]float64, 10)}) != nil {
		t.Error("mean with a malformed member: want nil")
	}
}
