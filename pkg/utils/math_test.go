package utils

import (
	"math"
	"testing"
)

func TestMin(t *testing.T) {
	tests := []struct {
		a, b, expected int
	}{
		{5, 10, 5},
		{10, 5, 5},
		{-5, 5, -5},
		{0, 0, 0},
	}

	for _, tt := range tests {
		result := Min(tt.a, tt.b)
		if result != tt.expected {
			t.Errorf("Min(%d, %d) = %d, expected %d", tt.a, tt.b, result, tt.expected)
		}
	}
}

func TestMax(t *testing.T) {
	tests := []struct {
		a, b, expected int
	}{
		{5, 10, 10},
		{10, 5, 10},
		{-5, 5, 5},
		{0, 0, 0},
	}

	for _, tt := range tests {
		result := Max(tt.a, tt.b)
		if result != tt.expected {
			t.Errorf("Max(%d, %d) = %d, expected %d", tt.a, tt.b, result, tt.expected)
		}
	}
}

func TestClampFloat64(t *testing.T) {
	tests := []struct {
		value, min, max, expected float64
	}{
		{5.0, 0.0, 10.0, 5.0},
		{-1.0, 0.0, 10.0, 0.0},
		{15.0, 0.0, 10.0, 10.0},
		{0.0, 0.0, 10.0, 0.0},
		{10.0, 0.0, 10.0, 10.0},
	}

	for _, tt := range tests {
		result := ClampFloat64(tt.value, tt.min, tt.max)
		if result != tt.expected {
			t.Errorf("ClampFloat64(%g, %g, %g) = %g, expected %g", tt.value, tt.min, tt.max, result, tt.expected)
		}
	}
}

func TestMean(t *testing.T) {
	tests := []struct {
		values   []float64
		expected float64
	}{
		{[]float64{1, 2, 3, 4, 5}, 3},
		{[]float64{2, 2, 2}, 2},
		{[]float64{-1, 1}, 0},
		{nil, 0},
	}

	for _, tt := range tests {
		result := Mean(tt.values)
		if math.Abs(result-tt.expected) > 1e-12 {
			t.Errorf("Mean(%v) = %g, expected %g", tt.values, result, tt.expected)
		}
	}
}

func TestVarianceAndStdDev(t *testing.T) {
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	if v := Variance(values); math.Abs(v-4) > 1e-12 {
		t.Errorf("Variance = %g, expected 4", v)
	}
	if s := StdDev(values); math.Abs(s-2) > 1e-12 {
		t.Errorf("StdDev = %g, expected 2", s)
	}
	if v := Variance(nil); v != 0 {
		t.Errorf("Variance(nil) = %g, expected 0", v)
	}
}

func TestSum(t *testing.T) {
	if s := Sum([]float64{1, 2, 3}); s != 6 {
		t.Errorf("Sum = %g, expected 6", s)
	}
	if s := Sum(nil); s != 0 {
		t.Errorf("Sum(nil) = %g, expected 0", s)
	}
}

func TestMSE(t *testing.T) {
	observed := []float64{1, 2, 3}
	predicted := []float64{1, 2, 3}
	if mse := MSE(observed, predicted); mse != 0 {
		t.Errorf("MSE of identical series = %g, expected 0", mse)
	}

	predicted = []float64{2, 3, 4}
	if mse := MSE(observed, predicted); math.Abs(mse-1) > 1e-12 {
		t.Errorf("MSE = %g, expected 1", mse)
	}

	if mse := MSE(observed, []float64{1, 2}); !math.IsInf(mse, 1) {
		t.Errorf("MSE of mismatched series = %g, expected +Inf", mse)
	}
	if mse := MSE(nil, nil); !math.IsInf(mse, 1) {
		t.Errorf("MSE of empty series = %g, expected +Inf", mse)
	}
}

func TestLinspace(t *testing.T) {
	got := Linspace(0, 10, 11)
	if len(got) != 11 {
		t.Fatalf("Linspace returned %d samples, expected 11", len(got))
	}
	if got[0] != 0 || got[10] != 10 {
		t.Errorf("Linspace endpoints = %g, %g, expected 0, 10", got[0], got[10])
	}
	if math.Abs(got[5]-5) > 1e-12 {
		t.Errorf("Linspace midpoint = %g, expected 5", got[5])
	}

	if got := Linspace(3, 7, 1); len(got) != 1 || got[0] != 3 {
		t.Errorf("Linspace with one sample = %v, expected [3]", got)
	}
	if got := Linspace(0, 1, 0); got != nil {
		t.Errorf("Linspace with no samples = %v, expected nil", got)
	}
}

func TestRound(t *testing.T) {
	tests := []struct {
		value    float64
		decimals int
		expected float64
	}{
		{3.14159, 2, 3.14},
		{3.14159, 4, 3.1416},
		{2.5, 0, 3},
		{-1.005, 2, -1.0},
	}

	for _, tt := range tests {
		result := Round(tt.value, tt.decimals)
		if math.Abs(result-tt.expected) > 1e-12 {
			t.Errorf("Round(%g, %d) = %g, expected %g", tt.value, tt.decimals, result, tt.expected)
		}
	}
}

func TestAllFinite(t *testing.T) {
	if !AllFinite([]float64{1, -2, 0}) {
		t.Errorf("AllFinite rejected a finite slice")
	}
	if AllFinite([]float64{1, math.NaN()}) {
		t.Errorf("AllFinite accepted NaN")
	}
	if AllFinite([]float64{1, math.Inf(1)}) {
		t.Errorf("AllFinite accepted +Inf")
	}
	if !AllFinite(nil) {
		t.Errorf("AllFinite rejected an empty slice")
	}
}
