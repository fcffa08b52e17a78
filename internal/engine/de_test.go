package engine

import (
	"math"
	"testing"

	"github.com/thermokinetics/kinetics-core/pkg/config"
	"github.com/thermokinetics/kinetics-core/pkg/models"
)

func testProfile(seed int64) config.DEProfile {
	p := config.DefaultDeconvolutionProfile()
	p.MaxIterations = 200
	p.Seed = seed
	return p
}

func sphere(params []float64) float64 {
	sum := 0.0
	for _, v := range params {
		sum += v * v
	}
	return sum
}

func TestNewDifferentialEvolutionValidation(t *testing.T) {
	bounds := []models.Bound{{Low: -1, High: 1}}

	if _, err := NewDifferentialEvolution(testProfile(1), nil, sphere); err == nil {
		t.Fatalf("expected an error for empty bounds")
	}
	if _, err := NewDifferentialEvolution(testProfile(1), bounds, nil); err == nil {
		t.Fatalf("expected an error for a nil target")
	}
	inverted := []models.Bound{{Low: 2, High: 1}}
	if _, err := NewDifferentialEvolution(testProfile(1), inverted, sphere); err == nil {
		t.Fatalf("expected an error for inverted bounds")
	}
}

func TestDifferentialEvolutionSphere(t *testing.T) {
	bounds := []models.Bound{
		{Low: -5, High: 5},
		{Low: -5, High: 5},
		{Low: -5, High: 5},
	}
	de, err := NewDifferentialEvolution(testProfile(42), bounds, sphere)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result := de.Run()
	if result.Fun > 1e-3 {
		t.Fatalf("expected the sphere minimum near zero, got %g after %d iterations", result.Fun, result.Iterations)
	}
	if len(result.X) != len(bounds) {
		t.Fatalf("result vector has %d entries, want %d", len(result.X), len(bounds))
	}
	for i, v := range result.X {
		if math.Abs(v) > 0.1 {
			t.Fatalf("coordinate %d = %g is too far from the optimum", i, v)
		}
	}
	if result.Evaluations == 0 {
		t.Fatalf("expected evaluations to be counted")
	}
}

func TestDifferentialEvolutionShiftedQuadratic(t *testing.T) {
	target := func(params []float64) float64 {
		dx := params[0] - 3
		dy := params[1] + 2
		return dx*dx + dy*dy
	}
	bounds := []models.Bound{
		{Low: 0, High: 10},
		{Low: -10, High: 0},
	}
	de, err := NewDifferentialEvolution(testProfile(7), bounds, target)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result := de.Run()
	if math.Abs(result.X[0]-3) > 0.05 || math.Abs(result.X[1]+2) > 0.05 {
		t.Fatalf("converged to %v, want near (3, -2)", result.X)
	}
}

func TestDifferentialEvolutionRespectsBounds(t *testing.T) {
	bounds := []models.Bound{
		{Low: 1, High: 2},
		{Low: -4, High: -3},
	}
	var violations int
	target := func(params []float64) float64 {
		for i, v := range params {
			if v < bounds[i].Low || v > bounds[i].High {
				violations++
			}
		}
		// The unconstrained optimum is outside the box, so the run keeps
		// pressing against the bounds.
		return sphere(params)
	}
	de, err := NewDifferentialEvolution(testProfile(3), bounds, target)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result := de.Run()
	if violations != 0 {
		t.Fatalf("target saw %d evaluations outside the bounds", violations)
	}
	if result.X[0] < 1 || result.X[0] > 2 || result.X[1] < -4 || result.X[1] > -3 {
		t.Fatalf("result %v escaped the bounds", result.X)
	}
}

func TestDifferentialEvolutionStop(t *testing.T) {
	profile := testProfile(5)
	profile.MaxIterations = 100000
	profile.Tol = 0 // never converge on spread

	bounds := []models.Bound{{Low: -5, High: 5}, {Low: -5, High: 5}}

	var de *DifferentialEvolution
	evals := 0
	target := func(params []float64) float64 {
		evals++
		if evals == 50 {
			de.Stop()
		}
		return sphere(params)
	}

	var err error
	de, err = NewDifferentialEvolution(profile, bounds, target)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result := de.Run()
	if result.Converged {
		t.Fatalf("a stopped run must not report convergence")
	}
	if evals > 50+2*len(bounds)*profile.PopSize {
		t.Fatalf("run kept evaluating long after the stop request: %d evaluations", evals)
	}
}

func TestDifferentialEvolutionCallbackMonotone(t *testing.T) {
	bounds := []models.Bound{{Low: -5, High: 5}, {Low: -5, High: 5}}
	var funs []float64
	de, err := NewDifferentialEvolution(testProfile(11), bounds, sphere)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	de.WithBestCallback(func(x []float64, fun float64) {
		funs = append(funs, fun)
		if len(x) != len(bounds) {
			t.Fatalf("callback vector has %d entries, want %d", len(x), len(bounds))
		}
	})

	result := de.Run()
	if len(funs) == 0 {
		t.Fatalf("expected at least one improvement callback")
	}
	for i := 1; i < len(funs); i++ {
		if funs[i] >= funs[i-1] {
			t.Fatalf("callback %d did not improve: %g then %g", i, funs[i-1], funs[i])
		}
	}
	if funs[len(funs)-1] != result.Fun {
		t.Fatalf("final callback %g does not match result %g", funs[len(funs)-1], result.Fun)
	}
}

func TestDifferentialEvolutionNaNTarget(t *testing.T) {
	bounds := []models.Bound{{Low: -1, High: 1}}
	target := func(params []float64) float64 {
		if params[0] < 0 {
			return math.NaN()
		}
		return params[0]
	}
	de, err := NewDifferentialEvolution(testProfile(9), bounds, target)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result := de.Run()
	if math.IsNaN(result.Fun) {
		t.Fatalf("optimizer surfaced NaN")
	}
	if result.Fun > 0.01 {
		t.Fatalf("expected the feasible minimum near zero, got %g", result.Fun)
	}
}
