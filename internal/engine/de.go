package engine

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/thermokinetics/kinetics-core/internal/scenario"
	"github.com/thermokinetics/kinetics-core/pkg/config"
	"github.com/thermokinetics/kinetics-core/pkg/models"
	"github.com/thermokinetics/kinetics-core/pkg/utils"
)

// DEResult contains a differential-evolution run's terminal state.
type DEResult struct {
	X           []float64 `json:"x"`
	Fun         float64   `json:"fun"`
	Iterations  int       `json:"iterations"`
	Evaluations int       `json:"evaluations"`
	Converged   bool      `json:"converged"`
	Message     string    `json:"message"`
}

// DifferentialEvolution is a best1bin differential-evolution optimizer with
// dithered mutation, binomial crossover and latin-hypercube initialization.
// It minimizes a scenario target function within inclusive bounds and calls
// back on every improvement so the caller can observe progress
// mid-generation.
type DifferentialEvolution struct {
	profile config.DEProfile
	bounds  []models.Bound
	target  scenario.TargetFunc
	onBest  func(x []float64, fun float64)
	rng     *utils.RandSource
	stop    atomic.Bool

	mu          sync.Mutex
	bestX       []float64
	bestFun     float64
	iteration   int
	evaluations int
}

// NewDifferentialEvolution builds an optimizer for the given bounds and
// target. The profile's PopSize is a multiplier on the problem dimension,
// with a floor of 5 individuals. A zero profile seed leaves the source
// time-seeded; tests pass explicit seeds for reproducibility.
func NewDifferentialEvolution(profile config.DEProfile, bounds []models.Bound, target scenario.TargetFunc) (*DifferentialEvolution, error) {
	if len(bounds) == 0 {
		return nil, fmt.Errorf("bounds are required")
	}
	if target == nil {
		return nil, fmt.Errorf("target function is required")
	}
	for i, b := range bounds {
		if b.Low > b.High {
			return nil, fmt.Errorf("bound %d is inverted: [%g, %g]", i, b.Low, b.High)
		}
	}
	if profile.MaxIterations <= 0 {
		profile.MaxIterations = 1000
	}
	if profile.PopSize <= 0 {
		profile.PopSize = 15
	}
	if profile.Recombination <= 0 || profile.Recombination > 1 {
		profile.Recombination = 0.7
	}
	if profile.MutationMin <= 0 {
		profile.MutationMin = 0.5
	}
	if profile.MutationMax < profile.MutationMin {
		profile.MutationMax = profile.MutationMin
	}
	return &DifferentialEvolution{
		profile: profile,
		bounds:  bounds,
		target:  target,
		bestFun: math.Inf(1),
		rng:     utils.NewRandSource(profile.Seed),
	}, nil
}

// WithBestCallback sets the improvement callback. It is invoked from the
// goroutine running Run, with copies of the best vector.
func (de *DifferentialEvolution) WithBestCallback(fn func(x []float64, fun float64)) *DifferentialEvolution {
	de.onBest = fn
	return de
}

// Stop requests a cooperative stop; the run ends after the current
// generation.
func (de *DifferentialEvolution) Stop() {
	de.stop.Store(true)
}

// BestFun returns the best energy found so far.
func (de *DifferentialEvolution) BestFun() float64 {
	de.mu.Lock()
	defer de.mu.Unlock()
	return de.bestFun
}

// Run executes the optimization until convergence, the iteration budget, or
// a stop request.
func (de *DifferentialEvolution) Run() *DEResult {
	dim := len(de.bounds)
	npop := utils.Max(de.profile.PopSize*dim, 5)

	population := de.initPopulation(npop, dim)
	energies := make([]float64, npop)
	for i, individual := range population {
		energies[i] = de.evaluate(individual)
	}
	de.syncBest(population, energies)

	if de.stop.Load() {
		return de.buildResult(false, "stop requested during initialization")
	}

	trial := make([]float64, dim)
	for iteration := 1; iteration <= de.profile.MaxIterations; iteration++ {
		de.mu.Lock()
		de.iteration = iteration
		bestIdx := argmin(energies)
		de.mu.Unlock()

		// Dither: a fresh mutation factor per generation.
		f := de.rng.UniformFloat64(de.profile.MutationMin, de.profile.MutationMax)

		for i := 0; i < npop; i++ {
			r1, r2 := de.pickDistinct(npop, i, bestIdx)
			cross := de.rng.Intn(dim)
			for d := 0; d < dim; d++ {
				if d == cross || de.rng.Float64() < de.profile.Recombination {
					v := population[bestIdx][d] + f*(population[r1][d]-population[r2][d])
					trial[d] = utils.ClampFloat64(v, de.bounds[d].Low, de.bounds[d].High)
				} else {
					trial[d] = population[i][d]
				}
			}

			energy := de.evaluate(trial)
			if energy <= energies[i] {
				copy(population[i], trial)
				energies[i] = energy
				if energy < de.BestFun() {
					de.recordBest(trial, energy)
				}
			}
		}

		if de.converged(energies) {
			return de.buildResult(true, "population energies converged")
		}
		if de.stop.Load() {
			return de.buildResult(false, "stop requested")
		}
	}

	return de.buildResult(false, "maximum iterations reached")
}

func (de *DifferentialEvolution) initPopulation(npop, dim int) [][]float64 {
	population := make([][]float64, npop)
	for i := range population {
		population[i] = make([]float64, dim)
	}
	if de.profile.Init == "latinhypercube" {
		// One stratified sample per individual per dimension, shuffled so
		// strata are uncorrelated across dimensions.
		for d := 0; d < dim; d++ {
			perm := de.rng.Perm(npop)
			width := (de.bounds[d].High - de.bounds[d].Low) / float64(npop)
			for i := 0; i < npop; i++ {
				low := de.bounds[d].Low + float64(perm[i])*width
				population[i][d] = low + de.rng.Float64()*width
			}
		}
		return population
	}
	for i := range population {
		for d := 0; d < dim; d++ {
			population[i][d] = de.rng.UniformFloat64(de.bounds[d].Low, de.bounds[d].High)
		}
	}
	return population
}

func (de *DifferentialEvolution) evaluate(x []float64) float64 {
	de.mu.Lock()
	de.evaluations++
	de.mu.Unlock()
	energy := de.target(x)
	if math.IsNaN(energy) {
		return math.Inf(1)
	}
	return energy
}

func (de *DifferentialEvolution) pickDistinct(npop, exclude, excludeBest int) (int, int) {
	pick := func(taken ...int) int {
		for {
			candidate := de.rng.Intn(npop)
			ok := true
			for _, t := range taken {
				if candidate == t {
					ok = false
					break
				}
			}
			if ok {
				return candidate
			}
		}
	}
	r1 := pick(exclude, excludeBest)
	r2 := pick(exclude, excludeBest, r1)
	return r1, r2
}

func (de *DifferentialEvolution) syncBest(population [][]float64, energies []float64) {
	idx := argmin(energies)
	if energies[idx] < de.BestFun() {
		de.recordBest(population[idx], energies[idx])
	}
}

func (de *DifferentialEvolution) recordBest(x []float64, fun float64) {
	de.mu.Lock()
	de.bestX = append(de.bestX[:0], x...)
	de.bestFun = fun
	de.mu.Unlock()
	if de.onBest != nil {
		de.onBest(append([]float64(nil), x...), fun)
	}
}

// converged checks the scipy-style criterion: the population energy spread
// has collapsed relative to its mean.
func (de *DifferentialEvolution) converged(energies []float64) bool {
	finite := make([]float64, 0, len(energies))
	for _, e := range energies {
		if !math.IsInf(e, 0) && !math.IsNaN(e) {
			finite = append(finite, e)
		}
	}
	if len(finite) < len(energies) || len(finite) == 0 {
		return false
	}
	return utils.StdDev(finite) <= de.profile.ATol+de.profile.Tol*math.Abs(utils.Mean(finite))
}

func (de *DifferentialEvolution) buildResult(converged bool, message string) *DEResult {
	de.mu.Lock()
	defer de.mu.Unlock()
	return &DEResult{
		X:           append([]float64(nil), de.bestX...),
		Fun:         de.bestFun,
		Iterations:  de.iteration,
		Evaluations: de.evaluations,
		Converged:   converged,
		Message:     message,
	}
}

func argmin(values []float64) int {
	idx := 0
	for i, v := range values {
		if v < values[idx] {
			idx = i
		}
	}
	return idx
}
