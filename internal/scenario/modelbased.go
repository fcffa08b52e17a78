package scenario

import (
	"fmt"
	"math"
	"time"

	"github.com/thermokinetics/kinetics-core/internal/kinetics"
	"github.com/thermokinetics/kinetics-core/pkg/logger"
	"github.com/thermokinetics/kinetics-core/pkg/models"
	"github.com/thermokinetics/kinetics-core/pkg/utils"
)

const (
	// gasConstant is R in J/(mol*K).
	gasConstant = 8.314

	// contributionTol is the accepted deviation of the contribution sum
	// from 1.
	contributionTol = 1e-4

	// kelvinOffset converts experimental °C temperatures to K.
	kelvinOffset = 273.15
)

// ModelBased fits Arrhenius and rate-law parameters of a reaction network.
// The network is compiled once into an explicit ODE right-hand side; each
// target evaluation integrates it over the experimental temperature grid for
// every heating rate and sums the per-series MSE of the predicted mass loss.
type ModelBased struct {
	method  string
	scheme  *models.ReactionScheme
	network *compiledNetwork
	host    Host

	tempK  []float64 // experimental grid in Kelvin
	rates  []float64 // heating rates, K/min
	masses [][]float64
}

// compiledNetwork is the reaction scheme lowered to index form: one entry per
// edge, species resolved to state-vector positions.
type compiledNetwork struct {
	species    []string
	source     []int
	target     []int
	law        []func(float64) float64 // nil falls back to conc^order
	numSpecies int
	numReacts  int
}

// UnknownModelError indicates a reaction type absent from the rate-law table.
type UnknownModelError struct {
	ReactionType string
}

func (e *UnknownModelError) Error() string {
	return "unknown reaction model: " + e.ReactionType
}

// NewModelBased validates the request, compiles the network and extracts the
// experimental series.
func NewModelBased(req *Request, host Host) (*ModelBased, error) {
	if req.Scheme == nil {
		return nil, fmt.Errorf("no reaction scheme provided")
	}
	if len(req.Scheme.Reactions) == 0 {
		return nil, fmt.Errorf("reaction scheme has no reactions")
	}
	if req.Series == nil || len(req.Series.Temperature) < 2 {
		return nil, fmt.Errorf("experimental series is missing or too short")
	}
	if len(req.Series.Columns) == 0 {
		return nil, fmt.Errorf("experimental series has no heating-rate columns")
	}

	network, err := compileNetwork(req.Scheme)
	if err != nil {
		return nil, err
	}

	tempK := make([]float64, len(req.Series.Temperature))
	for i, t := range req.Series.Temperature {
		tempK[i] = t + kelvinOffset
	}

	rates := make([]float64, 0, len(req.Series.Columns))
	masses := make([][]float64, 0, len(req.Series.Columns))
	for _, col := range req.Series.Columns {
		if len(col.Values) != len(tempK) {
			return nil, fmt.Errorf("column %s has %d values for %d temperatures", col.Label, len(col.Values), len(tempK))
		}
		if col.Rate <= 0 {
			return nil, fmt.Errorf("column %s has non-positive heating rate %.3f", col.Label, col.Rate)
		}
		rates = append(rates, col.Rate)
		masses = append(masses, col.Values)
	}

	method := req.Method
	if method == "" {
		method = MethodDifferentialEvolution
	}
	return &ModelBased{
		method:  method,
		scheme:  req.Scheme,
		network: network,
		host:    host,
		tempK:   tempK,
		rates:   rates,
		masses:  masses,
	}, nil
}

func compileNetwork(scheme *models.ReactionScheme) (*compiledNetwork, error) {
	index := make(map[string]int, len(scheme.Components))
	species := make([]string, 0, len(scheme.Components))
	for _, comp := range scheme.Components {
		if _, dup := index[comp.ID]; dup {
			return nil, fmt.Errorf("duplicate component id: %s", comp.ID)
		}
		index[comp.ID] = len(species)
		species = append(species, comp.ID)
	}
	if len(species) == 0 {
		return nil, fmt.Errorf("reaction scheme has no components")
	}

	n := len(scheme.Reactions)
	net := &compiledNetwork{
		species:    species,
		source:     make([]int, n),
		target:     make([]int, n),
		law:        make([]func(float64) float64, n),
		numSpecies: len(species),
		numReacts:  n,
	}
	for i, r := range scheme.Reactions {
		src, ok := index[r.From]
		if !ok {
			return nil, fmt.Errorf("reaction %d references unknown source species %q", i, r.From)
		}
		tgt, ok := index[r.To]
		if !ok {
			return nil, fmt.Errorf("reaction %d references unknown target species %q", i, r.To)
		}
		net.source[i] = src
		net.target[i] = tgt
		if law, ok := kinetics.Model(r.ReactionType); ok {
			net.law[i] = law.Differential
		} else {
			// Fall back to the free reaction-order parameter; the target
			// function applies conc^order for this edge.
			logger.Warn("unknown reaction type, using order-based rate", "reaction_type", r.ReactionType, "edge", i)
		}
	}
	return net, nil
}

// Bounds packs the free vector as [logA..., Ea..., order..., contribution...]
// with per-reaction envelopes from the scheme, defaulted where unset.
func (s *ModelBased) Bounds() ([]models.Bound, error) {
	bounds := make([]models.Bound, 0, 4*len(s.scheme.Reactions))
	for _, r := range s.scheme.Reactions {
		lo, hi := r.LogAMin, r.LogAMax
		if lo == 0 && hi == 0 {
			lo, hi = 0, 10
		}
		bounds = append(bounds, models.Bound{Low: lo, High: hi})
	}
	for _, r := range s.scheme.Reactions {
		lo, hi := r.EaMin, r.EaMax
		if lo == 0 && hi == 0 {
			lo, hi = 1, 2000
		}
		bounds = append(bounds, models.Bound{Low: lo, High: hi})
	}
	for _, r := range s.scheme.Reactions {
		lo, hi := r.OrderMin, r.OrderMax
		if lo == 0 && hi == 0 {
			lo, hi = 0.1, 3
		}
		bounds = append(bounds, models.Bound{Low: lo, High: hi})
	}
	for _, r := range s.scheme.Reactions {
		lo, hi := r.ContribMin, r.ContribMax
		if lo == 0 && hi == 0 {
			lo, hi = 0, 1
		}
		bounds = append(bounds, models.Bound{Low: lo, High: hi})
	}
	return bounds, nil
}

// Method returns the optimization method name.
func (s *ModelBased) Method() string {
	return s.method
}

// StrategyKind selects the model-based best-result strategy.
func (s *ModelBased) StrategyKind() Kind {
	return KindModelBased
}

// TargetFunction builds the ODE-integrating error function. Constraint
// violations and integration failures return +Inf, never NaN or a partial
// score.
func (s *ModelBased) TargetFunction() (TargetFunc, error) {
	n := s.network.numReacts
	bestMSE := math.Inf(1)

	return func(params []float64) float64 {
		if !s.host.Active() {
			return math.Inf(1)
		}
		if len(params) != 4*n {
			return math.Inf(1)
		}

		contributions := params[3*n : 4*n]
		if math.Abs(utils.Sum(contributions)-1) > contributionTol {
			return math.Inf(1)
		}

		totalMSE := 0.0
		for i, rate := range s.rates {
			predicted, ok := s.integrate(params, rate)
			if !ok {
				return math.Inf(1)
			}
			expMass := s.masses[i]
			m0 := expMass[0]
			mFin := expMass[len(expMass)-1]

			modelMass := make([]float64, len(expMass))
			for j := range modelMass {
				extentSum := 0.0
				for k := 0; k < n; k++ {
					extentSum += contributions[k] * predicted[j][s.network.numSpecies+k]
				}
				modelMass[j] = m0 - (m0-mFin)*extentSum
			}
			mse := utils.MSE(expMass, modelMass)
			if math.IsNaN(mse) || math.IsInf(mse, 0) {
				return math.Inf(1)
			}
			totalMSE += mse
		}

		if totalMSE < bestMSE {
			bestMSE = totalMSE
			s.host.EmitBestResult(models.BestResult{
				MSE:       totalMSE,
				Params:    append([]float64(nil), params...),
				Timestamp: time.Now(),
			})
		}
		return totalMSE
	}, nil
}

// integrate runs a classic fixed-step RK4 over the experimental temperature
// grid, one step per grid interval. The state vector is concentrations
// followed by per-reaction extents; the first species starts at 1.
func (s *ModelBased) integrate(params []float64, rate float64) ([][]float64, bool) {
	n := s.network.numReacts
	dim := s.network.numSpecies + n
	rateSI := rate / 60.0

	rhs := func(T float64, state, out []float64) {
		for i := range out {
			out[i] = 0
		}
		for i := 0; i < n; i++ {
			conc := state[s.network.source[i]]
			var f float64
			if law := s.network.law[i]; law != nil {
				f = law(conc)
			} else {
				f = math.Pow(kinetics.ClampFraction(conc), params[2*n+i])
			}
			k := math.Pow(10, params[i]) * math.Exp(-params[n+i]*1000/(gasConstant*T)) / rateSI
			r := k * f
			out[s.network.source[i]] -= r
			out[s.network.target[i]] += r
			out[s.network.numSpecies+i] = r
		}
	}

	states := make([][]float64, len(s.tempK))
	state := make([]float64, dim)
	state[0] = 1.0
	states[0] = append([]float64(nil), state...)

	k1 := make([]float64, dim)
	k2 := make([]float64, dim)
	k3 := make([]float64, dim)
	k4 := make([]float64, dim)
	tmp := make([]float64, dim)

	for j := 1; j < len(s.tempK); j++ {
		t0 := s.tempK[j-1]
		h := s.tempK[j] - t0
		if h <= 0 {
			return nil, false
		}

		rhs(t0, state, k1)
		for i := range tmp {
			tmp[i] = state[i] + h/2*k1[i]
		}
		rhs(t0+h/2, tmp, k2)
		for i := range tmp {
			tmp[i] = state[i] + h/2*k2[i]
		}
		rhs(t0+h/2, tmp, k3)
		for i := range tmp {
			tmp[i] = state[i] + h*k3[i]
		}
		rhs(t0+h, tmp, k4)

		for i := range state {
			state[i] += h / 6 * (k1[i] + 2*k2[i] + 2*k3[i] + k4[i])
		}
		if !utils.AllFinite(state) {
			return nil, false
		}
		states[j] = append([]float64(nil), state...)
	}
	return states, true
}
