package scenario

import (
	"github.com/thermokinetics/kinetics-core/pkg/models"
)

// Kind identifies a calculation scenario family. It doubles as the
// best-result strategy selector.
type Kind string

const (
	// KindDeconvolution fits a sum of peak shapes against one series.
	KindDeconvolution Kind = "deconvolution"

	// KindModelBased fits a reaction network's kinetic parameters against
	// mass-loss curves.
	KindModelBased Kind = "model_based_calculation"
)

// Valid reports whether the kind names a registered scenario.
func (k Kind) Valid() bool {
	return k == KindDeconvolution || k == KindModelBased
}

// MethodDifferentialEvolution is the only optimization method currently
// supported by the engine.
const MethodDifferentialEvolution = "differential_evolution"

// TargetFunc maps a parameter vector to a scalar error. Implementations must
// degrade every failure mode to +Inf; the optimizer never sees NaN.
type TargetFunc func(params []float64) float64

// Host is the engine surface a scenario needs while its target function is
// being evaluated on the worker goroutine.
type Host interface {
	// Active reports whether the run is still live. Target functions check
	// it first and return +Inf once a stop was requested.
	Active() bool

	// EmitBestResult hands an improving candidate to the engine. Called from
	// the worker goroutine; the engine forwards it to the dispatch loop.
	EmitBestResult(result models.BestResult)
}

// Scenario produces everything the optimization engine needs for one run.
type Scenario interface {
	// Bounds returns one inclusive [low, high] pair per free parameter, in
	// the target function's parameter order.
	Bounds() ([]models.Bound, error)

	// TargetFunction builds the error function for the optimizer.
	TargetFunction() (TargetFunc, error)

	// Method names the optimization method to use.
	Method() string

	// StrategyKind selects the best-result strategy for the run.
	StrategyKind() Kind
}

// Request carries everything a scenario needs, assembled by the data
// operations actor from the incoming calculation request.
type Request struct {
	Kind   Kind
	Method string

	// Deconvolution fields.
	FileName     string
	Bounds       []models.Bound
	ParamCounts  []int
	Combinations [][]models.PeakKind
	X            []float64
	Y            []float64

	// Model-based fields.
	SeriesName string
	Scheme     *models.ReactionScheme
	Series     *models.ExperimentSeries
}

// UnknownScenarioError indicates a request naming an unregistered scenario.
type UnknownScenarioError struct {
	Kind Kind
}

func (e *UnknownScenarioError) Error() string {
	return "unknown calculation scenario: " + string(e.Kind)
}

// New builds the scenario for a request.
func New(req *Request, host Host) (Scenario, error) {
	switch req.Kind {
	case KindDeconvolution:
		return NewDeconvolution(req, host)
	case KindModelBased:
		return NewModelBased(req, host)
	default:
		return nil, &UnknownScenarioError{Kind: req.Kind}
	}
}
