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

// Deconvolution fits the sum of per-reaction peak curves against one
// experimental column, scanning every candidate shape combination inside the
// target function and reporting improvements mid-evaluation.
type Deconvolution struct {
	method       string
	bounds       []models.Bound
	paramCounts  []int
	combinations [][]models.PeakKind
	x            []float64
	y            []float64
	host         Host
}

// NewDeconvolution validates the request and builds the scenario.
func NewDeconvolution(req *Request, host Host) (*Deconvolution, error) {
	if len(req.X) == 0 || len(req.X) != len(req.Y) {
		return nil, fmt.Errorf("experimental series is empty or misaligned: %d temperatures, %d values", len(req.X), len(req.Y))
	}
	if len(req.Combinations) == 0 {
		return nil, fmt.Errorf("no reaction combinations provided")
	}
	if len(req.ParamCounts) == 0 {
		return nil, fmt.Errorf("no reaction parameter layout provided")
	}
	total := 0
	for _, c := range req.ParamCounts {
		total += c
	}
	if total != len(req.Bounds) {
		return nil, fmt.Errorf("bounds length %d does not match parameter layout total %d", len(req.Bounds), total)
	}
	for _, comb := range req.Combinations {
		if len(comb) != len(req.ParamCounts) {
			return nil, fmt.Errorf("combination width %d does not match reaction count %d", len(comb), len(req.ParamCounts))
		}
	}
	method := req.Method
	if method == "" {
		method = MethodDifferentialEvolution
	}
	return &Deconvolution{
		method:       method,
		bounds:       req.Bounds,
		paramCounts:  req.ParamCounts,
		combinations: req.Combinations,
		x:            req.X,
		y:            req.Y,
		host:         host,
	}, nil
}

// Bounds returns the request bounds unchanged.
func (s *Deconvolution) Bounds() ([]models.Bound, error) {
	return s.bounds, nil
}

// Method returns the optimization method name.
func (s *Deconvolution) Method() string {
	return s.method
}

// StrategyKind selects the deconvolution best-result strategy.
func (s *Deconvolution) StrategyKind() Kind {
	return KindDeconvolution
}

// TargetFunction builds the combination-scanning MSE function. Every
// evaluation walks all shape combinations over the shared parameter vector;
// the layout gives each reaction a fixed-width segment, of which a given
// shape uses the first 3, 4 or 5 entries.
func (s *Deconvolution) TargetFunction() (TargetFunc, error) {
	return func(params []float64) float64 {
		if !s.host.Active() {
			return math.Inf(1)
		}

		bestMSE := math.Inf(1)
		cumulative := make([]float64, len(s.x))

		for _, combination := range s.combinations {
			for i := range cumulative {
				cumulative[i] = 0
			}

			idx := 0
			for ri, kind := range combination {
				count := s.paramCounts[ri]
				segment := params[idx : idx+count]
				idx += count

				// A narrower shape reads the head of its reaction's segment.
				if n := kind.ParamCount(); n < len(segment) {
					segment = segment[:n]
				}
				curve, err := kinetics.Curve(kind, s.x, segment)
				if err != nil {
					logger.Warn("skipping peak in combination", "reaction", ri, "kind", kind, "error", err)
					continue
				}
				for i, v := range curve {
					cumulative[i] += v
				}
			}

			mse := utils.MSE(s.y, cumulative)
			if mse < bestMSE {
				bestMSE = mse
				s.host.EmitBestResult(models.BestResult{
					MSE:         mse,
					Combination: kindNames(combination),
					Params:      append([]float64(nil), params...),
					Timestamp:   time.Now(),
				})
			}
		}

		return bestMSE
	}, nil
}

func kindNames(kinds []models.PeakKind) []string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return names
}
