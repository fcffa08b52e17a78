package datastore

import (
	"fmt"

	"github.com/thermokinetics/kinetics-core/internal/kinetics"
	"github.com/thermokinetics/kinetics-core/pkg/models"
	"github.com/thermokinetics/kinetics-core/pkg/utils"
)

// curvePoints is the grid resolution for rendered reaction curves.
const curvePoints = 250

// orderedVars fixes the coefficient order used when packing bound vectors
// and decoding optimizer output. It must not change: persisted artifacts and
// parameter layouts both depend on it.
var orderedVars = []string{"h", "z", "w", "fr", "ads1", "ads2"}

// allowedVars returns the coefficient names a peak shape actually uses.
func allowedVars(kind models.PeakKind) []string {
	switch kind {
	case models.PeakFraser:
		return []string{"h", "z", "w", "fr"}
	case models.PeakADS:
		return []string{"h", "z", "w", "ads1", "ads2"}
	default:
		return []string{"h", "z", "w"}
	}
}

func coeffsMap(c kinetics.PeakCoeffs) map[string]any {
	return map[string]any{
		"h":    c.H,
		"z":    c.Z,
		"w":    c.W,
		"fr":   c.FR,
		"ads1": c.ADS1,
		"ads2": c.ADS2,
	}
}

// defaultReactionData renders a derived bound envelope as the store artifact
// for a fresh reaction. All six coefficients are always present so the
// artifact shape is uniform across peak functions.
func defaultReactionData(d kinetics.PeakDefaults) map[string]any {
	return map[string]any{
		"function":           string(d.Function),
		"x":                  d.X,
		"coeffs":             coeffsMap(d.Coeffs),
		"upper_bound_coeffs": coeffsMap(d.Upper),
		"lower_bound_coeffs": coeffsMap(d.Lower),
	}
}

// floats coerces a stored value into a float slice. Freshly written
// artifacts hold []float64; artifacts reloaded from JSON hold []any.
func floats(value any) []float64 {
	switch v := value.(type) {
	case []float64:
		return v
	case []any:
		out := make([]float64, 0, len(v))
		for _, item := range v {
			if f, ok := item.(float64); ok {
				out = append(out, f)
			}
		}
		return out
	}
	return nil
}

func coeffValue(m map[string]any, key string) (float64, bool) {
	v, ok := m[key].(float64)
	return v, ok
}

func asMap(value any) map[string]any {
	m, _ := value.(map[string]any)
	return m
}

// reactionCurve renders one bound of a reaction artifact over its stored
// temperature range.
func reactionCurve(artifact map[string]any, bound string) ([]float64, []float64, error) {
	kind := models.PeakKind(fmt.Sprint(artifact["function"]))
	if !kind.Valid() {
		return nil, nil, fmt.Errorf("artifact has unknown peak function %q", artifact["function"])
	}
	xs := floats(artifact["x"])
	if len(xs) == 0 {
		return nil, nil, fmt.Errorf("artifact has no temperature grid")
	}
	coeffs := asMap(artifact[bound])
	if coeffs == nil {
		return nil, nil, fmt.Errorf("artifact has no %s block", bound)
	}

	params := make([]float64, 0, kind.ParamCount())
	for _, name := range allowedVars(kind) {
		v, ok := coeffValue(coeffs, name)
		if !ok {
			return nil, nil, fmt.Errorf("artifact %s block is missing %q", bound, name)
		}
		params = append(params, v)
	}

	lo, hi := xs[0], xs[0]
	for _, v := range xs {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	grid := utils.Linspace(lo, hi, curvePoints)
	ys, err := kinetics.Curve(kind, grid, params)
	if err != nil {
		return nil, nil, err
	}
	return grid, ys, nil
}
