package kinetics

import (
	"fmt"

	"github.com/thermokinetics/kinetics-core/pkg/models"
)

// DecodeParams maps a packed parameter vector back to named coefficients,
// one entry per peak in kinds. Each shape consumes its own parameter count
// (gauss 3, fraser 4, ads 5); surplus trailing values are ignored, which
// tolerates vectors packed with wider fixed segments.
func DecodeParams(kinds []models.PeakKind, params []float64) ([]PeakCoeffs, error) {
	coeffs := make([]PeakCoeffs, 0, len(kinds))
	idx := 0
	for i, kind := range kinds {
		if !kind.Valid() {
			return nil, fmt.Errorf("peak %d: unknown shape %q", i, kind)
		}
		count := kind.ParamCount()
		if idx+count > len(params) {
			return nil, fmt.Errorf("peak %d (%s): need %d parameters at offset %d, have %d total",
				i, kind, count, idx, len(params))
		}
		c := PeakCoeffs{H: params[idx], Z: params[idx+1], W: params[idx+2]}
		switch kind {
		case models.PeakFraser:
			c.FR = params[idx+3]
		case models.PeakADS:
			c.ADS1 = params[idx+3]
			c.ADS2 = params[idx+4]
		}
		coeffs = append(coeffs, c)
		idx += count
	}
	return coeffs, nil
}
