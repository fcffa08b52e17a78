package kinetics

import (
	"fmt"
	"math"

	"github.com/thermokinetics/kinetics-core/pkg/models"
	"github.com/thermokinetics/kinetics-core/pkg/utils"
)

// maxExpArg is the largest argument math.Exp can take for float64 without
// overflowing to +Inf.
const maxExpArg = 709.0

// Gaussian evaluates the symmetric Gaussian peak h*exp(-(x-z)^2 / 2w^2).
func Gaussian(x, h, z, w float64) float64 {
	d := x - z
	return h * math.Exp(-(d*d)/(2*w*w))
}

// FraserSuzuki evaluates the log-skewed Fraser-Suzuki peak. Outside the
// valid log domain (1 + 2*fr*(x-z)/w <= 0) the value is 0, never NaN.
func FraserSuzuki(x, h, z, w, fr float64) float64 {
	u := (x - z) / w
	if fr == 0 {
		// Symmetric limit of the shape as the skew parameter vanishes.
		return h * math.Exp(-math.Ln2*4*u*u)
	}
	arg := 1 + 2*fr*u
	if arg <= 0 {
		return 0
	}
	v := math.Log(arg) / fr
	return h * math.Exp(-math.Ln2*v*v)
}

// AsymmetricDoubleSigmoid evaluates the product of two logistic ramps
// straddling the peak center. Exponent arguments are clamped into the safe
// double-precision range before exponentiation.
func AsymmetricDoubleSigmoid(x, h, z, w, ads1, ads2 float64) float64 {
	if ads1 == 0 || ads2 == 0 {
		return 0
	}
	leftArg := utils.ClampFloat64(-((x - z + w/2) / ads1), -maxExpArg, maxExpArg)
	left := 1 / (1 + math.Exp(leftArg))

	rightArg := utils.ClampFloat64(-((x - z - w/2) / ads2), -maxExpArg, maxExpArg)
	right := 1 - 1/(1+math.Exp(rightArg))

	return h * left * right
}

// Curve samples a peak shape over xs. The params layout is h,z,w plus fr for
// fraser or ads1,ads2 for ads.
func Curve(kind models.PeakKind, xs []float64, params []float64) ([]float64, error) {
	if len(params) < kind.ParamCount() {
		return nil, fmt.Errorf("peak %s needs %d parameters, got %d", kind, kind.ParamCount(), len(params))
	}
	h, z, w := params[0], params[1], params[2]
	out := make([]float64, len(xs))
	switch kind {
	case models.PeakGauss:
		for i, x := range xs {
			out[i] = Gaussian(x, h, z, w)
		}
	case models.PeakFraser:
		fr := params[3]
		for i, x := range xs {
			out[i] = FraserSuzuki(x, h, z, w, fr)
		}
	case models.PeakADS:
		ads1, ads2 := params[3], params[4]
		for i, x := range xs {
			out[i] = AsymmetricDoubleSigmoid(x, h, z, w, ads1, ads2)
		}
	default:
		return nil, fmt.Errorf("unknown peak kind: %s", kind)
	}
	return out, nil
}

// PeakCoeffs holds the named coefficients of one peak shape. Unused fields
// keep their defaults so the persisted artifact stays uniform across shapes.
type PeakCoeffs struct {
	H    float64
	Z    float64
	W    float64
	FR   float64
	ADS1 float64
	ADS2 float64
}

// PeakDefaults is the initial guess and bound envelope derived from a series.
type PeakDefaults struct {
	Function models.PeakKind
	X        []float64
	Coeffs   PeakCoeffs
	Upper    PeakCoeffs
	Lower    PeakCoeffs
}

// DefaultPeakBounds derives an initial guess and a bound envelope from one
// experimental column: h = 0.3*max(y), z = mean(x), w = 0.1*range(x), with
// +-10% on height and width and +-5 temperature units on the center.
func DefaultPeakBounds(x, y []float64) (PeakDefaults, error) {
	if len(x) == 0 || len(y) == 0 {
		return PeakDefaults{}, fmt.Errorf("cannot derive bounds from an empty series")
	}
	yMax := y[0]
	for _, v := range y {
		if v > yMax {
			yMax = v
		}
	}
	xMin, xMax := x[0], x[0]
	for _, v := range x {
		if v < xMin {
			xMin = v
		}
		if v > xMax {
			xMax = v
		}
	}

	h := 0.3 * yMax
	z := utils.Mean(x)
	w := 0.1 * (xMax - xMin)

	guess := PeakCoeffs{H: h, Z: z, W: w, FR: -1, ADS1: 1, ADS2: 1}
	upper := guess
	lower := guess
	upper.H, lower.H = h*1.1, h*0.9
	upper.W, lower.W = w*1.1, w*0.9
	upper.Z, lower.Z = z+5, z-5

	xs := make([]float64, len(x))
	copy(xs, x)

	return PeakDefaults{
		Function: models.PeakGauss,
		X:        xs,
		Coeffs:   guess,
		Upper:    upper,
		Lower:    lower,
	}, nil
}
