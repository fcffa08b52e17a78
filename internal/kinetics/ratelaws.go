package kinetics

import (
	"math"
	"sort"
)

// Epsilon bounds the fractional-conversion domain for differential forms.
// Several rate laws are singular at 0 or 1, so evaluation clamps into
// [Epsilon, 1-Epsilon] first.
const Epsilon = 1e-8

// RateLaw exposes the differential form f(a) and integral form g(a) of one
// solid-state kinetics model over the conversion domain a in (0,1).
type RateLaw struct {
	Differential func(a float64) float64
	Integral     func(a float64) float64
}

// ClampFraction clamps a conversion value into [Epsilon, 1-Epsilon].
func ClampFraction(a float64) float64 {
	if a < Epsilon {
		return Epsilon
	}
	if a > 1-Epsilon {
		return 1 - Epsilon
	}
	return a
}

var rateLaws = map[string]RateLaw{
	"F1/3": {
		Differential: func(e float64) float64 { return (3.0 / 2.0) * math.Pow(e, 1.0/3.0) },
		Integral:     func(e float64) float64 { return 1 - math.Pow(e, 2.0/3.0) },
	},
	"F3/4": {
		Differential: func(e float64) float64 { return 4 * math.Pow(e, 3.0/4.0) },
		Integral:     func(e float64) float64 { return 1 - math.Pow(e, 1.0/4.0) },
	},
	"F3/2": {
		Differential: func(e float64) float64 { return 2 * math.Pow(e, 3.0/2.0) },
		Integral:     func(e float64) float64 { return math.Pow(e, -1.0/2.0) - 1 },
	},
	"F2": {
		Differential: func(e float64) float64 { return e * e },
		Integral:     func(e float64) float64 { return 1/e - 1 },
	},
	"F3": {
		Differential: func(e float64) float64 { return e * e * e },
		Integral:     func(e float64) float64 { return math.Pow(e, -2) - 1 },
	},
	"F1/A1": {
		Differential: func(e float64) float64 { return e },
		Integral:     func(e float64) float64 { return -math.Log(e) },
	},
	"A2": {
		Differential: func(e float64) float64 { return 2 * e * math.Pow(-math.Log(e), 1.0/2.0) },
		Integral:     func(e float64) float64 { return math.Pow(-math.Log(e), 1.0/2.0) },
	},
	"A3": {
		Differential: func(e float64) float64 { return 3 * e * math.Pow(-math.Log(e), 2.0/3.0) },
		Integral:     func(e float64) float64 { return math.Pow(-math.Log(e), 1.0/3.0) },
	},
	"A4": {
		Differential: func(e float64) float64 { return 4 * e * math.Pow(-math.Log(e), 3.0/4.0) },
		Integral:     func(e float64) float64 { return math.Pow(-math.Log(e), 1.0/4.0) },
	},
	"A2/3": {
		Differential: func(e float64) float64 { return (2.0 / 3.0) * e * math.Pow(-math.Log(e), -1.0/2.0) },
		Integral:     func(e float64) float64 { return math.Pow(-math.Log(e), 3.0/2.0) },
	},
	"A3/2": {
		Differential: func(e float64) float64 { return (3.0 / 2.0) * e * math.Pow(-math.Log(e), 1.0/3.0) },
		Integral:     func(e float64) float64 { return math.Pow(-math.Log(e), 2.0/3.0) },
	},
	"A3/4": {
		Differential: func(e float64) float64 { return (3.0 / 4.0) * e * math.Pow(-math.Log(e), -1.0/3.0) },
		Integral:     func(e float64) float64 { return math.Pow(-math.Log(e), 4.0/3.0) },
	},
	"A5/2": {
		Differential: func(e float64) float64 { return (5.0 / 2.0) * e * math.Pow(-math.Log(e), 3.0/5.0) },
		Integral:     func(e float64) float64 { return math.Pow(-math.Log(e), 2.0/5.0) },
	},
	"F0/R1/P1": {
		Differential: func(e float64) float64 { return 1 },
		Integral:     func(e float64) float64 { return 1 - e },
	},
	"R2": {
		Differential: func(e float64) float64 { return 2 * math.Pow(e, 1.0/2.0) },
		Integral:     func(e float64) float64 { return 1 - math.Pow(e, 1.0/2.0) },
	},
	"R3": {
		Differential: func(e float64) float64 { return 3 * math.Pow(e, 2.0/3.0) },
		Integral:     func(e float64) float64 { return 1 - math.Pow(e, 1.0/3.0) },
	},
	"P3/2": {
		Differential: func(e float64) float64 { return (2.0 / 3.0) / math.Pow(1-e, 1.0/2.0) },
		Integral:     func(e float64) float64 { return math.Pow(1-e, 3.0/2.0) },
	},
	"P2": {
		Differential: func(e float64) float64 { return 2 * math.Pow(1-e, 1.0/2.0) },
		Integral:     func(e float64) float64 { return math.Pow(1-e, 1.0/2.0) },
	},
	"P3": {
		Differential: func(e float64) float64 { return 3 * math.Pow(1-e, 2.0/3.0) },
		Integral:     func(e float64) float64 { return math.Pow(1-e, 1.0/3.0) },
	},
	"P4": {
		Differential: func(e float64) float64 { return 4 * math.Pow(1-e, 3.0/4.0) },
		Integral:     func(e float64) float64 { return math.Pow(1-e, 1.0/4.0) },
	},
	"E1": {
		Differential: func(e float64) float64 { return 1 - e },
		Integral:     func(e float64) float64 { return math.Log(1 - e) },
	},
	"E2": {
		Differential: func(e float64) float64 { return (1 - e) / 2 },
		Integral:     func(e float64) float64 { return math.Log((1 - e) * (1 - e)) },
	},
	"D1": {
		Differential: func(e float64) float64 { return 1 / (2 * (1 - e)) },
		Integral:     func(e float64) float64 { return (1 - e) * (1 - e) },
	},
	"D2": {
		Differential: func(e float64) float64 { return 1 / (-math.Log(e)) },
		Integral:     func(e float64) float64 { return (1 - e) + e*math.Log(e) },
	},
	"D3": {
		Differential: func(e float64) float64 {
			return ((3.0 / 2.0) * math.Pow(e, 2.0/3.0)) / (1 - math.Pow(e, 1.0/3.0))
		},
		Integral: func(e float64) float64 {
			d := 1 - math.Pow(e, 1.0/3.0)
			return d * d
		},
	},
	"D4": {
		Differential: func(e float64) float64 { return (3.0 / 2.0) / (math.Pow(e, -1.0/3.0) - 1) },
		Integral:     func(e float64) float64 { return 1 - (2 * (1 - e) / 3) - math.Pow(e, 2.0/3.0) },
	},
	"D5": {
		Differential: func(e float64) float64 {
			return ((3.0 / 2.0) * math.Pow(e, 4.0/3.0)) / (math.Pow(e, -1.0/3.0) - 1)
		},
		Integral: func(e float64) float64 {
			d := math.Pow(e, -1.0/3.0) - 1
			return d * d
		},
	},
	"D6": {
		Differential: func(e float64) float64 {
			return ((3.0 / 2.0) * math.Pow(1+e, 2.0/3.0)) / (math.Pow(1+e, 1.0/3.0) - 1)
		},
		Integral: func(e float64) float64 {
			d := math.Pow(1+e, 1.0/3.0) - 1
			return d * d
		},
	},
	"D7": {
		Differential: func(e float64) float64 { return (3.0 / 2.0) / (1 - math.Pow(1+e, -1.0/3.0)) },
		Integral:     func(e float64) float64 { return 1 + (2 * (1 - e) / 3) - math.Pow(1+e, 2.0/3.0) },
	},
	"D8": {
		Differential: func(e float64) float64 {
			return ((3.0 / 2.0) * math.Pow(1+e, 4.0/3.0)) / (1 - math.Pow(1+e, -1.0/3.0))
		},
		Integral: func(e float64) float64 {
			d := math.Pow(1+e, -1.0/3.0) - 1
			return d * d
		},
	},
	"G1": {
		Differential: func(e float64) float64 { return 1 / (2 * e) },
		Integral:     func(e float64) float64 { return 1 - e*e },
	},
	"G2": {
		Differential: func(e float64) float64 { return 1 / (3 * e * e) },
		Integral:     func(e float64) float64 { return 1 - e*e*e },
	},
	"G3": {
		Differential: func(e float64) float64 { return 1 / (4 * e * e * e) },
		Integral:     func(e float64) float64 { return 1 - e*e*e*e },
	},
	"G4": {
		Differential: func(e float64) float64 { return (1.0 / 2.0) * e * (-math.Log(e)) },
		Integral: func(e float64) float64 {
			l := -math.Log(e)
			return l * l
		},
	},
	"G5": {
		Differential: func(e float64) float64 {
			l := -math.Log(e)
			return (1.0 / 3.0) * e * l * l
		},
		Integral: func(e float64) float64 {
			l := -math.Log(e)
			return l * l * l
		},
	},
	"G6": {
		Differential: func(e float64) float64 {
			l := -math.Log(e)
			return (1.0 / 4.0) * e * l * l * l
		},
		Integral: func(e float64) float64 {
			l := -math.Log(e)
			return l * l * l * l
		},
	},
	"G7": {
		Differential: func(e float64) float64 {
			return (1.0 / 4.0) * math.Pow(e, 1.0/2.0) / (1 - math.Pow(e, 1.0/2.0))
		},
		Integral: func(e float64) float64 { return math.Pow(1-math.Pow(e, 1.0/2.0), 1.0/2.0) },
	},
	"G8": {
		Differential: func(e float64) float64 {
			return (1.0 / 3.0) * math.Pow(e, 2.0/3.0) / (1 - math.Pow(e, 1.0/3.0))
		},
		Integral: func(e float64) float64 { return math.Pow(1-math.Pow(e, 1.0/3.0), 1.0/2.0) },
	},
	"B1": {
		Differential: func(e float64) float64 { return 1 / ((1 - e) - e) },
		Integral:     func(e float64) float64 { return math.Log((1 - e) / e) },
	},
}

func init() {
	// Wrap every differential form with the domain clamp once, at table
	// construction, so call sites cannot forget it.
	for name, law := range rateLaws {
		raw := law.Differential
		law.Differential = func(e float64) float64 {
			return raw(ClampFraction(e))
		}
		rateLaws[name] = law
	}
}

// Model looks up a rate law by name.
func Model(name string) (RateLaw, bool) {
	law, ok := rateLaws[name]
	return law, ok
}

// ModelNames returns the sorted names of every registered rate law.
func ModelNames() []string {
	names := make([]string, 0, len(rateLaws))
	for name := range rateLaws {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
