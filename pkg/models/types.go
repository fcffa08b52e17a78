package models

import (
	"time"
)

// RunStatus represents the lifecycle state of a calculation run
type RunStatus string

const (
	// RunStatusIdle means no calculation is in progress
	RunStatusIdle RunStatus = "idle"

	// RunStatusRunning means an optimization worker is active
	RunStatusRunning RunStatus = "running"

	// RunStatusCompleted means the optimizer reached a terminal result
	RunStatusCompleted RunStatus = "completed"

	// RunStatusStopped means the run was cancelled cooperatively
	RunStatusStopped RunStatus = "stopped"

	// RunStatusFailed means scenario setup or the optimizer errored
	RunStatusFailed RunStatus = "failed"
)

// PeakKind identifies a peak-shape function used in deconvolution
type PeakKind string

const (
	// PeakGauss is the symmetric Gaussian peak
	PeakGauss PeakKind = "gauss"

	// PeakFraser is the log-skewed Fraser-Suzuki peak
	PeakFraser PeakKind = "fraser"

	// PeakADS is the asymmetric double sigmoid peak
	PeakADS PeakKind = "ads"
)

// Valid reports whether the kind is one of the three supported shapes.
func (k PeakKind) Valid() bool {
	switch k {
	case PeakGauss, PeakFraser, PeakADS:
		return true
	}
	return false
}

// ParamCount returns the number of free parameters the shape contributes to
// a packed parameter vector: h,z,w plus fr for fraser or ads1,ads2 for ads.
func (k PeakKind) ParamCount() int {
	switch k {
	case PeakFraser:
		return 4
	case PeakADS:
		return 5
	default:
		return 3
	}
}

// Bound is one inclusive [Low, High] pair of a parameter vector. Order across
// a bounds slice is significant and must match the target function's layout.
type Bound struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// ExperimentColumn is one measured series of an experiment file, labelled by
// its heating rate in K/min.
type ExperimentColumn struct {
	Label  string    `json:"label"`
	Rate   float64   `json:"rate"`
	Values []float64 `json:"values"`
}

// ExperimentSeries is the tabular content of one loaded experiment file:
// a shared temperature grid (°C) plus one column per heating rate.
type ExperimentSeries struct {
	Name         string             `json:"name"`
	Temperature  []float64          `json:"temperature"`
	Columns      []ExperimentColumn `json:"columns"`
	Differential bool               `json:"differential"`
}

// Component is a named species node of a reaction scheme.
type Component struct {
	ID string `json:"id"`
}

// SchemeReaction is one first-order transition edge of a reaction scheme,
// with per-parameter bound envelopes for the optimizer.
type SchemeReaction struct {
	From         string  `json:"from"`
	To           string  `json:"to"`
	ReactionType string  `json:"reaction_type"`
	LogAMin      float64 `json:"log_A_min"`
	LogAMax      float64 `json:"log_A_max"`
	EaMin        float64 `json:"Ea_min"`
	EaMax        float64 `json:"Ea_max"`
	OrderMin     float64 `json:"order_min"`
	OrderMax     float64 `json:"order_max"`
	ContribMin   float64 `json:"contribution_min"`
	ContribMax   float64 `json:"contribution_max"`
}

// ReactionScheme is a directed graph of species and transitions. The compiler
// reads whatever edges exist; cycle checking belongs to the editing layer.
type ReactionScheme struct {
	Components []Component      `json:"components"`
	Reactions  []SchemeReaction `json:"reactions"`
}

// BestResult is the lowest-error candidate observed so far in a run.
type BestResult struct {
	MSE         float64   `json:"mse"`
	Combination []string  `json:"combination,omitempty"`
	Params      []float64 `json:"params"`
	Timestamp   time.Time `json:"timestamp"`
}

// HistoryPoint is one entry of the append-only convergence history.
type HistoryPoint struct {
	Timestamp time.Time `json:"timestamp"`
	MSE       float64   `json:"mse"`
}
