package strategy

import (
	"github.com/thermokinetics/kinetics-core/internal/bus"
	"github.com/thermokinetics/kinetics-core/internal/scenario"
	"github.com/thermokinetics/kinetics-core/pkg/models"
)

// Host is the engine surface a strategy runs against. Strategies are invoked
// on the dispatch loop, so Call goes through the synchronous request
// protocol.
type Host interface {
	// BestMSE returns the lowest error accepted so far in the current run.
	BestMSE() float64

	// RecordBest accepts an improving result: it updates the best error and
	// appends to the convergence history.
	RecordBest(result models.BestResult)

	// History returns a snapshot of the convergence history.
	History() []models.HistoryPoint

	// Call issues a synchronous request to another actor.
	Call(target string, op bus.Operation, payload map[string]any) (any, bool)
}

// Strategy consumes candidate results emitted by a running scenario and
// decides what to do with improvements.
type Strategy interface {
	// Handle processes one candidate. Non-improving candidates are dropped.
	Handle(result models.BestResult)
}

// UnknownStrategyError indicates a scenario kind with no registered
// best-result strategy.
type UnknownStrategyError struct {
	Kind scenario.Kind
}

func (e *UnknownStrategyError) Error() string {
	return "no best-result strategy for scenario: " + string(e.Kind)
}

// ForKind returns the strategy matching a scenario kind.
func ForKind(kind scenario.Kind, host Host) (Strategy, error) {
	switch kind {
	case scenario.KindDeconvolution:
		return NewDeconvolution(host), nil
	case scenario.KindModelBased:
		return NewModelBased(host), nil
	default:
		return nil, &UnknownStrategyError{Kind: kind}
	}
}
