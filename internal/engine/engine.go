package engine

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/thermokinetics/kinetics-core/internal/bus"
	"github.com/thermokinetics/kinetics-core/internal/scenario"
	"github.com/thermokinetics/kinetics-core/internal/strategy"
	"github.com/thermokinetics/kinetics-core/pkg/config"
	"github.com/thermokinetics/kinetics-core/pkg/logger"
	"github.com/thermokinetics/kinetics-core/pkg/models"
	"github.com/thermokinetics/kinetics-core/pkg/utils"
)

// UnknownMethodError indicates a scenario requesting an optimization method
// the engine does not implement.
type UnknownMethodError struct {
	Method string
}

func (e *UnknownMethodError) Error() string {
	return "unknown optimization method: " + e.Method
}

// FinishNotifier receives terminal run states. The HTTP layer plugs a
// webhook notifier in here; a nil notifier disables the hook.
type FinishNotifier interface {
	NotifyFinished(runID string, status models.RunStatus, result *DEResult)
}

// Snapshot is a point-in-time view of the engine for status reporting.
type Snapshot struct {
	Status     models.RunStatus      `json:"status"`
	RunID      string                `json:"run_id,omitempty"`
	BestMSE    float64               `json:"best_mse"`
	History    []models.HistoryPoint `json:"history,omitempty"`
	LastResult *DEResult             `json:"last_result,omitempty"`
}

// Engine is the calculations actor. It owns at most one optimization run at
// a time: scenario setup and result handling happen on the dispatch loop,
// the optimizer itself runs on a worker goroutine and communicates back
// exclusively through posted bus messages.
type Engine struct {
	*bus.Actor
	cfg      *config.Config
	notifier FinishNotifier
	logger   *slog.Logger

	active atomic.Bool

	mu            sync.Mutex
	optimizer     *DifferentialEvolution
	strat         strategy.Strategy
	bestMSE       float64
	history       []models.HistoryPoint
	status        models.RunStatus
	runID         string
	stopRequested bool
	lastResult    *DEResult
}

// New creates the engine and registers it on the bus.
func New(b *bus.Bus, cfg *config.Config) (*Engine, error) {
	e := &Engine{
		Actor:   bus.NewActor(bus.ActorCalculations, b),
		cfg:     cfg,
		logger:  logger.With("component", "engine"),
		bestMSE: math.Inf(1),
		status:  models.RunStatusIdle,
	}
	if err := e.Register(e.onRequest); err != nil {
		return nil, err
	}
	return e, nil
}

// SetNotifier installs the terminal-state hook. Call before the first run.
func (e *Engine) SetNotifier(n FinishNotifier) {
	e.notifier = n
}

func (e *Engine) onRequest(msg *bus.Message) {
	switch msg.Op {
	case bus.OpDeconvolution, bus.OpModelBasedCalculation:
		req, ok := msg.Payload["scenario_request"].(*scenario.Request)
		if !ok {
			e.Respond(msg, map[string]any{"ok": false, "error": "missing scenario request"})
			return
		}
		runID, err := e.start(req)
		if err != nil {
			e.logger.Error("failed to start calculation", "operation", msg.Op, "error", err)
			e.Respond(msg, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		e.Respond(msg, map[string]any{"ok": true, "run_id": runID})

	case bus.OpStopCalculation:
		e.Respond(msg, e.stopRun())

	case bus.OpNewBestResult:
		e.handleBestResult(msg)

	case bus.OpCalculationFinished:
		e.finish(msg)

	default:
		e.logger.Warn("unsupported operation", "operation", msg.Op, "from", msg.Actor)
		e.Respond(msg, nil)
	}
}

// start validates the request, builds the scenario, optimizer and strategy,
// and launches the worker. Requests are dispatched inline on the caller's
// goroutine, so the single-run slot is claimed atomically up front; a failed
// setup releases it again.
func (e *Engine) start(req *scenario.Request) (string, error) {
	if !e.active.CompareAndSwap(false, true) {
		return "", fmt.Errorf("a calculation is already running")
	}
	launched := false
	defer func() {
		if !launched {
			e.active.Store(false)
		}
	}()

	sc, err := scenario.New(req, e)
	if err != nil {
		return "", err
	}
	if sc.Method() != scenario.MethodDifferentialEvolution {
		return "", &UnknownMethodError{Method: sc.Method()}
	}

	bounds, err := sc.Bounds()
	if err != nil {
		return "", fmt.Errorf("scenario bounds: %w", err)
	}
	target, err := sc.TargetFunction()
	if err != nil {
		return "", fmt.Errorf("scenario target: %w", err)
	}
	strat, err := strategy.ForKind(sc.StrategyKind(), e)
	if err != nil {
		return "", err
	}

	profile := e.cfg.Deconvolution
	if sc.StrategyKind() == scenario.KindModelBased {
		profile = e.cfg.ModelBased
	}
	de, err := NewDifferentialEvolution(profile, bounds, target)
	if err != nil {
		return "", fmt.Errorf("optimizer setup: %w", err)
	}
	de.WithBestCallback(func(x []float64, fun float64) {
		e.logger.Debug("optimizer improved", "fun", fun, "dimensions", len(x))
	})

	runID := utils.GenerateRunID()

	e.mu.Lock()
	e.optimizer = de
	e.strat = strat
	e.bestMSE = math.Inf(1)
	e.history = nil
	e.status = models.RunStatusRunning
	e.runID = runID
	e.stopRequested = false
	e.mu.Unlock()
	launched = true

	e.logger.Info("calculation started",
		"run_id", runID,
		"scenario", sc.StrategyKind(),
		"dimensions", len(bounds),
		"maxiter", profile.MaxIterations)

	go e.worker(de)
	return runID, nil
}

// worker drives the optimizer off the dispatch loop and posts the terminal
// result back to it.
func (e *Engine) worker(de *DifferentialEvolution) {
	result := de.Run()
	e.Bus().PostRequest(&bus.Message{
		Actor:   e.Name(),
		Target:  e.Name(),
		Op:      bus.OpCalculationFinished,
		Payload: map[string]any{"result": result},
	})
}

// stopRun requests a cooperative stop. It returns whether a run was actually
// live, so callers can tell a stop from a no-op.
func (e *Engine) stopRun() bool {
	if !e.active.Load() {
		e.logger.Info("stop requested with no active calculation")
		return false
	}
	e.mu.Lock()
	e.stopRequested = true
	de := e.optimizer
	e.mu.Unlock()
	// Flip active first so in-flight target evaluations bail out early.
	e.active.Store(false)
	if de != nil {
		de.Stop()
	}
	e.logger.Info("stop requested", "run_id", e.currentRunID())
	return true
}

func (e *Engine) handleBestResult(msg *bus.Message) {
	result, ok := msg.Payload["result"].(models.BestResult)
	if !ok {
		e.logger.Error("best result message without a result payload", "from", msg.Actor)
		return
	}
	e.mu.Lock()
	strat := e.strat
	e.mu.Unlock()
	if strat == nil {
		e.logger.Warn("best result with no active strategy", "mse", result.MSE)
		return
	}
	strat.Handle(result)
}

// finish handles the worker's terminal message on the dispatch loop: it
// notifies the presentation actor, fires the webhook hook and resets the run
// state so the next calculation starts clean.
func (e *Engine) finish(msg *bus.Message) {
	result, _ := msg.Payload["result"].(*DEResult)

	e.mu.Lock()
	status := models.RunStatusCompleted
	if e.stopRequested {
		status = models.RunStatusStopped
	} else if result == nil || (len(result.X) == 0 && math.IsInf(result.Fun, 1)) {
		status = models.RunStatusFailed
	}
	runID := e.runID
	e.status = status
	e.lastResult = result
	e.bestMSE = math.Inf(1)
	e.history = nil
	e.optimizer = nil
	e.strat = nil
	e.mu.Unlock()
	e.active.Store(false)

	if result != nil {
		e.logger.Info("calculation finished",
			"run_id", runID,
			"status", status,
			"fun", result.Fun,
			"iterations", result.Iterations,
			"evaluations", result.Evaluations,
			"message", result.Message)
	}

	e.Call(bus.ActorMainWindow, bus.OpCalculationFinished, map[string]any{
		"run_id": runID,
		"status": string(status),
	})
	if e.notifier != nil {
		e.notifier.NotifyFinished(runID, status, result)
	}
}

// Active implements the scenario host: target functions poll it between
// evaluations.
func (e *Engine) Active() bool {
	return e.active.Load()
}

// EmitBestResult implements the scenario host. It is called from the worker
// goroutine and hands the candidate to the dispatch loop.
func (e *Engine) EmitBestResult(result models.BestResult) {
	e.Bus().PostRequest(&bus.Message{
		Actor:   e.Name(),
		Target:  e.Name(),
		Op:      bus.OpNewBestResult,
		Payload: map[string]any{"result": result},
	})
}

// BestMSE implements the strategy host.
func (e *Engine) BestMSE() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bestMSE
}

// RecordBest implements the strategy host: it accepts an improving result
// and appends it to the convergence history.
func (e *Engine) RecordBest(result models.BestResult) {
	ts := result.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	e.mu.Lock()
	e.bestMSE = result.MSE
	e.history = append(e.history, models.HistoryPoint{Timestamp: ts, MSE: result.MSE})
	e.mu.Unlock()
}

// History implements the strategy host.
func (e *Engine) History() []models.HistoryPoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.HistoryPoint(nil), e.history...)
}

// Status returns a snapshot for the HTTP status endpoint.
func (e *Engine) Status() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		Status:     e.status,
		RunID:      e.runID,
		BestMSE:    e.bestMSE,
		History:    append([]models.HistoryPoint(nil), e.history...),
		LastResult: e.lastResult,
	}
}

func (e *Engine) currentRunID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runID
}
