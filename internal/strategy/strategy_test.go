package strategy

import (
	"math"
	"testing"
	"time"

	"github.com/thermokinetics/kinetics-core/internal/bus"
	"github.com/thermokinetics/kinetics-core/internal/scenario"
	"github.com/thermokinetics/kinetics-core/pkg/models"
)

// recordingHost is an in-memory strategy host capturing recorded bests and
// outgoing actor calls.
type recordingHost struct {
	best     float64
	history  []models.HistoryPoint
	calls    []recordedCall
	fileName string
}

type recordedCall struct {
	target  string
	op      bus.Operation
	payload map[string]any
}

func newRecordingHost() *recordingHost {
	return &recordingHost{best: math.Inf(1), fileName: "sample.txt"}
}

func (h *recordingHost) BestMSE() float64 {
	return h.best
}

func (h *recordingHost) RecordBest(result models.BestResult) {
	h.best = result.MSE
	h.history = append(h.history, models.HistoryPoint{Timestamp: result.Timestamp, MSE: result.MSE})
}

func (h *recordingHost) History() []models.HistoryPoint {
	return append([]models.HistoryPoint(nil), h.history...)
}

func (h *recordingHost) Call(target string, op bus.Operation, payload map[string]any) (any, bool) {
	h.calls = append(h.calls, recordedCall{target: target, op: op, payload: payload})
	if op == bus.OpGetFileName {
		return h.fileName, true
	}
	return map[string]any{"ok": true}, true
}

func (h *recordingHost) callsFor(op bus.Operation) []recordedCall {
	var out []recordedCall
	for _, c := range h.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}

func gaussResult(mse float64) models.BestResult {
	return models.BestResult{
		MSE:         mse,
		Combination: []string{"gauss"},
		Params:      []float64{5, 400, 20},
		Timestamp:   time.Now(),
	}
}

func TestForKind(t *testing.T) {
	host := newRecordingHost()
	if _, err := ForKind(scenario.KindDeconvolution, host); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ForKind(scenario.KindModelBased, host); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := ForKind(scenario.Kind("astrology"), host)
	if err == nil {
		t.Fatalf("expected an error for an unknown kind")
	}
	if _, ok := err.(*UnknownStrategyError); !ok {
		t.Fatalf("expected UnknownStrategyError, got %T", err)
	}
}

func TestDeconvolutionAcceptsOnlyImprovements(t *testing.T) {
	host := newRecordingHost()
	strat := NewDeconvolution(host)

	for _, mse := range []float64{5, 3, 4, 3, 1} {
		strat.Handle(gaussResult(mse))
	}

	want := []float64{5, 3, 1}
	if len(host.history) != len(want) {
		t.Fatalf("recorded %d bests, want %d", len(host.history), len(want))
	}
	for i, w := range want {
		if host.history[i].MSE != w {
			t.Fatalf("history[%d] = %g, want %g", i, host.history[i].MSE, w)
		}
	}
	if host.best != 1 {
		t.Fatalf("best MSE = %g, want 1", host.best)
	}
}

func TestDeconvolutionPushesConvergencePlot(t *testing.T) {
	host := newRecordingHost()
	strat := NewDeconvolution(host)

	strat.Handle(gaussResult(2))
	strat.Handle(gaussResult(1))

	plots := host.callsFor(bus.OpPlotMSELine)
	if len(plots) != 2 {
		t.Fatalf("expected 2 convergence plot pushes, got %d", len(plots))
	}
	if plots[0].target != bus.ActorMainWindow {
		t.Fatalf("plot went to %q, want %q", plots[0].target, bus.ActorMainWindow)
	}
	line, ok := plots[1].payload["mse_data"].([]models.HistoryPoint)
	if !ok {
		t.Fatalf("plot payload has no history: %v", plots[1].payload)
	}
	if len(line) != 2 || line[0].MSE != 2 || line[1].MSE != 1 {
		t.Fatalf("unexpected convergence line: %v", line)
	}
}

func TestDeconvolutionWritesParametersBack(t *testing.T) {
	host := newRecordingHost()
	strat := NewDeconvolution(host)

	strat.Handle(gaussResult(0.5))

	writes := host.callsFor(bus.OpUpdateReactionsParams)
	if len(writes) != 1 {
		t.Fatalf("expected 1 writeback, got %d", len(writes))
	}
	w := writes[0]
	if w.target != bus.ActorOperations {
		t.Fatalf("writeback went to %q, want %q", w.target, bus.ActorOperations)
	}
	keys, _ := w.payload["path_keys"].([]string)
	if len(keys) != 1 || keys[0] != "sample.txt" {
		t.Fatalf("unexpected path keys: %v", w.payload["path_keys"])
	}
	comb, _ := w.payload["best_combination"].([]string)
	if len(comb) != 1 || comb[0] != "gauss" {
		t.Fatalf("unexpected combination: %v", w.payload["best_combination"])
	}
	params, _ := w.payload["reactions_params"].([]float64)
	if len(params) != 3 || params[1] != 400 {
		t.Fatalf("unexpected parameters: %v", w.payload["reactions_params"])
	}
}

func TestDeconvolutionSkipsWritebackWithoutFileName(t *testing.T) {
	host := newRecordingHost()
	host.fileName = ""
	strat := NewDeconvolution(host)

	strat.Handle(gaussResult(0.5))

	if len(host.callsFor(bus.OpUpdateReactionsParams)) != 0 {
		t.Fatalf("writeback must be skipped when no file is active")
	}
	if host.best != 0.5 {
		t.Fatalf("the result must still be recorded, best = %g", host.best)
	}
}

func TestModelBasedAcceptsOnlyImprovements(t *testing.T) {
	host := newRecordingHost()
	strat := NewModelBased(host)

	result := models.BestResult{
		MSE:       2,
		Params:    []float64{3, 150, 1, 1},
		Timestamp: time.Now(),
	}
	strat.Handle(result)

	result.MSE = 2 // tie, dropped
	strat.Handle(result)

	result.MSE = 1
	strat.Handle(result)

	if len(host.history) != 2 {
		t.Fatalf("recorded %d bests, want 2", len(host.history))
	}
	if host.best != 1 {
		t.Fatalf("best MSE = %g, want 1", host.best)
	}
	if len(host.callsFor(bus.OpPlotMSELine)) != 2 {
		t.Fatalf("expected one plot push per accepted result")
	}
}
