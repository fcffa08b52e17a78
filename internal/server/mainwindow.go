package server

import (
	"log/slog"
	"sync"
	"time"

	"github.com/thermokinetics/kinetics-core/internal/bus"
	"github.com/thermokinetics/kinetics-core/pkg/logger"
)

// Curve is one rendered curve kept for HTTP consumers.
type Curve struct {
	FileName  string    `json:"file_name"`
	CurveName string    `json:"curve_name"`
	X         []float64 `json:"x"`
	Y         []float64 `json:"y"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FinishedEvent records the last terminal calculation notification.
type FinishedEvent struct {
	RunID      string    `json:"run_id"`
	Status     string    `json:"status"`
	ReceivedAt time.Time `json:"received_at"`
}

// MainWindow is the presentation endpoint of the bus. Instead of rendering
// plots it retains the latest pushed state so HTTP clients can poll it:
// rendered curves, the convergence line, highlighted reaction parameters and
// the last finished run.
type MainWindow struct {
	*bus.Actor
	logger *slog.Logger

	mu         sync.Mutex
	activeFile string
	curves     map[string]Curve
	mseLine    any
	params     map[string]any
	finished   *FinishedEvent
}

// NewMainWindow creates the presentation actor and registers it on the bus.
func NewMainWindow(b *bus.Bus) (*MainWindow, error) {
	w := &MainWindow{
		Actor:  bus.NewActor(bus.ActorMainWindow, b),
		logger: logger.With("component", "main_window"),
		curves: make(map[string]Curve),
	}
	if err := w.Register(w.onRequest); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *MainWindow) onRequest(msg *bus.Message) {
	switch msg.Op {
	case bus.OpGetFileName:
		w.mu.Lock()
		name := w.activeFile
		w.mu.Unlock()
		w.Respond(msg, name)

	case bus.OpPlotReaction, bus.OpPlotDF:
		fileName, _ := msg.Payload["file_name"].(string)
		curveName, _ := msg.Payload["curve_name"].(string)
		curve := Curve{
			FileName:  fileName,
			CurveName: curveName,
			X:         toFloat64s(msg.Payload["x"]),
			Y:         toFloat64s(msg.Payload["y"]),
			UpdatedAt: time.Now(),
		}
		w.mu.Lock()
		w.curves[fileName+"/"+curveName] = curve
		w.mu.Unlock()
		w.Respond(msg, true)

	case bus.OpPlotMSELine:
		w.mu.Lock()
		w.mseLine = msg.Payload["mse_data"]
		w.mu.Unlock()
		w.Respond(msg, true)

	case bus.OpReactionParamsToGUI:
		w.mu.Lock()
		w.params = map[string]any{
			"reaction": msg.Payload["reaction"],
			"params":   msg.Payload["params"],
		}
		w.mu.Unlock()
		w.Respond(msg, true)

	case bus.OpCalculationFinished:
		runID, _ := msg.Payload["run_id"].(string)
		status, _ := msg.Payload["status"].(string)
		w.mu.Lock()
		w.finished = &FinishedEvent{RunID: runID, Status: status, ReceivedAt: time.Now()}
		w.mu.Unlock()
		w.logger.Info("calculation finished notification", "run_id", runID, "status", status)
		w.Respond(msg, true)

	default:
		w.logger.Warn("unsupported operation", "operation", msg.Op, "from", msg.Actor)
		w.Respond(msg, nil)
	}
}

// SetActiveFile sets the file name announced through get_file_name.
func (w *MainWindow) SetActiveFile(name string) {
	w.mu.Lock()
	w.activeFile = name
	w.mu.Unlock()
}

// ActiveFile returns the currently selected file name.
func (w *MainWindow) ActiveFile() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.activeFile
}

// Curves returns a snapshot of all retained curves.
func (w *MainWindow) Curves() []Curve {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Curve, 0, len(w.curves))
	for _, c := range w.curves {
		out = append(out, c)
	}
	return out
}

// MSELine returns the last pushed convergence history.
func (w *MainWindow) MSELine() any {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.mseLine
}

// ReactionParams returns the last highlighted reaction's parameters.
func (w *MainWindow) ReactionParams() map[string]any {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.params
}

// LastFinished returns the last terminal run notification, or nil.
func (w *MainWindow) LastFinished() *FinishedEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.finished
}

func toFloat64s(value any) []float64 {
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
