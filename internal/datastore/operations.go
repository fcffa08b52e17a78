package datastore

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/thermokinetics/kinetics-core/internal/bus"
	"github.com/thermokinetics/kinetics-core/internal/kinetics"
	"github.com/thermokinetics/kinetics-core/internal/scenario"
	"github.com/thermokinetics/kinetics-core/pkg/logger"
	"github.com/thermokinetics/kinetics-core/pkg/models"
	"github.com/thermokinetics/kinetics-core/pkg/utils"
)

// plotThrottle bounds how often interactive coefficient edits re-render
// reaction curves.
const plotThrottle = 100 * time.Millisecond

// deconvolutionLayout remembers how the last deconvolution request packed
// its parameter vector, so optimizer output can be written back to the same
// coefficients.
type deconvolutionLayout struct {
	reactions []string
	vars      map[string][]string
}

// Operations is the calculation data operations actor. It owns the reaction
// artifact lifecycle: creating and removing reactions, editing coefficients,
// assembling deconvolution and model-based calculation requests, and writing
// optimizer results back into the store.
type Operations struct {
	*bus.Actor
	logger *slog.Logger

	mu       sync.Mutex
	layout   deconvolutionLayout
	lastPlot time.Time
}

// NewOperations creates the actor and registers it on the bus.
func NewOperations(b *bus.Bus) (*Operations, error) {
	o := &Operations{
		Actor:  bus.NewActor(bus.ActorOperations, b),
		logger: logger.With("component", "data_operations"),
	}
	if err := o.Register(o.onRequest); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *Operations) onRequest(msg *bus.Message) {
	keys := PathKeys(msg.Payload["path_keys"])

	switch msg.Op {
	case bus.OpAddReaction:
		o.Respond(msg, o.addReaction(keys))

	case bus.OpRemoveReaction:
		o.Respond(msg, o.removeReaction(keys))

	case bus.OpHighlightReaction:
		o.highlightReaction(keys)
		o.Respond(msg, true)

	case bus.OpUpdateValue:
		ok := o.updateValue(keys, msg.Payload)
		if ok {
			o.throttledRefresh(keys)
		}
		o.Respond(msg, ok)

	case bus.OpUpdateReactionsParams:
		o.updateReactionsParams(keys, msg.Payload)
		o.Respond(msg, true)

	case bus.OpDeconvolution:
		answer, err := o.startDeconvolution(keys, msg.Payload)
		if err != nil {
			o.logger.Error("deconvolution request failed", "error", err)
			o.Respond(msg, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		o.Respond(msg, answer)

	case bus.OpModelBasedCalculation:
		answer, err := o.startModelBased(msg.Payload)
		if err != nil {
			o.logger.Error("model-based request failed", "error", err)
			o.Respond(msg, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		o.Respond(msg, answer)

	case bus.OpImportReactions:
		o.Respond(msg, o.importReactions(keys, msg.Payload))

	case bus.OpExportReactions:
		value, _ := o.Call(bus.ActorStore, bus.OpGetValue, map[string]any{"path_keys": keys})
		o.Respond(msg, value)

	default:
		o.logger.Warn("unsupported operation", "operation", msg.Op, "from", msg.Actor)
		o.Respond(msg, nil)
	}
}

// addReaction derives a default peak envelope from the file's experimental
// data, stores it and plots the initial curves. It refuses files whose
// differential data is not available.
func (o *Operations) addReaction(keys []string) bool {
	if len(keys) != 2 {
		o.logger.Error("add_reaction needs [file, reaction] path keys", "path_keys", keys)
		return false
	}
	fileName, reactionName := keys[0], keys[1]

	checked, _ := o.Call(bus.ActorFileData, bus.OpCheckDifferential, map[string]any{"file_name": fileName})
	if ok, _ := checked.(bool); !ok {
		o.logger.Error("differential data check failed, reaction not added", "file", fileName)
		return false
	}

	series := o.fetchSeries(fileName)
	if series == nil {
		return false
	}
	y := series.Columns[0].Values

	defaults, err := kinetics.DefaultPeakBounds(series.Temperature, y)
	if err != nil {
		o.logger.Error("could not derive default peak bounds", "file", fileName, "error", err)
		return false
	}
	artifact := defaultReactionData(defaults)

	existed, _ := o.Call(bus.ActorStore, bus.OpSetValue, map[string]any{
		"path_keys": []string{fileName, reactionName},
		"value":     artifact,
	})
	if e, _ := existed.(bool); e {
		o.logger.Warn("reaction already existed, artifact overwritten",
			"file", fileName, "reaction", reactionName)
	}

	for _, bound := range []string{"lower_bound_coeffs", "coeffs", "upper_bound_coeffs"} {
		o.plotCurve(fileName, reactionName, bound, artifact)
	}
	o.logger.Info("reaction added", "file", fileName, "reaction", reactionName)
	return true
}

func (o *Operations) removeReaction(keys []string) bool {
	if len(keys) < 2 {
		o.logger.Error("remove_reaction needs [file, reaction] path keys", "path_keys", keys)
		return false
	}
	existed, _ := o.Call(bus.ActorStore, bus.OpRemoveValue, map[string]any{"path_keys": keys})
	ok, _ := existed.(bool)
	if !ok {
		o.logger.Warn("reaction not found for removal", "path_keys", keys)
	}
	return ok
}

// highlightReaction re-renders every reaction of a file: bound envelopes for
// the highlighted reaction, center curves for the rest, plus the cumulative
// sum per bound. The highlighted reaction's artifact is also pushed to the
// presentation actor.
func (o *Operations) highlightReaction(keys []string) {
	if len(keys) == 0 {
		return
	}
	fileName := keys[0]
	data, _ := o.Call(bus.ActorStore, bus.OpGetValue, map[string]any{"path_keys": []string{fileName}})
	reactions := asMap(data)
	if len(reactions) == 0 {
		o.logger.Warn("no reactions to highlight", "file", fileName)
		return
	}

	highlighted := make(map[string]bool)
	for _, key := range keys[1:] {
		highlighted[key] = true
	}

	var grid []float64
	cumulative := map[string][]float64{
		"lower_bound_coeffs": nil,
		"coeffs":             nil,
		"upper_bound_coeffs": nil,
	}

	for _, name := range sortReactionNames(reactions) {
		artifact := asMap(reactions[name])
		if artifact == nil {
			continue
		}
		for bound := range cumulative {
			x, y, err := reactionCurve(artifact, bound)
			if err != nil {
				o.logger.Warn("could not render reaction curve",
					"file", fileName, "reaction", name, "bound", bound, "error", err)
				continue
			}
			if grid == nil {
				grid = x
			}
			if cumulative[bound] == nil {
				cumulative[bound] = make([]float64, len(y))
			}
			for i, v := range y {
				cumulative[bound][i] += v
			}
		}

		if highlighted[name] {
			o.Call(bus.ActorMainWindow, bus.OpReactionParamsToGUI, map[string]any{
				"reaction": name,
				"params":   artifact,
			})
			o.plotCurve(fileName, name, "upper_bound_coeffs", artifact)
			o.plotCurve(fileName, name, "lower_bound_coeffs", artifact)
		} else {
			o.plotCurve(fileName, name, "coeffs", artifact)
		}
	}

	if grid == nil {
		return
	}
	for bound, y := range cumulative {
		if y == nil {
			continue
		}
		o.Call(bus.ActorMainWindow, bus.OpPlotReaction, map[string]any{
			"file_name":  fileName,
			"curve_name": "cumulative_" + bound,
			"x":          grid,
			"y":          y,
		})
	}
}

// updateValue writes one value into the store. Non-chained bound edits also
// recenter the middle coefficient between the two bounds.
func (o *Operations) updateValue(keys []string, payload map[string]any) bool {
	if len(keys) == 0 {
		return false
	}
	value := payload["value"]
	isChain, _ := payload["is_chain"].(bool)

	existed, _ := o.Call(bus.ActorStore, bus.OpSetValue, map[string]any{
		"path_keys": keys,
		"value":     value,
	})
	ok, _ := existed.(bool)
	if !ok {
		o.logger.Error("no data found for update", "path_keys", keys)
		return false
	}
	if !isChain {
		if v, isFloat := value.(float64); isFloat {
			o.recenterCoeff(keys, v)
		}
	}
	return true
}

// recenterCoeff keeps the center coefficient consistent after a bound edit:
// it becomes the average of the two bounds.
func (o *Operations) recenterCoeff(keys []string, newValue float64) {
	boundKeys := []string{"upper_bound_coeffs", "lower_bound_coeffs"}
	for i, bound := range boundKeys {
		idx := indexOf(keys, bound)
		if idx < 0 {
			continue
		}
		opposite := append([]string(nil), keys...)
		opposite[idx] = boundKeys[1-i]
		value, _ := o.Call(bus.ActorStore, bus.OpGetValue, map[string]any{"path_keys": opposite})
		oppositeValue, isFloat := value.(float64)
		if !isFloat {
			o.logger.Warn("opposite bound not found, center coefficient not updated", "path_keys", opposite)
			return
		}
		center := append([]string(nil), keys...)
		center[idx] = "coeffs"
		o.Call(bus.ActorStore, bus.OpSetValue, map[string]any{
			"path_keys": center,
			"value":     (newValue + oppositeValue) / 2,
		})
		return
	}
}

// updateReactionsParams writes an optimizer's best parameter vector back
// into all three coefficient blocks of every reaction, using the layout
// remembered from the originating deconvolution request.
func (o *Operations) updateReactionsParams(keys []string, payload map[string]any) {
	if len(keys) == 0 {
		o.logger.Error("update_reactions_params needs a file path key")
		return
	}
	fileName := keys[0]
	combination := toStrings(payload["best_combination"])
	params := floats(payload["reactions_params"])
	if combination == nil || params == nil {
		o.logger.Error("missing best_combination or reactions_params for update")
		return
	}

	o.mu.Lock()
	layout := o.layout
	o.mu.Unlock()
	if len(layout.reactions) == 0 {
		o.logger.Error("no deconvolution layout remembered, parameters not written back")
		return
	}
	if len(combination) != len(layout.reactions) {
		o.logger.Error("combination width does not match remembered layout",
			"combination", len(combination), "reactions", len(layout.reactions))
		return
	}

	start := 0
	for i, reaction := range layout.reactions {
		vars := layout.vars[reaction]
		if start >= len(params) {
			o.logger.Error("parameter vector shorter than remembered layout", "length", len(params))
			break
		}
		segment := params[start:utils.Min(start+len(vars), len(params))]
		start += len(vars)

		kind := models.PeakKind(combination[i])
		allowed := allowedVars(kind)
		for j, name := range vars {
			if j >= len(segment) || !contains(allowed, name) {
				continue
			}
			for _, bound := range []string{"lower_bound_coeffs", "coeffs", "upper_bound_coeffs"} {
				o.Call(bus.ActorStore, bus.OpSetValue, map[string]any{
					"path_keys": []string{fileName, reaction, bound, name},
					"value":     segment[j],
				})
			}
		}
	}
	o.logger.Info("reaction parameters updated from best result", "file", fileName)
}

// startDeconvolution assembles the full scenario request for a file: packed
// bounds, per-reaction layout, the shape combination cross product and the
// experimental series, then hands it to the engine.
func (o *Operations) startDeconvolution(keys []string, payload map[string]any) (any, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("deconvolution needs a file path key")
	}
	fileName := keys[0]

	chosen, err := chosenFunctions(payload["chosen_functions"])
	if err != nil {
		return nil, err
	}

	data, _ := o.Call(bus.ActorStore, bus.OpGetValue, map[string]any{"path_keys": []string{fileName}})
	reactions := asMap(data)
	if len(reactions) == 0 {
		return nil, fmt.Errorf("no reactions found for file %q", fileName)
	}

	names := make(map[string]any, len(chosen))
	for name := range chosen {
		names[name] = nil
	}
	ordered := sortReactionNames(names)

	var bounds []models.Bound
	var paramCounts []int
	kindLists := make([][]models.PeakKind, 0, len(ordered))
	layout := deconvolutionLayout{vars: make(map[string][]string)}

	for _, name := range ordered {
		artifact := asMap(reactions[name])
		if artifact == nil {
			return nil, fmt.Errorf("no reaction params found for %q", name)
		}
		kinds := chosen[name]

		used := make(map[string]bool)
		for _, kind := range kinds {
			for _, v := range allowedVars(kind) {
				used[v] = true
			}
		}
		vars := make([]string, 0, len(used))
		for _, v := range orderedVars {
			if used[v] {
				vars = append(vars, v)
			}
		}

		lower := asMap(artifact["lower_bound_coeffs"])
		upper := asMap(artifact["upper_bound_coeffs"])
		for _, v := range vars {
			lo, okLo := coeffValue(lower, v)
			hi, okHi := coeffValue(upper, v)
			if !okLo || !okHi {
				return nil, fmt.Errorf("reaction %q is missing bound for %q", name, v)
			}
			bounds = append(bounds, models.Bound{Low: lo, High: hi})
		}

		paramCounts = append(paramCounts, len(vars))
		kindLists = append(kindLists, kinds)
		layout.reactions = append(layout.reactions, name)
		layout.vars[name] = vars
	}

	series := o.fetchSeries(fileName)
	if series == nil {
		return nil, fmt.Errorf("no experimental data for file %q", fileName)
	}

	o.mu.Lock()
	o.layout = layout
	o.mu.Unlock()

	req := &scenario.Request{
		Kind:         scenario.KindDeconvolution,
		Method:       scenario.MethodDifferentialEvolution,
		FileName:     fileName,
		Bounds:       bounds,
		ParamCounts:  paramCounts,
		Combinations: crossProduct(kindLists),
		X:            series.Temperature,
		Y:            series.Columns[0].Values,
	}
	o.logger.Info("deconvolution prepared",
		"file", fileName,
		"reactions", len(ordered),
		"dimensions", len(bounds),
		"combinations", len(req.Combinations))

	answer, ok := o.Call(bus.ActorCalculations, bus.OpDeconvolution, map[string]any{"scenario_request": req})
	if !ok {
		return nil, fmt.Errorf("engine did not answer the deconvolution request")
	}
	return answer, nil
}

// startModelBased builds the reaction-network scenario request and hands it
// to the engine.
func (o *Operations) startModelBased(payload map[string]any) (any, error) {
	seriesName, _ := payload["series_name"].(string)
	if seriesName == "" {
		return nil, fmt.Errorf("model-based calculation needs a series name")
	}
	scheme, _ := payload["scheme"].(*models.ReactionScheme)
	if scheme == nil {
		return nil, fmt.Errorf("model-based calculation needs a reaction scheme")
	}

	series := o.fetchSeries(seriesName)
	if series == nil {
		return nil, fmt.Errorf("no experimental data for series %q", seriesName)
	}

	req := &scenario.Request{
		Kind:       scenario.KindModelBased,
		Method:     scenario.MethodDifferentialEvolution,
		SeriesName: seriesName,
		Scheme:     scheme,
		Series:     series,
	}
	answer, ok := o.Call(bus.ActorCalculations, bus.OpModelBasedCalculation, map[string]any{"scenario_request": req})
	if !ok {
		return nil, fmt.Errorf("engine did not answer the model-based request")
	}
	return answer, nil
}

// importReactions stores an externally supplied reaction tree under a path.
func (o *Operations) importReactions(keys []string, payload map[string]any) bool {
	data := asMap(payload["data"])
	if len(keys) == 0 || data == nil {
		o.logger.Error("import needs a path and a reaction map")
		return false
	}
	o.Call(bus.ActorStore, bus.OpSetValue, map[string]any{"path_keys": keys, "value": data})
	o.logger.Info("reactions imported", "path_keys", keys, "reactions", len(data))
	return true
}

func (o *Operations) plotCurve(fileName, reactionName, bound string, artifact map[string]any) {
	x, y, err := reactionCurve(artifact, bound)
	if err != nil {
		o.logger.Warn("skipped curve plot",
			"file", fileName, "reaction", reactionName, "bound", bound, "error", err)
		return
	}
	o.Call(bus.ActorMainWindow, bus.OpPlotReaction, map[string]any{
		"file_name":  fileName,
		"curve_name": reactionName + "_" + bound,
		"x":          x,
		"y":          y,
	})
}

// throttledRefresh re-renders curves after an interactive edit, at most once
// per throttle window.
func (o *Operations) throttledRefresh(keys []string) {
	o.mu.Lock()
	now := time.Now()
	if now.Sub(o.lastPlot) < plotThrottle {
		o.mu.Unlock()
		return
	}
	o.lastPlot = now
	o.mu.Unlock()
	o.highlightReaction(keys)
}

func (o *Operations) fetchSeries(fileName string) *models.ExperimentSeries {
	data, _ := o.Call(bus.ActorFileData, bus.OpGetDFData, map[string]any{"file_name": fileName})
	series, _ := data.(*models.ExperimentSeries)
	if series == nil || len(series.Temperature) == 0 || len(series.Columns) == 0 {
		o.logger.Error("experimental series unavailable or empty", "file", fileName)
		return nil
	}
	return series
}

// chosenFunctions coerces the per-reaction shape selection from either typed
// or JSON-decoded payloads.
func chosenFunctions(value any) (map[string][]models.PeakKind, error) {
	out := make(map[string][]models.PeakKind)
	switch v := value.(type) {
	case map[string][]models.PeakKind:
		out = v
	case map[string][]string:
		for name, kinds := range v {
			for _, k := range kinds {
				out[name] = append(out[name], models.PeakKind(k))
			}
		}
	case map[string]any:
		for name, raw := range v {
			for _, k := range toStrings(raw) {
				out[name] = append(out[name], models.PeakKind(k))
			}
		}
	default:
		return nil, fmt.Errorf("chosen_functions is missing or malformed")
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("chosen_functions is empty")
	}
	for name, kinds := range out {
		if len(kinds) == 0 {
			return nil, fmt.Errorf("reaction %q has no chosen functions", name)
		}
		for _, k := range kinds {
			if !k.Valid() {
				return nil, fmt.Errorf("reaction %q has unknown function %q", name, k)
			}
		}
	}
	return out, nil
}

// crossProduct expands per-reaction shape lists into every combination, in
// reaction order.
func crossProduct(lists [][]models.PeakKind) [][]models.PeakKind {
	combinations := [][]models.PeakKind{{}}
	for _, list := range lists {
		next := make([][]models.PeakKind, 0, len(combinations)*len(list))
		for _, prefix := range combinations {
			for _, kind := range list {
				combination := make([]models.PeakKind, len(prefix)+1)
				copy(combination, prefix)
				combination[len(prefix)] = kind
				next = append(next, combination)
			}
		}
		combinations = next
	}
	return combinations
}

// sortReactionNames orders reaction keys numerically by their index suffix
// (reaction_2 before reaction_10), falling back to lexicographic order.
func sortReactionNames(reactions map[string]any) []string {
	names := make([]string, 0, len(reactions))
	for name := range reactions {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, okA := nameIndex(names[i])
		b, okB := nameIndex(names[j])
		if okA && okB && a != b {
			return a < b
		}
		return names[i] < names[j]
	})
	return names
}

func nameIndex(name string) (int, bool) {
	idx := strings.LastIndex(name, "_")
	if idx < 0 || idx == len(name)-1 {
		return 0, false
	}
	n, err := strconv.Atoi(name[idx+1:])
	if err != nil {
		return 0, false
	}
	return n, true
}

func indexOf(keys []string, key string) int {
	for i, k := range keys {
		if k == key {
			return i
		}
	}
	return -1
}

func contains(list []string, key string) bool {
	return indexOf(list, key) >= 0
}

func toStrings(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

