package strategy

import (
	"log/slog"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/thermokinetics/kinetics-core/internal/bus"
	"github.com/thermokinetics/kinetics-core/internal/kinetics"
	"github.com/thermokinetics/kinetics-core/pkg/logger"
	"github.com/thermokinetics/kinetics-core/pkg/models"
	"github.com/thermokinetics/kinetics-core/pkg/utils"
)

// Deconvolution handles improving peak-fit candidates: it records the new
// best, pushes the convergence history to the presentation actor, logs the
// decoded coefficients and writes them back into the reaction store.
type Deconvolution struct {
	host   Host
	logger *slog.Logger
}

// NewDeconvolution builds the peak-fitting best-result strategy.
func NewDeconvolution(host Host) *Deconvolution {
	return &Deconvolution{
		host:   host,
		logger: logger.With("strategy", "deconvolution"),
	}
}

// peakParams is the human-readable rendering of one fitted peak, rounded for
// log output.
type peakParams struct {
	Function string   `yaml:"function"`
	H        float64  `yaml:"h"`
	Z        float64  `yaml:"z"`
	W        float64  `yaml:"w"`
	FR       *float64 `yaml:"fr,omitempty"`
	ADS1     *float64 `yaml:"ads1,omitempty"`
	ADS2     *float64 `yaml:"ads2,omitempty"`
}

// Handle processes one candidate result. Only strictly improving candidates
// are accepted; ties and regressions are dropped.
func (s *Deconvolution) Handle(result models.BestResult) {
	if result.MSE >= s.host.BestMSE() {
		return
	}
	s.host.RecordBest(result)

	s.host.Call(bus.ActorMainWindow, bus.OpPlotMSELine, map[string]any{
		"mse_data": s.host.History(),
	})

	s.logParameters(result)

	fileName, ok := s.host.Call(bus.ActorMainWindow, bus.OpGetFileName, nil)
	name, isString := fileName.(string)
	if !ok || !isString || name == "" {
		s.logger.Error("could not resolve the active file name, parameters not written back")
		return
	}

	s.host.Call(bus.ActorOperations, bus.OpUpdateReactionsParams, map[string]any{
		"path_keys":        []string{name},
		"best_combination": result.Combination,
		"reactions_params": result.Params,
	})
}

// logParameters emits the decoded coefficient block so a run's progress can
// be followed from the log alone.
func (s *Deconvolution) logParameters(result models.BestResult) {
	kinds := make([]models.PeakKind, len(result.Combination))
	for i, name := range result.Combination {
		kinds[i] = models.PeakKind(name)
	}
	coeffs, err := kinetics.DecodeParams(kinds, result.Params)
	if err != nil {
		s.logger.Error("failed to decode best parameters", "error", err)
		return
	}

	block := make([]map[string]peakParams, len(coeffs))
	for i, c := range coeffs {
		p := peakParams{
			Function: string(kinds[i]),
			H:        utils.Round(c.H, 4),
			Z:        utils.Round(c.Z, 4),
			W:        utils.Round(c.W, 4),
		}
		switch kinds[i] {
		case models.PeakFraser:
			fr := utils.Round(c.FR, 4)
			p.FR = &fr
		case models.PeakADS:
			ads1 := utils.Round(c.ADS1, 4)
			ads2 := utils.Round(c.ADS2, 4)
			p.ADS1 = &ads1
			p.ADS2 = &ads2
		}
		block[i] = map[string]peakParams{reactionKey(i): p}
	}

	rendered, err := yaml.Marshal(map[string]any{"parameters": block})
	if err != nil {
		s.logger.Error("failed to render best parameters", "error", err)
		return
	}
	s.logger.Info("new best result",
		"mse", result.MSE,
		"combination", result.Combination,
		"parameters", string(rendered))
}

func reactionKey(i int) string {
	return "r" + strconv.Itoa(i)
}
