package strategy

import (
	"log/slog"

	"github.com/thermokinetics/kinetics-core/internal/bus"
	"github.com/thermokinetics/kinetics-core/pkg/logger"
	"github.com/thermokinetics/kinetics-core/pkg/models"
	"github.com/thermokinetics/kinetics-core/pkg/utils"
)

// ModelBased handles improving reaction-network candidates. The parameter
// vector is the packed [logA..., Ea..., order..., contribution...] layout
// produced by the model-based scenario.
type ModelBased struct {
	host   Host
	logger *slog.Logger
}

// NewModelBased builds the reaction-network best-result strategy.
func NewModelBased(host Host) *ModelBased {
	return &ModelBased{
		host:   host,
		logger: logger.With("strategy", "model_based"),
	}
}

// Handle processes one candidate result. Only strictly improving candidates
// are accepted.
func (s *ModelBased) Handle(result models.BestResult) {
	if result.MSE >= s.host.BestMSE() {
		return
	}
	s.host.RecordBest(result)

	s.host.Call(bus.ActorMainWindow, bus.OpPlotMSELine, map[string]any{
		"mse_data": s.host.History(),
	})

	if len(result.Params)%4 != 0 {
		s.logger.Error("parameter vector is not a packed kinetic layout",
			"length", len(result.Params))
		return
	}
	n := len(result.Params) / 4
	reactions := make([]map[string]float64, n)
	for i := 0; i < n; i++ {
		reactions[i] = map[string]float64{
			"log_A":        utils.Round(result.Params[i], 4),
			"Ea":           utils.Round(result.Params[n+i], 4),
			"order":        utils.Round(result.Params[2*n+i], 4),
			"contribution": utils.Round(result.Params[3*n+i], 4),
		}
	}
	s.logger.Info("new best result",
		"mse", result.MSE,
		"reactions", reactions)
}
