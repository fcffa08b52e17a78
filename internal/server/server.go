package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/thermokinetics/kinetics-core/internal/bus"
	"github.com/thermokinetics/kinetics-core/internal/engine"
	"github.com/thermokinetics/kinetics-core/pkg/logger"
	"github.com/thermokinetics/kinetics-core/pkg/models"
)

// Server is the HTTP surface of the calculation system. Handlers translate
// requests into bus operations through the presentation actor; nothing here
// touches the stores or the engine directly except for status snapshots.
type Server struct {
	echo   *echo.Echo
	window *MainWindow
	engine *engine.Engine
}

// New builds the echo application and its routes.
func New(window *MainWindow, eng *engine.Engine) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(log.OFF)
	e.Use(middleware.Recover())

	s := &Server{echo: e, window: window, engine: eng}

	e.GET("/healthz", s.handleHealthz)

	v1 := e.Group("/v1")
	v1.POST("/files", s.handleLoadFile)
	v1.GET("/files/:name", s.handleGetFile)
	v1.DELETE("/files/:name", s.handleResetFile)
	v1.DELETE("/files", s.handleResetAll)
	v1.POST("/files/:name/select", s.handleSelectFile)

	v1.POST("/files/:name/reactions", s.handleAddReaction)
	v1.DELETE("/files/:name/reactions/:reaction", s.handleRemoveReaction)
	v1.GET("/files/:name/reactions", s.handleExportReactions)
	v1.POST("/files/:name/reactions/import", s.handleImportReactions)
	v1.POST("/files/:name/reactions/:reaction/highlight", s.handleHighlightReaction)

	v1.POST("/values", s.handleUpdateValue)

	v1.POST("/calculations/deconvolution", s.handleDeconvolution)
	v1.POST("/calculations/model-based", s.handleModelBased)
	v1.POST("/calculations/stop", s.handleStop)
	v1.GET("/calculations/status", s.handleStatus)

	v1.GET("/plots/curves", s.handleCurves)
	v1.GET("/plots/mse", s.handleMSELine)
	v1.GET("/plots/reaction-params", s.handleReactionParams)

	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start(addr string) error {
	logger.Info("http server listening", "addr", addr)
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type loadFileRequest struct {
	Path      string   `json:"path"`
	Delimiter string   `json:"delimiter"`
	SkipRows  int      `json:"skip_rows"`
	Columns   []string `json:"columns"`
}

func (s *Server) handleLoadFile(c echo.Context) error {
	var req loadFileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	answer, ok := s.window.Call(bus.ActorFileData, bus.OpLoadFile, map[string]any{
		"path":      req.Path,
		"delimiter": req.Delimiter,
		"skip_rows": req.SkipRows,
		"columns":   req.Columns,
	})
	if !ok {
		return echo.NewHTTPError(http.StatusGatewayTimeout, "file data actor did not answer")
	}
	result, _ := answer.(map[string]any)
	if okFlag, _ := result["ok"].(bool); !okFlag {
		return c.JSON(http.StatusUnprocessableEntity, result)
	}
	if name, _ := result["file_name"].(string); name != "" {
		s.window.SetActiveFile(name)
	}
	return c.JSON(http.StatusCreated, result)
}

func (s *Server) handleGetFile(c echo.Context) error {
	answer, ok := s.window.Call(bus.ActorFileData, bus.OpGetDFData, map[string]any{
		"file_name": c.Param("name"),
	})
	if !ok {
		return echo.NewHTTPError(http.StatusGatewayTimeout, "file data actor did not answer")
	}
	series, _ := answer.(*models.ExperimentSeries)
	if series == nil {
		return echo.NewHTTPError(http.StatusNotFound, "file not loaded")
	}
	return c.JSON(http.StatusOK, series)
}

func (s *Server) handleResetFile(c echo.Context) error {
	s.window.Call(bus.ActorFileData, bus.OpResetFileData, map[string]any{
		"file_name": c.Param("name"),
	})
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleResetAll(c echo.Context) error {
	s.window.Call(bus.ActorFileData, bus.OpResetFileData, map[string]any{"file_name": ""})
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleSelectFile(c echo.Context) error {
	name := c.Param("name")
	s.window.SetActiveFile(name)
	return c.JSON(http.StatusOK, map[string]any{"active_file": name})
}

type addReactionRequest struct {
	Reaction string `json:"reaction"`
}

func (s *Server) handleAddReaction(c echo.Context) error {
	var req addReactionRequest
	if err := c.Bind(&req); err != nil || req.Reaction == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "reaction name is required")
	}
	answer, ok := s.window.Call(bus.ActorOperations, bus.OpAddReaction, map[string]any{
		"path_keys": []string{c.Param("name"), req.Reaction},
	})
	if !ok {
		return echo.NewHTTPError(http.StatusGatewayTimeout, "data operations actor did not answer")
	}
	if added, _ := answer.(bool); !added {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "reaction could not be added")
	}
	return c.JSON(http.StatusCreated, map[string]any{"ok": true})
}

func (s *Server) handleRemoveReaction(c echo.Context) error {
	answer, ok := s.window.Call(bus.ActorOperations, bus.OpRemoveReaction, map[string]any{
		"path_keys": []string{c.Param("name"), c.Param("reaction")},
	})
	if !ok {
		return echo.NewHTTPError(http.StatusGatewayTimeout, "data operations actor did not answer")
	}
	if removed, _ := answer.(bool); !removed {
		return echo.NewHTTPError(http.StatusNotFound, "reaction not found")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleExportReactions(c echo.Context) error {
	answer, ok := s.window.Call(bus.ActorOperations, bus.OpExportReactions, map[string]any{
		"path_keys": []string{c.Param("name")},
	})
	if !ok {
		return echo.NewHTTPError(http.StatusGatewayTimeout, "data operations actor did not answer")
	}
	if answer == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no reactions for file")
	}
	return c.JSON(http.StatusOK, answer)
}

func (s *Server) handleImportReactions(c echo.Context) error {
	var data map[string]any
	if err := c.Bind(&data); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed reaction map")
	}
	answer, ok := s.window.Call(bus.ActorOperations, bus.OpImportReactions, map[string]any{
		"path_keys": []string{c.Param("name")},
		"data":      data,
	})
	if !ok {
		return echo.NewHTTPError(http.StatusGatewayTimeout, "data operations actor did not answer")
	}
	if imported, _ := answer.(bool); !imported {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "reactions could not be imported")
	}
	return c.JSON(http.StatusCreated, map[string]any{"ok": true})
}

func (s *Server) handleHighlightReaction(c echo.Context) error {
	s.window.Call(bus.ActorOperations, bus.OpHighlightReaction, map[string]any{
		"path_keys": []string{c.Param("name"), c.Param("reaction")},
	})
	return c.JSON(http.StatusOK, map[string]any{"ok": true})
}

type updateValueRequest struct {
	PathKeys []string `json:"path_keys"`
	Value    float64  `json:"value"`
	IsChain  bool     `json:"is_chain"`
}

func (s *Server) handleUpdateValue(c echo.Context) error {
	var req updateValueRequest
	if err := c.Bind(&req); err != nil || len(req.PathKeys) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "path_keys and value are required")
	}
	answer, ok := s.window.Call(bus.ActorOperations, bus.OpUpdateValue, map[string]any{
		"path_keys": req.PathKeys,
		"value":     req.Value,
		"is_chain":  req.IsChain,
	})
	if !ok {
		return echo.NewHTTPError(http.StatusGatewayTimeout, "data operations actor did not answer")
	}
	if updated, _ := answer.(bool); !updated {
		return echo.NewHTTPError(http.StatusNotFound, "no data at path")
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true})
}

type deconvolutionRequest struct {
	FileName        string              `json:"file_name"`
	ChosenFunctions map[string][]string `json:"chosen_functions"`
}

func (s *Server) handleDeconvolution(c echo.Context) error {
	var req deconvolutionRequest
	if err := c.Bind(&req); err != nil || req.FileName == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "file_name and chosen_functions are required")
	}
	s.window.SetActiveFile(req.FileName)
	answer, ok := s.window.Call(bus.ActorOperations, bus.OpDeconvolution, map[string]any{
		"path_keys":        []string{req.FileName},
		"chosen_functions": req.ChosenFunctions,
	})
	if !ok {
		return echo.NewHTTPError(http.StatusGatewayTimeout, "data operations actor did not answer")
	}
	return startedResponse(c, answer)
}

type modelBasedRequest struct {
	SeriesName string                 `json:"series_name"`
	Scheme     *models.ReactionScheme `json:"scheme"`
}

func (s *Server) handleModelBased(c echo.Context) error {
	var req modelBasedRequest
	if err := c.Bind(&req); err != nil || req.SeriesName == "" || req.Scheme == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "series_name and scheme are required")
	}
	answer, ok := s.window.Call(bus.ActorOperations, bus.OpModelBasedCalculation, map[string]any{
		"series_name": req.SeriesName,
		"scheme":      req.Scheme,
	})
	if !ok {
		return echo.NewHTTPError(http.StatusGatewayTimeout, "data operations actor did not answer")
	}
	return startedResponse(c, answer)
}

// startedResponse maps an engine start answer to an HTTP status: 202 when a
// run was launched, 409 when one was already in flight or setup failed.
func startedResponse(c echo.Context, answer any) error {
	result, _ := answer.(map[string]any)
	if result == nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "unexpected engine answer")
	}
	if okFlag, _ := result["ok"].(bool); !okFlag {
		return c.JSON(http.StatusConflict, result)
	}
	return c.JSON(http.StatusAccepted, result)
}

func (s *Server) handleStop(c echo.Context) error {
	answer, ok := s.window.Call(bus.ActorCalculations, bus.OpStopCalculation, nil)
	if !ok {
		return echo.NewHTTPError(http.StatusGatewayTimeout, "engine did not answer")
	}
	stopped, _ := answer.(bool)
	return c.JSON(http.StatusOK, map[string]any{"stopped": stopped})
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.engine.Status())
}

func (s *Server) handleCurves(c echo.Context) error {
	return c.JSON(http.StatusOK, s.window.Curves())
}

func (s *Server) handleMSELine(c echo.Context) error {
	line := s.window.MSELine()
	if line == nil {
		return c.JSON(http.StatusOK, []any{})
	}
	return c.JSON(http.StatusOK, line)
}

func (s *Server) handleReactionParams(c echo.Context) error {
	params := s.window.ReactionParams()
	if params == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no reaction highlighted yet")
	}
	return c.JSON(http.StatusOK, params)
}
