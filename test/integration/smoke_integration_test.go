//go:build integration
// +build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/thermokinetics/kinetics-core/internal/bus"
	"github.com/thermokinetics/kinetics-core/internal/datastore"
	"github.com/thermokinetics/kinetics-core/internal/engine"
	"github.com/thermokinetics/kinetics-core/internal/filedata"
	"github.com/thermokinetics/kinetics-core/internal/server"
	"github.com/thermokinetics/kinetics-core/pkg/config"
	"github.com/thermokinetics/kinetics-core/pkg/models"
)

// stack is the full kineticd actor wiring behind an in-process HTTP handler,
// assembled the same way the daemon entrypoint does it.
type stack struct {
	handler http.Handler
	engine  *engine.Engine
	store   *datastore.Store
	dataDir string
}

func newStack(t *testing.T) *stack {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.DataDir = dir
	cfg.StorePath = filepath.Join(dir, "calculations.json")
	cfg.Deconvolution.Seed = 42
	cfg.Deconvolution.MaxIterations = 100

	b := bus.New()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go b.Run(ctx)

	store, err := datastore.NewStore(b, cfg.StorePath)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if _, err := datastore.NewOperations(b); err != nil {
		t.Fatalf("operations: %v", err)
	}
	if _, err := filedata.New(b, dir); err != nil {
		t.Fatalf("file data: %v", err)
	}
	window, err := server.NewMainWindow(b)
	if err != nil {
		t.Fatalf("main window: %v", err)
	}
	eng, err := engine.New(b, cfg)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	return &stack{
		handler: server.New(window, eng).Handler(),
		engine:  eng,
		store:   store,
		dataDir: dir,
	}
}

func (s *stack) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func TestIntegration_DeconvolutionLifecycleSmoke(t *testing.T) {
	s := newStack(t)

	// A sigmoid mass-loss curve centered at 400 with a single clean step.
	content := "temperature,5\n"
	for i := 0; i <= 40; i++ {
		temp := 200.0 + float64(i)*10
		mass := 1.0 - 0.5/(1.0+math.Exp(-(temp-400.0)/25.0))
		content += fmt.Sprintf("%.1f,%.6f\n", temp, mass)
	}
	if err := os.WriteFile(filepath.Join(s.dataDir, "run.csv"), []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write experiment file: %v", err)
	}

	rec := s.do(t, http.MethodPost, "/v1/files", `{"path":"run.csv"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("load failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/v1/files/run/reactions", `{"reaction":"reaction_0"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add reaction failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/v1/calculations/deconvolution",
		`{"file_name":"run","chosen_functions":{"reaction_0":["gauss"]}}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("deconvolution start failed: %d %s", rec.Code, rec.Body.String())
	}

	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		if s.engine.Status().Status != models.RunStatusRunning {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	rec = s.do(t, http.MethodGet, "/v1/calculations/status", "")
	var snap map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("bad status body: %v", err)
	}
	if snap["status"] != "completed" {
		t.Fatalf("run did not complete: %v", snap)
	}

	// The best fit was written back into the store and persisted.
	if _, found := s.store.Get([]string{"run", "reaction_0", "coeffs", "h"}); !found {
		t.Fatalf("no fitted coefficients in the store")
	}
	raw, err := os.ReadFile(filepath.Join(s.dataDir, "calculations.json"))
	if err != nil {
		t.Fatalf("store was not persisted: %v", err)
	}
	if !strings.Contains(string(raw), "reaction_0") {
		t.Fatalf("persisted store has no reaction artifact")
	}
}

func TestIntegration_StoreSurvivesRestartSmoke(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "calculations.json")

	b1 := bus.New()
	if _, err := datastore.NewStore(b1, path); err != nil {
		t.Fatalf("store: %v", err)
	}
	caller := bus.NewActor("caller", b1)
	if err := caller.Register(func(msg *bus.Message) { caller.Respond(msg, nil) }); err != nil {
		t.Fatalf("caller: %v", err)
	}
	caller.Call(bus.ActorStore, bus.OpSetValue, map[string]any{
		"path_keys": []string{"file", "reaction_0", "coeffs", "h"},
		"value":     2.25,
	})

	b2 := bus.New()
	store2, err := datastore.NewStore(b2, path)
	if err != nil {
		t.Fatalf("restarted store: %v", err)
	}
	value, found := store2.Get([]string{"file", "reaction_0", "coeffs", "h"})
	if !found || value != 2.25 {
		t.Fatalf("restarted store lost data: %v (found=%v)", value, found)
	}
}
