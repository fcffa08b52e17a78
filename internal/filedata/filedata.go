package filedata

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/thermokinetics/kinetics-core/internal/bus"
	"github.com/thermokinetics/kinetics-core/pkg/logger"
	"github.com/thermokinetics/kinetics-core/pkg/models"
)

// LoadOptions controls how an experiment file is parsed. The zero value
// means: sniff the delimiter, skip nothing, take column names from the
// header row.
type LoadOptions struct {
	Delimiter string
	SkipRows  int
	Columns   []string
}

// FileData is the actor owning loaded experiment files. Series are keyed by
// base file name; consumers fetch them with get_df_data and never touch the
// filesystem themselves.
type FileData struct {
	*bus.Actor
	logger  *slog.Logger
	dataDir string

	mu    sync.Mutex
	files map[string]*models.ExperimentSeries
	opts  map[string]LoadOptions
}

// New creates the file data actor and registers it on the bus.
func New(b *bus.Bus, dataDir string) (*FileData, error) {
	f := &FileData{
		Actor:   bus.NewActor(bus.ActorFileData, b),
		logger:  logger.With("component", "file_data"),
		dataDir: dataDir,
		files:   make(map[string]*models.ExperimentSeries),
		opts:    make(map[string]LoadOptions),
	}
	if err := f.Register(f.onRequest); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *FileData) onRequest(msg *bus.Message) {
	switch msg.Op {
	case bus.OpLoadFile:
		path, _ := msg.Payload["path"].(string)
		opts := loadOptions(msg.Payload)
		series, err := f.LoadFile(path, opts)
		if err != nil {
			f.logger.Error("failed to load file", "path", path, "error", err)
			f.Respond(msg, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		f.Respond(msg, map[string]any{"ok": true, "file_name": series.Name})

	case bus.OpGetDFData:
		name, _ := msg.Payload["file_name"].(string)
		f.Respond(msg, f.Series(name))

	case bus.OpCheckDifferential:
		name, _ := msg.Payload["file_name"].(string)
		f.Respond(msg, f.EnsureDifferential(name))

	case bus.OpResetFileData:
		name, _ := msg.Payload["file_name"].(string)
		f.Reset(name)
		f.Respond(msg, true)

	case bus.OpFileChanged:
		path, _ := msg.Payload["path"].(string)
		f.reload(path)

	default:
		f.logger.Warn("unsupported operation", "operation", msg.Op, "from", msg.Actor)
		f.Respond(msg, nil)
	}
}

// LoadFile parses an experiment file into a series and registers it under
// its base name.
func (f *FileData) LoadFile(path string, opts LoadOptions) (*models.ExperimentSeries, error) {
	if path == "" {
		return nil, fmt.Errorf("no file path given")
	}
	if !filepath.IsAbs(path) && f.dataDir != "" {
		path = filepath.Join(f.dataDir, path)
	}
	series, err := parseFile(path, opts)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.files[series.Name] = series
	f.opts[series.Name] = opts
	f.mu.Unlock()

	f.logger.Info("file loaded",
		"file", series.Name,
		"points", len(series.Temperature),
		"columns", len(series.Columns))
	return series, nil
}

// Series returns the loaded series for a base file name, or nil.
func (f *FileData) Series(name string) *models.ExperimentSeries {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.files[name]
}

// EnsureDifferential reports whether a file's data is differential (rate
// curves), converting integral mass-loss data in place when needed. The
// conversion is the negative finite difference per column, matching how
// thermogravimetric mass loss maps to a rate curve.
func (f *FileData) EnsureDifferential(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	series, ok := f.files[name]
	if !ok {
		return false
	}
	if series.Differential {
		return true
	}
	for ci := range series.Columns {
		values := series.Columns[ci].Values
		diff := make([]float64, len(values))
		for i := 1; i < len(values); i++ {
			diff[i] = -(values[i] - values[i-1])
		}
		series.Columns[ci].Values = diff
	}
	series.Differential = true
	f.logger.Info("converted series to differential form", "file", name)
	return true
}

// Reset forgets one loaded file, or every file when name is empty.
func (f *FileData) Reset(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name == "" {
		f.files = make(map[string]*models.ExperimentSeries)
		f.opts = make(map[string]LoadOptions)
		f.logger.Info("all file data reset")
		return
	}
	delete(f.files, name)
	delete(f.opts, name)
	f.logger.Info("file data reset", "file", name)
}

// Watch runs a filesystem watcher over the data directory until the context
// ends. Changes to already loaded files are posted back to the dispatch
// loop, which reloads them.
func (f *FileData) Watch(ctx context.Context) error {
	if f.dataDir == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start file watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(f.dataDir); err != nil {
		return fmt.Errorf("watch %s: %w", f.dataDir, err)
	}
	f.logger.Info("watching data directory", "dir", f.dataDir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			f.Bus().PostRequest(&bus.Message{
				Actor:   f.Name(),
				Target:  f.Name(),
				Op:      bus.OpFileChanged,
				Payload: map[string]any{"path": event.Name},
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.logger.Error("file watcher error", "error", err)
		}
	}
}

// reload re-parses a changed file if it had been loaded before.
func (f *FileData) reload(path string) {
	name := baseName(path)
	f.mu.Lock()
	opts, loaded := f.opts[name]
	f.mu.Unlock()
	if !loaded {
		return
	}
	if _, err := f.LoadFile(path, opts); err != nil {
		f.logger.Error("failed to reload changed file", "path", path, "error", err)
		return
	}
	f.logger.Info("reloaded changed file", "file", name)
}

func loadOptions(payload map[string]any) LoadOptions {
	opts := LoadOptions{}
	if d, ok := payload["delimiter"].(string); ok {
		opts.Delimiter = d
	}
	switch v := payload["skip_rows"].(type) {
	case int:
		opts.SkipRows = v
	case float64:
		opts.SkipRows = int(v)
	}
	switch v := payload["columns"].(type) {
	case []string:
		opts.Columns = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				opts.Columns = append(opts.Columns, s)
			}
		}
	}
	return opts
}

// parseFile reads a delimited text file into a series. The first column is
// the temperature grid; every further column is one heating-rate
// measurement. Decimal commas are detected from the raw content, the way
// exported instrument files commonly use them.
func parseFile(path string, opts LoadOptions) (*models.ExperimentSeries, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	content := string(raw)

	delimiter := opts.Delimiter
	if delimiter == "" {
		switch {
		case strings.EqualFold(filepath.Ext(path), ".txt"):
			delimiter = "\t"
		case strings.Contains(content, ";"):
			delimiter = ";"
		default:
			delimiter = ","
		}
	}
	// Comma decimals only make sense when the comma is not the delimiter.
	decimalComma := delimiter != "," && strings.Count(content, ",") > strings.Count(content, ".")

	reader := csv.NewReader(strings.NewReader(content))
	reader.Comma = rune(delimiter[0])
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if opts.SkipRows > 0 && opts.SkipRows < len(records) {
		records = records[opts.SkipRows:]
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s contains no rows", path)
	}

	header := opts.Columns
	if header == nil {
		if _, numErr := parseValue(records[0][0], decimalComma); numErr != nil {
			header = records[0]
			records = records[1:]
		}
	}

	var temperature []float64
	var columns []models.ExperimentColumn
	for _, record := range records {
		if len(record) < 2 {
			continue
		}
		t, err := parseValue(record[0], decimalComma)
		if err != nil {
			continue
		}
		for len(columns) < len(record)-1 {
			columns = append(columns, models.ExperimentColumn{
				Label: columnLabel(header, len(columns)+1),
				Rate:  columnRate(header, len(columns)+1),
			})
		}
		row := make([]float64, 0, len(record)-1)
		ok := true
		for _, field := range record[1:] {
			v, err := parseValue(field, decimalComma)
			if err != nil {
				ok = false
				break
			}
			row = append(row, v)
		}
		if !ok {
			continue
		}
		temperature = append(temperature, t)
		for i, v := range row {
			columns[i].Values = append(columns[i].Values, v)
		}
	}
	if len(temperature) == 0 || len(columns) == 0 {
		return nil, fmt.Errorf("%s contains no numeric data", path)
	}

	return &models.ExperimentSeries{
		Name:        baseName(path),
		Temperature: temperature,
		Columns:     columns,
	}, nil
}

func parseValue(field string, decimalComma bool) (float64, error) {
	field = strings.TrimSpace(field)
	if decimalComma {
		field = strings.ReplaceAll(field, ",", ".")
	}
	return strconv.ParseFloat(field, 64)
}

func columnLabel(header []string, idx int) string {
	if idx < len(header) {
		return strings.TrimSpace(header[idx])
	}
	return "column_" + strconv.Itoa(idx)
}

// columnRate extracts a heating rate from a column label such as "5" or
// "10 K/min". Labels without a leading number yield a zero rate.
func columnRate(header []string, idx int) float64 {
	if idx >= len(header) {
		return 0
	}
	label := strings.TrimSpace(header[idx])
	end := 0
	for end < len(label) && (label[end] == '.' || label[end] == '-' || (label[end] >= '0' && label[end] <= '9')) {
		end++
	}
	if end == 0 {
		return 0
	}
	rate, err := strconv.ParseFloat(label[:end], 64)
	if err != nil {
		return 0
	}
	return rate
}

func baseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
