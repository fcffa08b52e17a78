package datastore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/thermokinetics/kinetics-core/internal/bus"
	"github.com/thermokinetics/kinetics-core/pkg/logger"
)

// Store is the calculations data actor: a hierarchical tree of maps
// addressed by path keys, persisted as JSON. All reaction artifacts live
// here; other actors reach it only through get/set/remove requests.
type Store struct {
	*bus.Actor
	logger *slog.Logger
	path   string

	mu   sync.Mutex
	data map[string]any
}

// NewStore creates the store actor and registers it on the bus. A non-empty
// path enables persistence: existing content is loaded eagerly and every
// mutation is written back.
func NewStore(b *bus.Bus, path string) (*Store, error) {
	s := &Store{
		Actor:  bus.NewActor(bus.ActorStore, b),
		logger: logger.With("component", "datastore"),
		path:   path,
		data:   make(map[string]any),
	}
	if path != "" {
		if err := s.load(); err != nil {
			return nil, err
		}
	}
	if err := s.Register(s.onRequest); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) onRequest(msg *bus.Message) {
	keys := PathKeys(msg.Payload["path_keys"])

	switch msg.Op {
	case bus.OpGetValue:
		value, _ := s.Get(keys)
		s.Respond(msg, value)

	case bus.OpSetValue:
		existed := s.Set(keys, msg.Payload["value"])
		s.persist()
		s.Respond(msg, existed)

	case bus.OpRemoveValue:
		existed := s.Remove(keys)
		s.persist()
		s.Respond(msg, existed)

	default:
		s.logger.Warn("unsupported operation", "operation", msg.Op, "from", msg.Actor)
		s.Respond(msg, nil)
	}
}

// Get resolves a path to its value. The second return reports whether the
// full path existed.
func (s *Store) Get(keys []string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var node any = s.data
	for _, key := range keys {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return node, true
}

// Set stores a value at a path, creating intermediate maps as needed. It
// returns whether the leaf already existed, so callers can tell an insert
// from an overwrite.
func (s *Store) Set(keys []string, value any) bool {
	if len(keys) == 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	node := s.data
	for _, key := range keys[:len(keys)-1] {
		child, ok := node[key].(map[string]any)
		if !ok {
			child = make(map[string]any)
			node[key] = child
		}
		node = child
	}
	leaf := keys[len(keys)-1]
	_, existed := node[leaf]
	node[leaf] = value
	return existed
}

// Remove deletes the subtree at a path and reports whether it existed.
func (s *Store) Remove(keys []string) bool {
	if len(keys) == 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	node := s.data
	for _, key := range keys[:len(keys)-1] {
		child, ok := node[key].(map[string]any)
		if !ok {
			return false
		}
		node = child
	}
	leaf := keys[len(keys)-1]
	if _, ok := node[leaf]; !ok {
		return false
	}
	delete(node, leaf)
	return true
}

func (s *Store) load() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("load store %s: %w", s.path, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return fmt.Errorf("parse store %s: %w", s.path, err)
	}
	return nil
}

// persist writes the tree back to disk. Failures are logged, not fatal: the
// in-memory state stays authoritative for the session.
func (s *Store) persist() {
	if s.path == "" {
		return
	}
	s.mu.Lock()
	raw, err := json.MarshalIndent(s.data, "", "  ")
	s.mu.Unlock()
	if err != nil {
		s.logger.Error("failed to encode store", "error", err)
		return
	}
	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		s.logger.Error("failed to persist store", "path", s.path, "error", err)
	}
}

// PathKeys coerces a payload value into a path. Both []string and the
// []any produced by JSON decoding are accepted.
func PathKeys(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		keys := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				keys = append(keys, s)
			}
		}
		return keys
	}
	return nil
}
