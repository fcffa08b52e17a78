package datastore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/thermokinetics/kinetics-core/internal/bus"
)

func newTestCaller(t *testing.T, b *bus.Bus) *bus.Actor {
	t.Helper()
	caller := bus.NewActor("test_caller", b)
	if err := caller.Register(func(msg *bus.Message) { caller.Respond(msg, nil) }); err != nil {
		t.Fatalf("failed to register the caller: %v", err)
	}
	return caller
}

func TestStoreSetGetRemove(t *testing.T) {
	b := bus.New()
	store, err := NewStore(b, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if existed := store.Set([]string{"file.txt", "reaction_0", "coeffs", "h"}, 3.5); existed {
		t.Fatalf("first set must report a fresh leaf")
	}
	if existed := store.Set([]string{"file.txt", "reaction_0", "coeffs", "h"}, 4.0); !existed {
		t.Fatalf("second set must report an overwrite")
	}

	value, ok := store.Get([]string{"file.txt", "reaction_0", "coeffs", "h"})
	if !ok || value != 4.0 {
		t.Fatalf("got %v (found=%v), want 4.0", value, ok)
	}

	if _, ok := store.Get([]string{"file.txt", "reaction_9"}); ok {
		t.Fatalf("missing path must not be found")
	}
	if _, ok := store.Get([]string{"file.txt", "reaction_0", "coeffs", "h", "deeper"}); ok {
		t.Fatalf("descending through a leaf must not be found")
	}

	// Subtrees resolve to their map.
	subtree, ok := store.Get([]string{"file.txt", "reaction_0"})
	if !ok {
		t.Fatalf("subtree not found")
	}
	if _, isMap := subtree.(map[string]any); !isMap {
		t.Fatalf("subtree is %T, want a map", subtree)
	}

	if removed := store.Remove([]string{"file.txt", "reaction_0"}); !removed {
		t.Fatalf("remove must report the subtree existed")
	}
	if removed := store.Remove([]string{"file.txt", "reaction_0"}); removed {
		t.Fatalf("second remove must report nothing to do")
	}
	if _, ok := store.Get([]string{"file.txt", "reaction_0", "coeffs", "h"}); ok {
		t.Fatalf("removed subtree is still reachable")
	}
}

func TestStoreBusProtocol(t *testing.T) {
	b := bus.New()
	if _, err := NewStore(b, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	caller := newTestCaller(t, b)

	resp, ok := caller.Call(bus.ActorStore, bus.OpSetValue, map[string]any{
		"path_keys": []string{"file.txt", "reaction_0"},
		"value":     map[string]any{"function": "gauss"},
	})
	if !ok {
		t.Fatalf("set call failed")
	}
	if existed, _ := resp.(bool); existed {
		t.Fatalf("fresh set reported an overwrite")
	}

	// JSON-style path keys are accepted too.
	resp, ok = caller.Call(bus.ActorStore, bus.OpGetValue, map[string]any{
		"path_keys": []any{"file.txt", "reaction_0", "function"},
	})
	if !ok || resp != "gauss" {
		t.Fatalf("got %v, want gauss", resp)
	}

	resp, ok = caller.Call(bus.ActorStore, bus.OpRemoveValue, map[string]any{
		"path_keys": []string{"file.txt"},
	})
	if !ok {
		t.Fatalf("remove call failed")
	}
	if removed, _ := resp.(bool); !removed {
		t.Fatalf("remove reported nothing existed")
	}
}

func TestStorePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")

	b1 := bus.New()
	if _, err := NewStore(b1, path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	caller := newTestCaller(t, b1)
	caller.Call(bus.ActorStore, bus.OpSetValue, map[string]any{
		"path_keys": []string{"file.txt", "reaction_0", "coeffs", "h"},
		"value":     3.5,
	})

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("store file was not written: %v", err)
	}

	// A fresh store on the same path sees the persisted tree.
	b2 := bus.New()
	store2, err := NewStore(b2, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	value, ok := store2.Get([]string{"file.txt", "reaction_0", "coeffs", "h"})
	if !ok || value != 3.5 {
		t.Fatalf("reloaded value is %v (found=%v), want 3.5", value, ok)
	}
}

func TestStoreLoadRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if _, err := NewStore(bus.New(), path); err == nil {
		t.Fatalf("expected an error for a corrupt store file")
	}
}

func TestPathKeys(t *testing.T) {
	cases := []struct {
		name  string
		value any
		want  []string
	}{
		{"typed", []string{"a", "b"}, []string{"a", "b"}},
		{"json decoded", []any{"a", "b"}, []string{"a", "b"}},
		{"mixed drops non-strings", []any{"a", 1.0, "b"}, []string{"a", "b"}},
		{"nil", nil, nil},
		{"wrong type", 42, nil},
	}
	for _, tc := range cases {
		got := PathKeys(tc.value)
		if len(got) != len(tc.want) {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
			}
		}
	}
}
