package persistence

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestStateStore(t *testing.T) {
	t.Run("LoadNonExistent", func(t *testing.T) {
		store := NewStateStore(filepath.Join(t.TempDir(), "nonexistent.json"))

		got, err := store.Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got != nil {
			t.Errorf("Load() = %v, want nil for non-existent file", got)
		}
	})

	t.Run("SaveAndLoad", func(t *testing.T) {
		store := NewStateStore(filepath.Join(t.TempDir(), "nested", "state.json"))

		state := &ServerState{Aliases: map[string]string{
			"/me/head": "/demo/tracker/tracker/0",
		}}
		if err := store.Save(state); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		got, err := store.Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got.Version != StateVersion {
			t.Errorf("Version = %d, want %d", got.Version, StateVersion)
		}
		if got.SavedAt.IsZero() {
			t.Error("SavedAt not set")
		}
		if got.Aliases["/me/head"] != "/demo/tracker/tracker/0" {
			t.Errorf("Aliases = %v", got.Aliases)
		}
		if _, err := os.Stat(store.Path() + ".tmp"); !os.IsNotExist(err) {
			t.Errorf("temporary file left behind: %v", err)
		}
	})

	t.Run("SetAlias", func(t *testing.T) {
		store := NewStateStore(filepath.Join(t.TempDir(), "state.json"))

		if err := store.SetAlias("/me/head", "/a/b/tracker/0"); err != nil {
			t.Fatalf("SetAlias() error = %v", err)
		}
		if err := store.SetAlias("/me/hand", `{"source": "/a/b/tracker/1"}`); err != nil {
			t.Fatalf("SetAlias() error = %v", err)
		}
		if err := store.SetAlias("/me/head", "/a/b/tracker/2"); err != nil {
			t.Fatalf("SetAlias() error = %v", err)
		}

		got, err := store.Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		want := map[string]string{
			"/me/head": "/a/b/tracker/2",
			"/me/hand": `{"source": "/a/b/tracker/1"}`,
		}
		if len(got.Aliases) != len(want) {
			t.Fatalf("Aliases = %v, want %v", got.Aliases, want)
		}
		for k, v := range want {
			if got.Aliases[k] != v {
				t.Errorf("Aliases[%s] = %q, want %q", k, got.Aliases[k], v)
			}
		}
	})

	t.Run("NewerVersion", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state.json")
		if err := os.WriteFile(path, []byte(`{"version": 99}`), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := NewStateStore(path).Load(); !errors.Is(err, ErrUnsupportedVersion) {
			t.Errorf("Load() error = %v, want %v", err, ErrUnsupportedVersion)
		}
	})

	t.Run("Corrupt", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state.json")
		if err := os.WriteFile(path, []byte(`{`), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := NewStateStore(path).Load(); err == nil {
			t.Error("Load() of corrupt file should fail")
		}
	})

	t.Run("Clear", func(t *testing.T) {
		store := NewStateStore(filepath.Join(t.TempDir(), "state.json"))
		if err := store.Clear(); err != nil {
			t.Errorf("Clear() on missing file: %v", err)
		}
		if err := store.SetAlias("/x", "/y"); err != nil {
			t.Fatal(err)
		}
		if err := store.Clear(); err != nil {
			t.Fatalf("Clear() error = %v", err)
		}
		if got, _ := store.Load(); got != nil {
			t.Errorf("Load() after Clear = %v", got)
		}
	})
}
