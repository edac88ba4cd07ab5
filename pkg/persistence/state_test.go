package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })
	return map[string]Store{
		"file":   NewFileStore(filepath.Join(t.TempDir(), "state", "entities.json")),
		"sqlite": sqlite,
	}
}

func TestStore(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("LoadMissing", func(t *testing.T) {
				_, ok, err := store.Load("aabbccddeeff_9b34fb01")
				if err != nil {
					t.Fatalf("Load() error = %v", err)
				}
				if ok {
					t.Error("Load() ok = true for unknown id")
				}
			})

			t.Run("SaveAndLoad", func(t *testing.T) {
				at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
				want := EntityState{UniqueID: "aabbccddeeff_9b34fb01", Device: "AA:BB:CC:DD:EE:FF", On: true, UpdatedAt: at}
				if err := store.Save(want); err != nil {
					t.Fatalf("Save() error = %v", err)
				}

				got, ok, err := store.Load(want.UniqueID)
				if err != nil || !ok {
					t.Fatalf("Load() = %v, %v", ok, err)
				}
				if got.Device != want.Device || got.On != want.On || !got.UpdatedAt.Equal(at) {
					t.Errorf("Load() = %+v, want %+v", got, want)
				}
			})

			t.Run("Overwrite", func(t *testing.T) {
				st := EntityState{UniqueID: "aabbccddeeff_9b34fb01", Device: "AA:BB:CC:DD:EE:FF", On: false}
				if err := store.Save(st); err != nil {
					t.Fatalf("Save() error = %v", err)
				}
				got, _, _ := store.Load(st.UniqueID)
				if got.On {
					t.Error("On = true after saving false")
				}
				if got.UpdatedAt.IsZero() {
					t.Error("UpdatedAt not set on save")
				}
			})

			t.Run("Prune", func(t *testing.T) {
				for _, st := range []EntityState{
					{UniqueID: "aabbccddeeff_9b34fb02", Device: "AA:BB:CC:DD:EE:FF"},
					{UniqueID: "112233445566_9b34fb01", Device: "11:22:33:44:55:66", On: true},
				} {
					if err := store.Save(st); err != nil {
						t.Fatalf("Save() error = %v", err)
					}
				}

				n, err := store.Prune("AA:BB:CC:DD:EE:FF", []string{"aabbccddeeff_9b34fb01"})
				if err != nil {
					t.Fatalf("Prune() error = %v", err)
				}
				if n != 1 {
					t.Errorf("Prune() = %d, want 1", n)
				}

				all, err := store.All()
				if err != nil {
					t.Fatalf("All() error = %v", err)
				}
				if len(all) != 2 {
					t.Fatalf("All() returned %d states, want 2", len(all))
				}
				if all[0].UniqueID != "112233445566_9b34fb01" || all[1].UniqueID != "aabbccddeeff_9b34fb01" {
					t.Errorf("All() order = %s, %s", all[0].UniqueID, all[1].UniqueID)
				}
			})

			t.Run("PruneAll", func(t *testing.T) {
				n, err := store.Prune("11:22:33:44:55:66", nil)
				if err != nil {
					t.Fatalf("Prune() error = %v", err)
				}
				if n != 1 {
					t.Errorf("Prune() = %d, want 1", n)
				}
			})
		})
	}
}

func TestFileStore(t *testing.T) {
	t.Run("PersistsAcrossInstances", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "entities.json")
		if err := NewFileStore(path).Save(EntityState{UniqueID: "a_1", Device: "A", On: true}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		got, ok, err := NewFileStore(path).Load("a_1")
		if err != nil || !ok || !got.On {
			t.Fatalf("Load() = %+v, %v, %v", got, ok, err)
		}
	})

	t.Run("FileFormat", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "entities.json")
		if err := NewFileStore(path).Save(EntityState{UniqueID: "a_1", Device: "A", On: true}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile() error = %v", err)
		}
		var file StateFile
		if err := json.Unmarshal(data, &file); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if file.Version != StateVersion {
			t.Errorf("Version = %d, want %d", file.Version, StateVersion)
		}
		if file.SavedAt.IsZero() {
			t.Error("SavedAt not set")
		}
		if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
			t.Error("temporary file left behind")
		}
	})

	t.Run("CorruptFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "entities.json")
		if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, _, err := NewFileStore(path).Load("a_1"); err == nil {
			t.Error("Load() error = nil for corrupt file")
		}
	})

	t.Run("Clear", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "entities.json")
		store := NewFileStore(path)
		if err := store.Save(EntityState{UniqueID: "a_1"}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if err := store.Clear(); err != nil {
			t.Fatalf("Clear() error = %v", err)
		}
		if err := store.Clear(); err != nil {
			t.Errorf("Clear() twice error = %v", err)
		}
		if _, ok, _ := store.Load("a_1"); ok {
			t.Error("state survived Clear()")
		}
	})
}
