package store

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

type payload struct {
	Name  string  `json:"name"`
	Knobs []int   `json:"knobs"`
	Gain  float64 `json:"gain"`
}

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestRoundTrip(t *testing.T) {
	s := testStore(t)
	in := payload{Name: "wide hall", Knobs: []int{1, 2, 3}, Gain: 0.8}
	s.Save("presets", in)

	var out payload
	if !s.Load("presets", &out) {
		t.Fatal("load returned false for saved namespace")
	}
	if out.Name != in.Name || out.Gain != in.Gain || len(out.Knobs) != 3 {
		t.Errorf("loaded %+v, want %+v", out, in)
	}
}

func TestMissingNamespace(t *testing.T) {
	s := testStore(t)
	out := payload{Name: "default"}
	if s.Load("nothing", &out) {
		t.Error("load of missing namespace returned true")
	}
	if out.Name != "default" {
		t.Error("missing namespace mutated the default value")
	}
}

func TestCorruptDataFallsBack(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "presets.json"), []byte("{nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := payload{Name: "default"}
	if s.Load("presets", &out) {
		t.Error("corrupt namespace loaded successfully")
	}
	if out.Name != "default" {
		t.Error("corrupt namespace mutated the default value")
	}
}

func TestSaveOverwrites(t *testing.T) {
	s := testStore(t)
	s.Save("presets", payload{Name: "first"})
	s.Save("presets", payload{Name: "second"})
	var out payload
	s.Load("presets", &out)
	if out.Name != "second" {
		t.Errorf("loaded %q, want the later write", out.Name)
	}
}

func TestDelete(t *testing.T) {
	s := testStore(t)
	s.Save("presets", payload{Name: "gone"})
	s.Delete("presets")
	var out payload
	if s.Load("presets", &out) {
		t.Error("deleted namespace still loads")
	}
	// Deleting again is harmless.
	s.Delete("presets")
}

func TestNamespaceCannotEscapeDir(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	s.Save("../escape", payload{Name: "x"})
	if _, err := os.Stat(filepath.Join(dir, "escape.json")); err != nil {
		t.Error("namespace was not confined to the state directory")
	}
}
