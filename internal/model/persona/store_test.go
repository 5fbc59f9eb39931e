package persona

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSeedPersonasAreComplete(t *testing.T) {
	for _, p := range Seed() {
		if p.ID == "" || p.Instructions == "" {
			t.Fatalf("seed persona missing id or instructions: %+v", p)
		}
		if len(p.Keywords) == 0 {
			t.Fatalf("seed persona %s has no retrieval keywords", p.ID)
		}
		if p.FallbackMessage() == "" {
			t.Fatalf("seed persona %s has empty fallback", p.ID)
		}
	}
}

func TestFallbackMessageDefault(t *testing.T) {
	if got := (Persona{}).FallbackMessage(); got != DefaultFallback {
		t.Fatalf("expected default fallback, got %q", got)
	}
}

func TestLoadFileAndMerge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personas.yaml")
	doc := `personas:
  - id: economist
    name: Custom Economist
    instructions: |
      You are a terse economist.
    keywords: [inflation]
  - id: coach
    name: Coach
    instructions: You coach founders.
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write persona file: %v", err)
	}

	custom, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile err: %v", err)
	}
	if len(custom) != 2 {
		t.Fatalf("expected 2 personas, got %d", len(custom))
	}

	store := NewMemoryStore(Merge(Seed(), custom))
	econ, ok := store.FindByID("economist")
	if !ok || econ.Name != "Custom Economist" {
		t.Fatalf("expected economist to be overridden, got %+v", econ)
	}
	if _, ok := store.FindByID("coach"); !ok {
		t.Fatal("expected coach persona to be appended")
	}
	if _, ok := store.FindByID("siti-rahman"); !ok {
		t.Fatal("expected seed persona to survive merge")
	}
}

func TestLoadFileRejectsMissingInstructions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personas.yaml")
	if err := os.WriteFile(path, []byte("personas:\n  - id: empty\n"), 0o600); err != nil {
		t.Fatalf("write persona file: %v", err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for persona without instructions")
	}
}
