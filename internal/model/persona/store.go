package persona

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Store exposes persona retrieval.
type Store interface {
	List() []Persona
	FindByID(id string) (Persona, bool)
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Persona
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied personas.
func NewMemoryStore(items []Persona) *MemoryStore {
	return &MemoryStore{items: append([]Persona(nil), items...)}
}

// List returns the persona list.
func (s *MemoryStore) List() []Persona {
	return append([]Persona(nil), s.items...)
}

// FindByID looks up a persona by identifier.
func (s *MemoryStore) FindByID(id string) (Persona, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Persona{}, false
}

type personaFile struct {
	Personas []Persona `yaml:"personas"`
}

// LoadFile reads personas from a YAML document of the form
//
//	personas:
//	  - id: siti-rahman
//	    name: Dr. Siti Rahman
//	    instructions: |
//	      ...
//	    keywords: [grant, startup]
func LoadFile(path string) ([]Persona, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona file: %w", err)
	}

	var doc personaFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse persona file %s: %w", path, err)
	}

	for i, p := range doc.Personas {
		if strings.TrimSpace(p.ID) == "" {
			return nil, fmt.Errorf("persona #%d in %s has no id", i+1, path)
		}
		if strings.TrimSpace(p.Instructions) == "" {
			return nil, fmt.Errorf("persona %q in %s has no instructions", p.ID, path)
		}
	}
	return doc.Personas, nil
}

// Merge overlays custom personas on top of base, replacing entries with the
// same id and appending new ones.
func Merge(base, custom []Persona) []Persona {
	out := append([]Persona(nil), base...)
	for _, c := range custom {
		replaced := false
		for i := range out {
			if out[i].ID == c.ID {
				out[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, c)
		}
	}
	return out
}
