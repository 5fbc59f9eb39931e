package persona

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/wa-mentor/backend/internal/model/persona"
)

func setupRouter(activeID string) *chi.Mux {
	handler := New(persona.NewMemoryStore(persona.Seed()), activeID)
	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r
}

func TestListPersonasMarksActive(t *testing.T) {
	r := setupRouter("economist")

	req := httptest.NewRequest(http.MethodGet, "/personas", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if strings.Contains(resp.Body.String(), "instructions") {
		t.Fatal("instructions must not be exposed")
	}

	var items []struct {
		ID     string `json:"id"`
		Active bool   `json:"active"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	active := 0
	for _, item := range items {
		if item.Active {
			active++
			if item.ID != "economist" {
				t.Fatalf("wrong persona marked active: %s", item.ID)
			}
		}
	}
	if active != 1 {
		t.Fatalf("expected one active persona, got %d", active)
	}
}

func TestActivePersonaNotFound(t *testing.T) {
	r := setupRouter("missing")

	req := httptest.NewRequest(http.MethodGet, "/persona", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
