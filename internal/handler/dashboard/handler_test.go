package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/wa-mentor/backend/internal/model/chat"
	"github.com/zhouzirui/wa-mentor/backend/internal/service/rag"
	chatservice "github.com/zhouzirui/wa-mentor/backend/internal/service/chat"
)

type fixedIndex rag.State

func (f fixedIndex) State() rag.State { return rag.State(f) }

func setupRouter(t *testing.T, opts ...Option) (*chi.Mux, *chatservice.Service) {
	t.Helper()

	clock := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	sessions := chatservice.NewService(chatservice.Options{MaxSessions: 2, TTL: time.Hour}, chatservice.WithClock(func() time.Time {
		return clock
	}))
	ctx := context.Background()
	for _, sender := range []string{"60111111111", "60122222222"} {
		if err := sessions.Append(ctx, sender, chat.RoleUser, "hello"); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}
	if err := sessions.Append(ctx, "60122222222", chat.RoleAssistant, "hi there"); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	handler := New(sessions, fixedIndex(rag.StateAvailable), nil, opts...)
	r := chi.NewRouter()
	r.Route("/api", handler.RegisterRoutes)
	return r, sessions
}

func TestStatsReportsSessionsAndIndex(t *testing.T) {
	r, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload["status"] != "active" {
		t.Fatalf("unexpected status: %v", payload["status"])
	}
	if payload["total_conversations"] != float64(2) || payload["total_messages"] != float64(3) {
		t.Fatalf("unexpected counts: %v", payload)
	}
	if payload["index_available"] != true || payload["index_state"] != "available" {
		t.Fatalf("unexpected index fields: %v", payload)
	}
	if _, ok := payload["last_updated"]; !ok {
		t.Fatal("missing last_updated")
	}
}

func TestConversationsAreMasked(t *testing.T) {
	r, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	body := resp.Body.String()
	if strings.Contains(body, "60111111111") || strings.Contains(body, "hello") {
		t.Fatalf("listing leaks sender or content: %s", body)
	}

	var summaries []chat.SessionSummary
	if err := json.Unmarshal([]byte(body), &summaries); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}
}

func TestSweepReportsMaintenance(t *testing.T) {
	r, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/sweep", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var report chat.SweepReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if report.Remaining != 2 || report.Expired != 0 || report.Evicted != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestStatsStreamPushesSnapshots(t *testing.T) {
	r, _ := setupRouter(t, WithInterval(20*time.Millisecond))
	server := httptest.NewServer(r)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/stats/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for i := 0; i < 2; i++ {
		var msg struct {
			Type string        `json:"type"`
			Data StatsResponse `json:"data"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read %d failed: %v", i, err)
		}
		if msg.Type != "stats" {
			t.Fatalf("unexpected message type: %s", msg.Type)
		}
		if msg.Data.Sessions != 2 || !msg.Data.IndexAvailable {
			t.Fatalf("unexpected snapshot: %+v", msg.Data)
		}
	}
}
