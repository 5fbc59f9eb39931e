package dashboard

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/wa-mentor/backend/internal/model/chat"
	"github.com/zhouzirui/wa-mentor/backend/internal/service/rag"
	"github.com/zhouzirui/wa-mentor/backend/pkg/utils"
)

const (
	conversationLimit = 10
	defaultInterval   = 5 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = 54 * time.Second
	writeWait         = 10 * time.Second
)

// SessionSource is the read and maintenance surface of the session store.
type SessionSource interface {
	Stats(ctx context.Context) chat.Stats
	Summaries(ctx context.Context, limit int) []chat.SessionSummary
	Maintain(ctx context.Context) chat.SweepReport
}

// IndexStatus reports the vector index lifecycle.
type IndexStatus interface {
	State() rag.State
}

// StatsResponse is served by /api/stats and pushed over the live feed.
type StatsResponse struct {
	Status string `json:"status"`
	chat.Stats
	IndexAvailable bool      `json:"index_available"`
	IndexState     string    `json:"index_state"`
	LastUpdated    time.Time `json:"last_updated"`
}

// Option customises a Handler.
type Option func(*Handler)

// WithInterval sets how often the live feed pushes stats.
func WithInterval(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.interval = d
		}
	}
}

// Handler serves the operational endpoints.
type Handler struct {
	sessions SessionSource
	index    IndexStatus
	logger   logrus.FieldLogger
	upgrader websocket.Upgrader
	interval time.Duration
}

// New creates the dashboard handler. index may be nil when retrieval is
// not configured.
func New(sessions SessionSource, index IndexStatus, logger logrus.FieldLogger, opts ...Option) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	h := &Handler{
		sessions: sessions,
		index:    index,
		logger:   logger.WithField("component", "dashboard"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		interval: defaultInterval,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes mounts the routes under the caller's /api prefix.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stats", h.handleStats)
	r.Get("/stats/ws", h.handleStatsStream)
	r.Get("/conversations", h.handleConversations)
	r.Post("/sweep", h.handleSweep)
}

func (h *Handler) snapshot(ctx context.Context) StatsResponse {
	state := rag.StateUnloaded
	if h.index != nil {
		state = h.index.State()
	}
	return StatsResponse{
		Status:         "active",
		Stats:          h.sessions.Stats(ctx),
		IndexAvailable: state == rag.StateAvailable,
		IndexState:     state.String(),
		LastUpdated:    time.Now().UTC(),
	}
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.snapshot(r.Context()))
}

func (h *Handler) handleConversations(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.sessions.Summaries(r.Context(), conversationLimit))
}

func (h *Handler) handleSweep(w http.ResponseWriter, r *http.Request) {
	report := h.sessions.Maintain(r.Context())
	h.logger.WithFields(logrus.Fields{
		"expired":   report.Expired,
		"evicted":   report.Evicted,
		"remaining": report.Remaining,
	}).Info("manual session sweep")
	utils.RespondJSON(w, http.StatusOK, report)
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

func (h *Handler) handleStatsStream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	go h.readLoop(conn, cancel)

	if err := h.sendStats(ctx, conn); err != nil {
		return
	}

	statsTicker := time.NewTicker(h.interval)
	defer statsTicker.Stop()
	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-statsTicker.C:
			if err := h.sendStats(ctx, conn); err != nil {
				return
			}
		case <-pingTicker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readLoop drains client frames so control messages are processed and a
// closed connection is noticed.
func (h *Handler) readLoop(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.WithError(err).Debug("live feed read error")
			}
			return
		}
	}
}

func (h *Handler) sendStats(ctx context.Context, conn *websocket.Conn) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := conn.WriteJSON(outgoingMessage{
		Type:      "stats",
		Data:      h.snapshot(ctx),
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		h.logger.WithError(err).Debug("live feed write failed")
	}
	return err
}
