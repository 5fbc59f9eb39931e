package webhook

import (
	"context"
	"encoding/xml"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	chatservice "github.com/zhouzirui/wa-mentor/backend/internal/service/chat"
	"github.com/zhouzirui/wa-mentor/backend/pkg/utils"
)

const (
	maxFormBytes   = 64 << 10
	whatsappPrefix = "whatsapp:"
)

// Responder produces the reply for one inbound message.
type Responder interface {
	Respond(ctx context.Context, sender, text string) (string, bool)
}

// Probe is reported by the configuration check endpoint.
type Probe struct {
	TwilioConfigured    bool   `json:"twilio_configured"`
	AIConfigured        bool   `json:"ai_configured"`
	AIProvider          string `json:"ai_provider"`
	EmbeddingConfigured bool   `json:"embedding_configured"`
	Persona             string `json:"persona"`
}

// Handler receives Twilio WhatsApp webhooks.
type Handler struct {
	responder Responder
	probe     Probe
	logger    logrus.FieldLogger
}

// New creates the webhook handler.
func New(responder Responder, probe Probe, logger logrus.FieldLogger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{
		responder: responder,
		probe:     probe,
		logger:    logger.WithField("component", "webhook"),
	}
}

// RegisterRoutes mounts the webhook routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/webhook/whatsapp", h.handleMessage)
	r.Post("/webhook/status", h.handleStatus)
	r.Get("/test", h.handleProbe)
}

type twimlResponse struct {
	XMLName xml.Name      `xml:"Response"`
	Message *twimlMessage `xml:"Message,omitempty"`
}

type twimlMessage struct {
	Body string `xml:",chardata"`
}

func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid form body")
		return
	}

	body := strings.TrimSpace(r.PostForm.Get("Body"))
	sender := NormalizeSender(r.PostForm.Get("From"))
	logger := h.logger.WithFields(logrus.Fields{
		"request_id": middleware.GetReqID(r.Context()),
		"sender":     chatservice.MaskSender(sender),
	})

	if body == "" {
		logger.Warn("empty message received")
		w.WriteHeader(http.StatusOK)
		return
	}
	if sender == "" {
		utils.RespondError(w, http.StatusBadRequest, "From is required")
		return
	}

	logger.WithField("length", len([]rune(body))).Info("message received")
	reply, ok := h.responder.Respond(r.Context(), sender, body)
	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}

	utils.RespondXML(w, http.StatusOK, twimlResponse{Message: &twimlMessage{Body: reply}})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		h.logger.WithError(err).Warn("unreadable status callback")
		w.WriteHeader(http.StatusOK)
		return
	}

	entry := h.logger.WithFields(logrus.Fields{
		"message_sid": r.PostForm.Get("MessageSid"),
		"status":      r.PostForm.Get("MessageStatus"),
	})
	if code := r.PostForm.Get("ErrorCode"); code != "" {
		entry.WithField("error_code", code).Warn("message delivery failed")
	} else {
		entry.Info("message status")
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleProbe(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "WhatsApp webhook is running",
		"config":  h.probe,
	})
}

var senderReplacer = strings.NewReplacer("+", "", " ", "", "-", "", "(", "", ")", "", ".", "")

// NormalizeSender strips the channel prefix and phone punctuation so one
// number always maps to one session.
func NormalizeSender(from string) string {
	from = strings.TrimSpace(from)
	if len(from) >= len(whatsappPrefix) && strings.EqualFold(from[:len(whatsappPrefix)], whatsappPrefix) {
		from = from[len(whatsappPrefix):]
	}
	return senderReplacer.Replace(from)
}
