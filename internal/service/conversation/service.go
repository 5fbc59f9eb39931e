package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/wa-mentor/backend/internal/analysis/retrieval"
	"github.com/zhouzirui/wa-mentor/backend/internal/model/chat"
	"github.com/zhouzirui/wa-mentor/backend/internal/model/persona"
	"github.com/zhouzirui/wa-mentor/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/wa-mentor/backend/internal/service/chat"
)

// SessionStore is the slice of the session store the pipeline needs.
type SessionStore interface {
	Append(ctx context.Context, sender string, role chat.Role, content string) error
	Recent(ctx context.Context, sender string, n int) []chat.Turn
}

// Retriever produces the context block for a question.
type Retriever interface {
	Query(ctx context.Context, text string, k int) (string, error)
}

// Completer runs one completion and never returns an empty text.
type Completer interface {
	Invoke(ctx context.Context, input map[string]any, fallback string) ai.Completion
}

// Options tunes one pipeline.
type Options struct {
	HistoryWindow int
	RetrievalK    int
	Logger        logrus.FieldLogger
}

// Service handles one inbound message end to end.
type Service struct {
	sessions  SessionStore
	gate      *retrieval.Gate
	retriever Retriever
	completer Completer
	persona   persona.Persona
	opts      Options
	logger    logrus.FieldLogger
}

// NewService wires the pipeline. retriever may be nil, in which case no
// context is ever added.
func NewService(sessions SessionStore, p persona.Persona, retriever Retriever, completer Completer, opts Options) *Service {
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = 10
	}
	if opts.RetrievalK <= 0 {
		opts.RetrievalK = 3
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Service{
		sessions:  sessions,
		gate:      retrieval.NewGate(p.Keywords),
		retriever: retriever,
		completer: completer,
		persona:   p,
		opts:      opts,
		logger:    logger.WithField("component", "conversation"),
	}
}

// Persona returns the active persona.
func (s *Service) Persona() persona.Persona {
	return s.persona
}

// Respond turns text from sender into a reply. Blank text returns ("",
// false) without touching the session. Every other message yields either a
// generated reply or the persona's apology, which is recorded as the
// assistant turn.
func (s *Service) Respond(ctx context.Context, sender, text string) (reply string, ok bool) {
	if strings.TrimSpace(text) == "" {
		messagesTotal.WithLabelValues(outcomeEmpty).Inc()
		return "", false
	}

	start := time.Now()
	fallback := s.persona.FallbackMessage()
	logger := s.logger.WithFields(logrus.Fields{
		"request_id": uuid.NewString(),
		"sender":     chatservice.MaskSender(sender),
	})

	outcome := outcomeFallback
	defer func() {
		if r := recover(); r != nil {
			logger.WithField("panic", fmt.Sprint(r)).Error("reply pipeline panicked")
			fallbacksTotal.WithLabelValues(causePanic).Inc()
			s.recordAssistant(ctx, logger, sender, fallback)
			reply, ok, outcome = fallback, true, outcomeFallback
		}
		messagesTotal.WithLabelValues(outcome).Inc()
		replyDuration.Observe(time.Since(start).Seconds())
	}()

	if err := s.sessions.Append(ctx, sender, chat.RoleUser, text); err != nil {
		logger.WithError(err).Error("failed to record user turn")
		fallbacksTotal.WithLabelValues(causeSession).Inc()
		return fallback, true
	}

	history := s.sessions.Recent(ctx, sender, s.opts.HistoryWindow)
	if n := len(history); n > 0 && history[n-1].Role == chat.RoleUser && history[n-1].Content == text {
		history = history[:n-1]
	}

	contextBlock, err := s.retrieve(ctx, text)
	if err != nil {
		logger.WithError(err).Error("retrieval failed")
		fallbacksTotal.WithLabelValues(causeIndex).Inc()
		s.recordAssistant(ctx, logger, sender, fallback)
		return fallback, true
	}

	input := ai.Assemble(&s.persona, contextBlock, history, text)
	completion := s.completer.Invoke(ctx, input, fallback)
	if completion.Fallback {
		logger.WithError(completion.Err).Error("completion failed, sending apology")
		fallbacksTotal.WithLabelValues(causeProvider).Inc()
	} else {
		outcome = outcomeReply
	}

	s.recordAssistant(ctx, logger, sender, completion.Text)
	logger.WithFields(logrus.Fields{
		"context_chars": len([]rune(contextBlock)),
		"history_turns": len(history),
		"fallback":      completion.Fallback,
	}).Info("reply ready")
	return completion.Text, true
}

func (s *Service) retrieve(ctx context.Context, text string) (string, error) {
	if s.retriever == nil || !s.gate.ShouldRetrieve(text) {
		retrievalTotal.WithLabelValues(retrievalSkipped).Inc()
		return "", nil
	}

	block, err := s.retriever.Query(ctx, text, s.opts.RetrievalK)
	switch {
	case err != nil:
		retrievalTotal.WithLabelValues(retrievalError).Inc()
		return "", err
	case block == "":
		retrievalTotal.WithLabelValues(retrievalEmpty).Inc()
	default:
		retrievalTotal.WithLabelValues(retrievalHit).Inc()
	}
	return block, nil
}

func (s *Service) recordAssistant(ctx context.Context, logger logrus.FieldLogger, sender, text string) {
	if err := s.sessions.Append(ctx, sender, chat.RoleAssistant, text); err != nil {
		logger.WithError(err).Warn("failed to record assistant turn")
	}
}
