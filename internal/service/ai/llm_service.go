package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotConfigured = errors.New("completion provider not configured")
	ErrEmptyReply    = errors.New("completion provider returned an empty reply")
)

const truncationSuffix = "..."

// Completion is the outcome of one provider call. When Fallback is set, Text
// holds the apology and Err the reason.
type Completion struct {
	Text     string
	Fallback bool
	Err      error
}

// Options fixes the per-deployment invocation limits.
type Options struct {
	Timeout     time.Duration
	ReplyBudget int
	Logger      logrus.FieldLogger
}

// Service runs the prompt template and chat model as one eino chain.
type Service struct {
	chain       compose.Runnable[map[string]any, *schema.Message]
	timeout     time.Duration
	replyBudget int
	logger      logrus.FieldLogger
}

// NewService compiles the completion chain around chatModel.
func NewService(ctx context.Context, chatModel model.BaseChatModel, opts Options) (*Service, error) {
	if chatModel == nil {
		return nil, ErrNotConfigured
	}

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(newPromptTemplate())
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Service{
		chain:       runnable,
		timeout:     opts.Timeout,
		replyBudget: opts.ReplyBudget,
		logger:      logger.WithField("component", "ai"),
	}, nil
}

// Invoke runs one completion. It never returns an empty text: failures and
// empty replies yield fallback. A nil Service always falls back.
func (s *Service) Invoke(ctx context.Context, input map[string]any, fallback string) Completion {
	if s == nil {
		return Completion{Text: fallback, Fallback: true, Err: ErrNotConfigured}
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return Completion{Text: fallback, Fallback: true, Err: fmt.Errorf("failed to run AI chain: %w", err)}
	}

	text := ""
	if response != nil {
		text = strings.TrimSpace(response.Content)
	}
	if text == "" {
		return Completion{Text: fallback, Fallback: true, Err: ErrEmptyReply}
	}

	entry := s.logger.WithFields(logrus.Fields{
		"latency_ms": time.Since(start).Milliseconds(),
		"length":     len([]rune(text)),
	})
	if meta := response.ResponseMeta; meta != nil {
		entry = entry.WithField("finish_reason", meta.FinishReason)
		if meta.Usage != nil {
			entry = entry.WithField("total_tokens", meta.Usage.TotalTokens)
		}
	}
	entry.Debug("generated reply")

	return Completion{Text: Truncate(text, s.replyBudget)}
}

// Truncate caps text at budget characters, the suffix included. A
// non-positive budget leaves text unchanged.
func Truncate(text string, budget int) string {
	if budget <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= budget {
		return text
	}

	suffix := []rune(truncationSuffix)
	if budget <= len(suffix) {
		return string(runes[:budget])
	}
	return string(runes[:budget-len(suffix)]) + truncationSuffix
}
