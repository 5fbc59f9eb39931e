// Package openai adapts the OpenAI API (or any compatible endpoint) to the
// eino component interfaces used by the rest of the service.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	goopenai "github.com/sashabaranov/go-openai"
)

// ChatModelConfig fixes the generation parameters for a deployment.
type ChatModelConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   *int
	Temperature *float32
	TopP        *float32
	HTTPClient  *http.Client
}

// ChatModel implements model.ChatModel on top of go-openai.
type ChatModel struct {
	client *goopenai.Client
	cfg    ChatModelConfig
}

var _ model.ChatModel = (*ChatModel)(nil)

// NewChatModel validates cfg and builds the client.
func NewChatModel(_ context.Context, cfg *ChatModelConfig) (*ChatModel, error) {
	if cfg == nil {
		return nil, errors.New("openai chat model config is nil")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("openai model is empty")
	}
	if strings.TrimSpace(cfg.APIKey) == "" && strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("openai api key is empty")
	}
	return &ChatModel{client: newClient(cfg.APIKey, cfg.BaseURL, cfg.HTTPClient), cfg: *cfg}, nil
}

func newClient(apiKey, baseURL string, hc *http.Client) *goopenai.Client {
	clientCfg := goopenai.DefaultConfig(apiKey)
	if base := strings.TrimSpace(baseURL); base != "" {
		clientCfg.BaseURL = strings.TrimRight(base, "/")
	}
	if hc != nil {
		clientCfg.HTTPClient = hc
	}
	return goopenai.NewClientWithConfig(clientCfg)
}

// Generate sends the conversation and returns the first choice.
func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	options := model.GetCommonOptions(&model.Options{
		Model:       &m.cfg.Model,
		MaxTokens:   m.cfg.MaxTokens,
		Temperature: m.cfg.Temperature,
		TopP:        m.cfg.TopP,
	}, opts...)

	req := goopenai.ChatCompletionRequest{
		Messages: make([]goopenai.ChatCompletionMessage, 0, len(input)),
		Stop:     options.Stop,
	}
	if options.Model != nil {
		req.Model = *options.Model
	}
	if options.MaxTokens != nil {
		req.MaxTokens = *options.MaxTokens
	}
	if options.Temperature != nil {
		req.Temperature = *options.Temperature
	}
	if options.TopP != nil {
		req.TopP = *options.TopP
	}
	for _, msg := range input {
		if msg == nil {
			continue
		}
		req.Messages = append(req.Messages, goopenai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	resp, err := m.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai chat completion: no choices")
	}

	choice := resp.Choices[0]
	return &schema.Message{
		Role:    schema.Assistant,
		Content: choice.Message.Content,
		ResponseMeta: &schema.ResponseMeta{
			FinishReason: string(choice.FinishReason),
			Usage: &schema.TokenUsage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			},
		},
	}, nil
}

// Stream wraps a single Generate call in a one-element stream.
func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// BindTools is not supported; the assistant never calls tools.
func (m *ChatModel) BindTools(_ []*schema.ToolInfo) error {
	return errors.New("openai chat model: tools are not supported")
}
