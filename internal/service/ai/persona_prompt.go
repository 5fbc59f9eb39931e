package ai

import (
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/wa-mentor/backend/internal/model/chat"
	"github.com/zhouzirui/wa-mentor/backend/internal/model/persona"
)

const (
	referenceHeading = "Reference material"
	referenceRule    = "Use the reference material below when it is relevant to the question. If it does not cover the question, answer from your own experience and do not invent citations."
)

// Chain input keys.
const (
	keySystem  = "system"
	keyHistory = "history"
	keyQuery   = "query"
)

func newPromptTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{"+keySystem+"}"),
		schema.MessagesPlaceholder(keyHistory, true),
		schema.UserMessage("{"+keyQuery+"}"),
	)
}

// Assemble builds the chain input for one completion: the persona
// instructions, an optional reference block, prior turns and the question.
func Assemble(p *persona.Persona, context string, history []chat.Turn, question string) map[string]any {
	return map[string]any{
		keySystem:  BuildSystemPrompt(p, context),
		keyHistory: buildHistoryMessages(history),
		keyQuery:   question,
	}
}

// BuildSystemPrompt renders the system message. The reference block is only
// present when context is non-empty.
func BuildSystemPrompt(p *persona.Persona, context string) string {
	var instructions string
	if p != nil {
		instructions = strings.TrimSpace(p.Instructions)
	}

	context = strings.TrimSpace(context)
	if context == "" {
		return instructions
	}

	var builder strings.Builder
	builder.WriteString(instructions)
	builder.WriteString("\n\n")
	builder.WriteString(referenceRule)
	builder.WriteString("\n\n")
	builder.WriteString(referenceHeading)
	builder.WriteString(":\n")
	builder.WriteString(context)
	return builder.String()
}

func buildHistoryMessages(turns []chat.Turn) []*schema.Message {
	history := make([]*schema.Message, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(turn.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(turn.Content, nil))
		}
	}
	return history
}
