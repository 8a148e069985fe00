// Package context assembles a token-budgeted prompt from a chat's message
// history, truncating the oldest turns first when the conversation has
// grown past the model's context window.
package context

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/chatd/internal/types"
	"github.com/user/chatd/pkg/llm"
)

// Engine assembles token-budgeted prompts for the LLM.
type Engine struct {
	tokenizer *tiktoken.Tiktoken
	maxTokens int
	reserve   int
	prompt    string
}

// New creates a context engine with the specified token budget.
// model is used to select the appropriate tokenizer (e.g. "gpt-4").
// maxTokens is the model's context window size.
// reserve is the number of tokens to reserve for the model's response.
func New(model string, maxTokens, reserve int) (*Engine, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Fall back to cl100k_base for unknown or custom model names.
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &Engine{
		tokenizer: enc,
		maxTokens: maxTokens,
		reserve:   reserve,
		prompt:    DefaultPrompt,
	}, nil
}

// SetPrompt overrides the system prompt template (text/template syntax,
// fields Time/ChatID/ToolList). Nothing in the daemon calls it; every
// engine it builds uses DefaultPrompt.
func (e *Engine) SetPrompt(tmpl string) { e.prompt = tmpl }

func (e *Engine) countTokens(text string) int {
	return len(e.tokenizer.Encode(text, nil, nil))
}

// PromptData is the template data passed to the system prompt template.
type PromptData struct {
	Time     string
	ChatID   string
	ToolList bool
}

func (e *Engine) buildSystemPrompt(chatID types.ChatID, toolNames []string) (string, error) {
	tmpl, err := template.New("system").Parse(e.prompt)
	if err != nil {
		return "", fmt.Errorf("parsing system prompt template: %w", err)
	}
	var buf bytes.Buffer
	data := PromptData{
		Time:     time.Now().Format(time.RFC3339),
		ChatID:   string(chatID),
		ToolList: len(toolNames) > 0,
	}
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering system prompt template: %w", err)
	}
	return buf.String(), nil
}

// BuildPrompt assembles a token-budgeted prompt from a chat's message
// history. toolNames controls whether the system prompt describes the
// available tool. Messages are kept newest-first while they fit the input
// budget, so the oldest are dropped first on overflow; the walk stops at the
// first message that doesn't fit, and if even the newest one doesn't fit,
// only the system prompt is returned.
func (e *Engine) BuildPrompt(chat *types.Chat, toolNames []string) ([]llm.Message, error) {
	inputBudget := e.maxTokens - e.reserve

	sysPrompt, err := e.buildSystemPrompt(chat.ID, toolNames)
	if err != nil {
		return nil, err
	}
	sysTokens := e.countTokens(sysPrompt)
	remaining := inputBudget - sysTokens

	messageTokens := make([]int, len(chat.Messages))
	for i, msg := range chat.Messages {
		t := e.countTokens(msg.Content)
		for _, tc := range msg.ToolCalls {
			t += e.countTokens(tc.Name)
			t += e.countTokens(tc.Arguments)
		}
		messageTokens[i] = t
	}

	// Walk backward from the most recent message, keeping everything
	// that fits; drop the oldest turns first on overflow.
	keepFrom := len(chat.Messages)
	used := 0
	for i := len(chat.Messages) - 1; i >= 0; i-- {
		if used+messageTokens[i] > remaining {
			break
		}
		used += messageTokens[i]
		keepFrom = i
	}

	kept := chat.Messages[keepFrom:]
	out := make([]llm.Message, 0, 1+len(kept))
	out = append(out, llm.Message{Role: "system", Content: sysPrompt})
	for _, msg := range kept {
		out = append(out, toolMessage(msg))
	}
	return out, nil
}

func toolMessage(msg types.Message) llm.Message {
	out := llm.Message{Role: msg.Role, Content: msg.Content, ToolCallID: msg.ToolCallID}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: llm.FunctionCall{
				Name:      tc.Name,
				Arguments: tc.Arguments,
			},
		})
	}
	return out
}
