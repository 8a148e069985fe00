package context

import (
	"strings"
	"testing"

	"github.com/user/chatd/internal/types"
)

func TestNewEngine(t *testing.T) {
	e, err := New("gpt-4", 128000, 4096)
	if err != nil {
		t.Fatal(err)
	}
	if e == nil {
		t.Fatal("expected non-nil engine")
	}
}

func TestBuildPromptBasic(t *testing.T) {
	e, err := New("gpt-4", 128000, 4096)
	if err != nil {
		t.Fatal(err)
	}

	chat := &types.Chat{
		ID: types.ChatID("test-chat"),
		Messages: []types.Message{
			{Role: types.RoleUser, Content: "hello"},
			{Role: types.RoleAssistant, Content: "hi there"},
		},
	}

	messages, err := e.BuildPrompt(chat, nil)
	if err != nil {
		t.Fatal(err)
	}

	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	if messages[0].Role != "system" {
		t.Errorf("expected system message first, got %q", messages[0].Role)
	}
	if !strings.Contains(messages[0].Content, "test-chat") {
		t.Errorf("expected system prompt to mention chat id, got %q", messages[0].Content)
	}
	if messages[1].Role != types.RoleUser || messages[1].Content != "hello" {
		t.Errorf("unexpected second message: %+v", messages[1])
	}
	if messages[2].Role != types.RoleAssistant || messages[2].Content != "hi there" {
		t.Errorf("unexpected third message: %+v", messages[2])
	}
}

func TestBuildPromptToolCallMessages(t *testing.T) {
	e, err := New("gpt-4", 128000, 4096)
	if err != nil {
		t.Fatal(err)
	}

	chat := &types.Chat{
		ID: types.ChatID("test-chat"),
		Messages: []types.Message{
			{Role: types.RoleUser, Content: "run echo"},
			{Role: types.RoleAssistant, ToolCalls: []types.ToolCallRecord{
				{ID: "tc1", Name: "execute_command", Arguments: `{"command":"echo hi"}`},
			}},
			{Role: types.RoleTool, ToolCallID: "tc1", Content: "hi\n"},
			{Role: types.RoleAssistant, Content: "done"},
		},
	}

	messages, err := e.BuildPrompt(chat, []string{"execute_command"})
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != 5 {
		t.Fatalf("expected 5 messages (system + 4), got %d", len(messages))
	}
	if len(messages[2].ToolCalls) != 1 || messages[2].ToolCalls[0].Function.Name != "execute_command" {
		t.Errorf("expected tool call assembled onto assistant message, got %+v", messages[2])
	}
	if messages[3].ToolCallID != "tc1" {
		t.Errorf("expected tool result message to carry tool_call_id, got %+v", messages[3])
	}
	if !strings.Contains(messages[0].Content, "execute_command") {
		t.Errorf("expected system prompt to mention the tool when toolNames is non-empty")
	}
}

func TestBuildPromptBudgetTruncationKeepsMostRecent(t *testing.T) {
	// Tiny budget: only room for a handful of messages.
	e, err := New("gpt-4", 500, 100)
	if err != nil {
		t.Fatal(err)
	}

	chat := &types.Chat{ID: types.ChatID("test-chat")}
	for i := 0; i < 50; i++ {
		chat.Messages = append(chat.Messages, types.Message{
			Role:    types.RoleUser,
			Content: "This is a message that takes up tokens in the context window budget.",
		})
	}
	// Mark the final message distinctly so we can verify it survives truncation.
	chat.Messages[len(chat.Messages)-1].Content = "the most recent message"

	messages, err := e.BuildPrompt(chat, nil)
	if err != nil {
		t.Fatal(err)
	}

	if len(messages) >= 51 {
		t.Errorf("expected truncation, got %d messages for 50 history entries", len(messages))
	}
	if len(messages) < 1 {
		t.Fatal("expected at least the system prompt")
	}
	last := messages[len(messages)-1]
	if last.Content != "the most recent message" {
		t.Errorf("expected the most recent message to survive truncation, got %q", last.Content)
	}
}
