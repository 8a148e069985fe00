package agent

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	ctxengine "github.com/user/chatd/internal/context"
	"github.com/user/chatd/internal/tool"
	"github.com/user/chatd/internal/types"
	"github.com/user/chatd/pkg/llm"
)

// mockProvider returns a pre-configured sequence of events per call.
type mockProvider struct {
	mu        sync.Mutex
	responses [][]llm.Event
	callCount int
}

func (m *mockProvider) StreamCompletion(_ context.Context, _ string, _ []llm.Message, _ []llm.Tool) (<-chan llm.Event, error) {
	m.mu.Lock()
	idx := m.callCount
	m.callCount++
	m.mu.Unlock()

	ch := make(chan llm.Event, 16)
	go func() {
		defer close(ch)
		if idx >= len(m.responses) {
			ch <- llm.Event{Type: llm.EventText, Text: "fallback"}
			return
		}
		for _, ev := range m.responses[idx] {
			ch <- ev
		}
	}()
	return ch, nil
}

// echoTool returns its "text" argument verbatim, wrapped as a JSON result.
type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "echo" }
func (echoTool) Parameters() []byte  { return []byte(`{"type":"object"}`) }
func (echoTool) Execute(_ context.Context, argsJSON string) (string, error) {
	var args struct {
		Text string `json:"text"`
	}
	json.Unmarshal([]byte(argsJSON), &args)
	out, _ := json.Marshal(map[string]string{"echoed": args.Text})
	return string(out), nil
}

func newEngine(t *testing.T) *ctxengine.Engine {
	t.Helper()
	e, err := ctxengine.New("gpt-4", 128000, 4096)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestAgentRunSimpleResponse(t *testing.T) {
	provider := &mockProvider{
		responses: [][]llm.Event{
			{{Type: llm.EventText, Text: "Hello! "}, {Type: llm.EventText, Text: "How can I help?"}},
		},
	}
	registry := tool.NewRegistry()
	a := New(provider, newEngine(t), registry, 10)

	chat := &types.Chat{ID: types.NewChatID(), Messages: []types.Message{{Role: types.RoleUser, Content: "hi"}}}

	var got []Event
	produced, err := a.Run(context.Background(), chat, func(ev Event) { got = append(got, ev) })
	if err != nil {
		t.Fatal(err)
	}
	if len(produced) != 1 || produced[0].Content != "Hello! How can I help?" {
		t.Fatalf("unexpected produced messages: %+v", produced)
	}
	last := got[len(got)-1]
	if last.Type != EventDone || last.Text != "Hello! How can I help?" {
		t.Errorf("expected terminal done event, got %+v", last)
	}
}

func TestAgentRunWithToolCall(t *testing.T) {
	provider := &mockProvider{
		responses: [][]llm.Event{
			{
				{Type: llm.EventToolCallStart, Index: 0, ID: "tc1", Name: "echo"},
				{Type: llm.EventToolCallDelta, Index: 0, Arguments: `{"text"`},
				{Type: llm.EventToolCallDelta, Index: 0, Arguments: `:"world"}`},
			},
			{{Type: llm.EventText, Text: "The echo returned: world"}},
		},
	}
	registry := tool.NewRegistry()
	registry.Register(echoTool{})
	a := New(provider, newEngine(t), registry, 10)

	chat := &types.Chat{ID: types.NewChatID(), Messages: []types.Message{{Role: types.RoleUser, Content: "echo world"}}}

	var toolResultSeen bool
	produced, err := a.Run(context.Background(), chat, func(ev Event) {
		if ev.Type == EventToolResult {
			toolResultSeen = true
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if !toolResultSeen {
		t.Error("expected a tool_result event")
	}
	// assistant(tool_call) + tool(result) + assistant(final) = 3
	if len(produced) != 3 {
		t.Fatalf("expected 3 produced messages, got %d: %+v", len(produced), produced)
	}
	if produced[0].ToolCalls[0].Arguments != `{"text":"world"}` {
		t.Errorf("expected assembled tool call arguments, got %q", produced[0].ToolCalls[0].Arguments)
	}
	if produced[2].Content != "The echo returned: world" {
		t.Errorf("expected final assistant message, got %q", produced[2].Content)
	}
}

func TestAgentRunMaxStepsExceeded(t *testing.T) {
	loopResponse := []llm.Event{
		{Type: llm.EventToolCallStart, Index: 0, ID: "tc1", Name: "echo", Arguments: `{"text":"loop"}`},
	}
	responses := make([][]llm.Event, 10)
	for i := range responses {
		responses[i] = loopResponse
	}
	provider := &mockProvider{responses: responses}
	registry := tool.NewRegistry()
	registry.Register(echoTool{})
	a := New(provider, newEngine(t), registry, 3)

	chat := &types.Chat{ID: types.NewChatID(), Messages: []types.Message{{Role: types.RoleUser, Content: "loop"}}}
	_, err := a.Run(context.Background(), chat, func(Event) {})
	if err == nil {
		t.Fatal("expected error for max steps exceeded")
	}
}

func TestAgentRunUnknownTool(t *testing.T) {
	provider := &mockProvider{
		responses: [][]llm.Event{
			{{Type: llm.EventToolCallStart, Index: 0, ID: "tc1", Name: "does_not_exist", Arguments: `{}`}},
			{{Type: llm.EventText, Text: "done"}},
		},
	}
	registry := tool.NewRegistry()
	a := New(provider, newEngine(t), registry, 10)

	chat := &types.Chat{ID: types.NewChatID(), Messages: []types.Message{{Role: types.RoleUser, Content: "x"}}}
	produced, err := a.Run(context.Background(), chat, func(Event) {})
	if err != nil {
		t.Fatal(err)
	}
	if len(produced) < 2 || produced[1].Role != types.RoleTool {
		t.Fatalf("expected a tool-result message for the unknown tool, got %+v", produced)
	}
}

func TestAgentRunStreamError(t *testing.T) {
	provider := &mockProvider{
		responses: [][]llm.Event{
			{{Type: llm.EventError, Err: context.DeadlineExceeded}},
		},
	}
	registry := tool.NewRegistry()
	a := New(provider, newEngine(t), registry, 10)

	chat := &types.Chat{ID: types.NewChatID(), Messages: []types.Message{{Role: types.RoleUser, Content: "x"}}}
	_, err := a.Run(context.Background(), chat, func(Event) {})
	if err == nil {
		t.Fatal("expected error from stream error event")
	}
}
