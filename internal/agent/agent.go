// Package agent runs the bounded tool-calling loop that turns a user
// message plus conversation history into a finished assistant turn,
// emitting incremental events as the completion streams in.
package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	ctxengine "github.com/user/chatd/internal/context"
	"github.com/user/chatd/internal/tool"
	"github.com/user/chatd/internal/types"
	"github.com/user/chatd/pkg/llm"
)

// EventType distinguishes the kinds of events a turn emits while running.
type EventType string

const (
	EventText       EventType = "text"
	EventToolCall   EventType = "tool_call"
	EventToolResult EventType = "tool_result"
	EventDone       EventType = "done"
	EventError      EventType = "error"
)

// Event is one increment of turn output, handed to the caller's emit
// callback as soon as it's known so it can be fanned out live.
type Event struct {
	Type EventType

	Text string // EventText

	ToolCallID string // EventToolCall, EventToolResult
	ToolName   string // EventToolCall
	ToolArgs   string // EventToolCall
	ToolResult string // EventToolResult

	Err error // EventError
}

// Agent drives the tool-calling loop for a single turn.
type Agent struct {
	provider llm.Provider
	engine   *ctxengine.Engine
	tools    *tool.Registry
	maxSteps int
}

// New creates an Agent bounded to maxSteps LLM round trips per turn.
func New(provider llm.Provider, engine *ctxengine.Engine, tools *tool.Registry, maxSteps int) *Agent {
	return &Agent{provider: provider, engine: engine, tools: tools, maxSteps: maxSteps}
}

// Run executes the agentic loop for one user turn against chat's existing
// history, calling emit for every incremental event, and returns the new
// messages produced (assistant turns and any tool call/result pairs) for
// the caller to persist. chat.Messages must already include the user's
// message; Run does not add it.
func (a *Agent) Run(ctx context.Context, chat *types.Chat, emit func(Event)) ([]types.Message, error) {
	working := append([]types.Message(nil), chat.Messages...)
	var produced []types.Message

	toolNames := a.tools.Names()

	for step := 0; step < a.maxSteps; step++ {
		promptChat := &types.Chat{ID: chat.ID, Messages: working}
		rendered, err := a.engine.BuildPrompt(promptChat, toolNames)
		if err != nil {
			return produced, fmt.Errorf("build prompt: %w", err)
		}

		systemPrompt := rendered[0].Content
		convMessages := rendered[1:]

		events, err := a.provider.StreamCompletion(ctx, systemPrompt, convMessages, a.tools.AsLLMTools())
		if err != nil {
			emit(Event{Type: EventError, Err: err})
			return produced, fmt.Errorf("start completion: %w", err)
		}

		text, calls, err := drain(events, emit)
		if err != nil {
			emit(Event{Type: EventError, Err: err})
			return produced, err
		}

		if len(calls) == 0 {
			assistantMsg := types.Message{Role: types.RoleAssistant, Content: text.String()}
			working = append(working, assistantMsg)
			produced = append(produced, assistantMsg)
			emit(Event{Type: EventDone, Text: text.String()})
			return produced, nil
		}

		toolCallRecords := make([]types.ToolCallRecord, 0, len(calls))
		for _, c := range calls {
			toolCallRecords = append(toolCallRecords, types.ToolCallRecord{ID: c.id, Name: c.name, Arguments: c.args.String()})
		}
		assistantMsg := types.Message{Role: types.RoleAssistant, Content: text.String(), ToolCalls: toolCallRecords}
		working = append(working, assistantMsg)
		produced = append(produced, assistantMsg)

		for _, c := range calls {
			args := c.args.String()
			emit(Event{Type: EventToolCall, ToolCallID: c.id, ToolName: c.name, ToolArgs: args})

			result := a.execute(ctx, c.name, args)
			emit(Event{Type: EventToolResult, ToolCallID: c.id, ToolResult: result})

			resultMsg := types.Message{Role: types.RoleTool, ToolCallID: c.id, Content: result}
			working = append(working, resultMsg)
			produced = append(produced, resultMsg)
		}
	}

	err := errMaxSteps
	emit(Event{Type: EventError, Err: err})
	return produced, err
}

// errMaxSteps is the error surfaced when the agent loop exhausts its step
// budget without the model producing a final text response. Its message
// is what subscribers see verbatim in the terminal error event.
var errMaxSteps = fmt.Errorf("Max steps reached")

func (a *Agent) execute(ctx context.Context, name, args string) string {
	t, ok := a.tools.Get(name)
	if !ok {
		return fmt.Sprintf(`{"success":false,"error":"unknown tool %q"}`, name)
	}
	result, err := t.Execute(ctx, args)
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":%q}`, err.Error())
	}
	return result
}

type textAccumulator struct {
	chunks []string
}

func (t *textAccumulator) String() string { return strings.Join(t.chunks, "") }

type toolCallBuilder struct {
	index int
	id    string
	name  string
	args  strings.Builder
}

// drain consumes a StreamCompletion event channel to completion, assembling
// text deltas and tool-call argument fragments. Text deltas are emitted
// live as they arrive; tool-call start/delta events only accumulate — per
// the wire protocol, subscribers never see a tool call until its
// arguments are fully assembled. Tool calls are returned in index order,
// matching the order the model announced them.
func drain(events <-chan llm.Event, emit func(Event)) (*textAccumulator, []*toolCallBuilder, error) {
	text := &textAccumulator{}
	byIndex := make(map[int]*toolCallBuilder)

	for ev := range events {
		switch ev.Type {
		case llm.EventText:
			text.chunks = append(text.chunks, ev.Text)
			emit(Event{Type: EventText, Text: ev.Text})
		case llm.EventToolCallStart:
			b := &toolCallBuilder{index: ev.Index, id: ev.ID, name: ev.Name}
			if ev.Arguments != "" {
				b.args.WriteString(ev.Arguments)
			}
			byIndex[ev.Index] = b
		case llm.EventToolCallDelta:
			b, ok := byIndex[ev.Index]
			if !ok {
				b = &toolCallBuilder{index: ev.Index}
				byIndex[ev.Index] = b
			}
			b.args.WriteString(ev.Arguments)
		case llm.EventError:
			return text, nil, fmt.Errorf("completion stream: %w", ev.Err)
		}
	}

	calls := make([]*toolCallBuilder, 0, len(byIndex))
	for _, b := range byIndex {
		calls = append(calls, b)
	}
	sort.Slice(calls, func(i, j int) bool { return calls[i].index < calls[j].index })
	return text, calls, nil
}
