package llm

import (
	"context"
	"testing"
)

// MockProvider is a test double that satisfies the Provider interface.
type MockProvider struct {
	StreamFunc func(ctx context.Context, systemPrompt string, messages []Message, tools []Tool) (<-chan Event, error)
}

func (m *MockProvider) StreamCompletion(ctx context.Context, systemPrompt string, messages []Message, tools []Tool) (<-chan Event, error) {
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, systemPrompt, messages, tools)
	}
	ch := make(chan Event, 1)
	ch <- Event{Type: EventText, Text: "mock stream"}
	close(ch)
	return ch, nil
}

func TestProviderInterface(t *testing.T) {
	var provider Provider = &MockProvider{}
	ctx := context.Background()
	messages := []Message{{Role: "user", Content: "test"}}

	stream, err := provider.StreamCompletion(ctx, "", messages, nil)
	if err != nil {
		t.Fatal(err)
	}
	ev := <-stream
	if ev.Type != EventText {
		t.Errorf("expected a text event, got %q", ev.Type)
	}
	if ev.Text == "" {
		t.Error("expected non-empty text delta")
	}
	if _, open := <-stream; open {
		t.Error("expected the stream to close after its single event")
	}
}

func TestMockProviderCustomToolCall(t *testing.T) {
	mock := &MockProvider{
		StreamFunc: func(ctx context.Context, systemPrompt string, messages []Message, tools []Tool) (<-chan Event, error) {
			ch := make(chan Event, 3)
			ch <- Event{Type: EventToolCallStart, Index: 0, ID: "call_1", Name: "execute_command"}
			ch <- Event{Type: EventToolCallDelta, Index: 0, Arguments: `{"command"`}
			ch <- Event{Type: EventToolCallDelta, Index: 0, Arguments: `:"ls"}`}
			close(ch)
			return ch, nil
		},
	}

	var provider Provider = mock
	ctx := context.Background()
	messages := []Message{{Role: "user", Content: "hello"}}

	stream, err := provider.StreamCompletion(ctx, "", messages, nil)
	if err != nil {
		t.Fatal(err)
	}

	var start Event
	var args string
	for ev := range stream {
		switch ev.Type {
		case EventToolCallStart:
			start = ev
		case EventToolCallDelta:
			args += ev.Arguments
		}
	}
	if start.ID != "call_1" || start.Name != "execute_command" {
		t.Errorf("expected start event for call_1/execute_command, got %+v", start)
	}
	if args != `{"command":"ls"}` {
		t.Errorf("expected assembled arguments {\"command\":\"ls\"}, got %q", args)
	}
}

func TestMockProviderCustomStream(t *testing.T) {
	mock := &MockProvider{
		StreamFunc: func(ctx context.Context, systemPrompt string, messages []Message, tools []Tool) (<-chan Event, error) {
			ch := make(chan Event, 3)
			ch <- Event{Type: EventText, Text: "hello "}
			ch <- Event{Type: EventText, Text: "world"}
			ch <- Event{Type: EventText, Text: "!"}
			close(ch)
			return ch, nil
		},
	}

	var provider Provider = mock
	ctx := context.Background()
	messages := []Message{{Role: "user", Content: "test"}}

	stream, err := provider.StreamCompletion(ctx, "", messages, nil)
	if err != nil {
		t.Fatal(err)
	}

	var accumulated string
	for ev := range stream {
		accumulated += ev.Text
	}
	if accumulated != "hello world!" {
		t.Errorf("expected 'hello world!', got %q", accumulated)
	}
}
