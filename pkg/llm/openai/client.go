// Package openai implements llm.Provider against OpenAI-compatible chat
// completion endpoints, parsing the server-sent event stream incrementally
// rather than buffering a full response.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/user/chatd/pkg/llm"
)

// Client implements llm.Provider for OpenAI-compatible APIs.
type Client struct {
	config     *llm.Config
	httpClient *http.Client
}

// New creates a new OpenAI-compatible client with the given configuration.
func New(config *llm.Config) *Client {
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: 0, // streaming responses are long-lived; rely on ctx for cancellation
		},
	}
}

// chatRequest is the OpenAI chat completions request body.
type chatRequest struct {
	Model       string           `json:"model"`
	Messages    []requestMessage `json:"messages"`
	Tools       []llm.Tool       `json:"tools,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Temperature *float32         `json:"temperature,omitempty"`
	Stream      bool             `json:"stream"`
}

// requestMessage is the OpenAI message format for requests.
type requestMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []llm.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

// streamChunk is one "data: {...}" frame of an OpenAI streaming response.
type streamChunk struct {
	Choices []streamChoice `json:"choices"`
}

type streamChoice struct {
	Delta streamDelta `json:"delta"`
}

type streamDelta struct {
	Content   string           `json:"content"`
	ToolCalls []streamToolCall `json:"tool_calls"`
}

// streamToolCall is a partial tool call frame: present with Name/ID only
// on the first delta for a given Index, then Arguments arrives piecemeal
// on subsequent deltas sharing the same Index.
type streamToolCall struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// StreamCompletion sends a chat completion request with stream:true and
// emits llm.Event values as the server-sent event frames arrive.
func (c *Client) StreamCompletion(ctx context.Context, systemPrompt string, messages []llm.Message, tools []llm.Tool) (<-chan llm.Event, error) {
	reqMessages := make([]requestMessage, 0, len(messages)+1)
	if systemPrompt != "" {
		reqMessages = append(reqMessages, requestMessage{Role: "system", Content: systemPrompt})
	}
	for _, msg := range messages {
		reqMessages = append(reqMessages, requestMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCalls:  msg.ToolCalls,
			ToolCallID: msg.ToolCallID,
		})
	}

	reqBody := chatRequest{
		Model:    c.config.Model,
		Messages: reqMessages,
		Stream:   true,
	}
	if len(tools) > 0 {
		reqBody.Tools = tools
	}
	if c.config.MaxTokens > 0 {
		reqBody.MaxTokens = c.config.MaxTokens
	}
	if c.config.Temperature != 0 {
		temp := c.config.Temperature
		reqBody.Temperature = &temp
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := c.config.BaseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		var errBody bytes.Buffer
		errBody.ReadFrom(resp.Body)
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, errBody.String())
	}

	events := make(chan llm.Event, 16)
	go c.pump(resp.Body, events)
	return events, nil
}

// pump reads the event stream line by line and translates each data frame
// into llm.Events, closing events and the response body when the stream
// ends (successfully, on [DONE], or on error).
func (c *Client) pump(body io.ReadCloser, events chan<- llm.Event) {
	defer close(events)
	defer body.Close()

	// started tracks which index has already emitted its
	// EventToolCallStart, since only the first delta for an index
	// carries the id/name.
	started := make(map[int]bool)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			data, ok = strings.CutPrefix(line, "data:")
			if !ok {
				continue
			}
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			return
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			events <- llm.Event{Type: llm.EventError, Err: fmt.Errorf("parsing stream chunk: %w", err)}
			return
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta

		if delta.Content != "" {
			events <- llm.Event{Type: llm.EventText, Text: delta.Content}
		}

		for _, tc := range delta.ToolCalls {
			if !started[tc.Index] {
				started[tc.Index] = true
				events <- llm.Event{
					Type:  llm.EventToolCallStart,
					Index: tc.Index,
					ID:    tc.ID,
					Name:  tc.Function.Name,
				}
				if tc.Function.Arguments != "" {
					events <- llm.Event{Type: llm.EventToolCallDelta, Index: tc.Index, Arguments: tc.Function.Arguments}
				}
				continue
			}
			events <- llm.Event{Type: llm.EventToolCallDelta, Index: tc.Index, Arguments: tc.Function.Arguments}
		}
	}

	if err := scanner.Err(); err != nil {
		events <- llm.Event{Type: llm.EventError, Err: fmt.Errorf("reading stream: %w", err)}
	}
}
