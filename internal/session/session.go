// Package session implements the per-chat actor: it owns a chat's
// conversation state, runs the bounded tool-calling agent loop against
// the LLM, and multicasts streaming events to subscribers with buffered
// replay for the turn in progress.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/user/chatd/internal/agent"
	"github.com/user/chatd/internal/types"
)

// IdleTimeout is how long a session waits without any operation before it
// terminates itself and reclaims its work_dir. A var, not a const, so
// tests can shrink it.
var IdleTimeout = 30 * time.Minute

// State is a read-only snapshot of a session's current fields, returned
// by GetState without exposing the live session internals.
type State struct {
	ID        types.ChatID
	Title     string
	Messages  []types.Message
	CreatedAt time.Time
	Streaming bool
}

// Session is one live chat actor. All fields below this comment are only
// ever touched by the single goroutine running loop — every other method
// communicates with it by sending a command over inbox, which is what
// keeps mutation race-free without locks.
type Session struct {
	id      types.ChatID
	store   types.Store
	agent   *agent.Agent
	workDir string

	inbox    chan any
	done     chan struct{}
	onTerminate   func(types.ChatID)
	nextSubID atomic.Int64

	title     string
	messages  []types.Message
	createdAt time.Time
	subs      map[int64]*Subscriber
	buffer    []Event
	streaming bool
	pending   []cmdSendMessage
}

func newSession(chat *types.Chat, store types.Store, ag *agent.Agent, workDir string, onTerminate func(types.ChatID)) *Session {
	return &Session{
		id:        chat.ID,
		store:     store,
		agent:     ag,
		workDir:   workDir,
		inbox:     make(chan any, 32),
		done:      make(chan struct{}),
		onTerminate:    onTerminate,
		title:     chat.Title,
		messages:  append([]types.Message(nil), chat.Messages...),
		createdAt: chat.CreatedAt,
		subs:      make(map[int64]*Subscriber),
	}
}

// WorkDir returns the session's exclusive temp directory.
func (s *Session) WorkDir() string { return s.workDir }

// Done returns a channel closed once the session has terminated.
func (s *Session) Done() <-chan struct{} { return s.done }

type cmdSendMessage struct {
	ctx     context.Context
	content string
	sub     *Subscriber
}

type cmdSubscribe struct {
	sub   *Subscriber
	reply chan<- *Subscriber
}

type cmdUnsubscribe struct {
	id int64
}

type cmdAddFileContext struct {
	filename string
	reply    chan<- error
}

type cmdGetState struct {
	reply chan<- State
}

type cmdTurnEvent struct {
	ev agent.Event
}

type cmdTurnDone struct {
	produced []types.Message
	err      error
}

type cmdStop struct {
	reply chan<- struct{}
}

// SendMessage appends a user message, attaches sub as a subscriber if
// it's new, and starts the agent loop for this turn in the background.
// It returns once the command has been enqueued, not once the turn
// completes — per the session's async send_message contract.
func (s *Session) SendMessage(ctx context.Context, content string, sub *Subscriber) {
	s.inbox <- cmdSendMessage{ctx: ctx, content: content, sub: sub}
}

// Subscribe attaches sub, replaying the in-progress turn's buffer to it
// first if a turn is streaming. Blocks until attached.
func (s *Session) Subscribe(sub *Subscriber) {
	reply := make(chan *Subscriber, 1)
	s.inbox <- cmdSubscribe{sub: sub, reply: reply}
	<-reply
}

// Unsubscribe detaches a subscriber.
func (s *Session) Unsubscribe(sub *Subscriber) {
	s.inbox <- cmdUnsubscribe{id: sub.id}
}

// NewSubscriber allocates a subscriber handle bound to this session.
func (s *Session) NewSubscriber() *Subscriber {
	return newSubscriber(s.nextSubID.Add(1))
}

// AddFileContext appends the synthesized upload notice message and
// persists it without starting a turn.
func (s *Session) AddFileContext(filename string) error {
	reply := make(chan error, 1)
	s.inbox <- cmdAddFileContext{filename: filename, reply: reply}
	return <-reply
}

// GetState returns a snapshot of the session's current fields.
func (s *Session) GetState() State {
	reply := make(chan State, 1)
	s.inbox <- cmdGetState{reply: reply}
	return <-reply
}

// Stop requests the session terminate, waiting for it to do so.
func (s *Session) Stop() {
	reply := make(chan struct{}, 1)
	select {
	case s.inbox <- cmdStop{reply: reply}:
		<-reply
	case <-s.done:
	}
}

// run is the session's single thread of execution: every field mutation
// happens here, so nothing else needs a lock.
func (s *Session) run() {
	timer := time.NewTimer(IdleTimeout)
	defer timer.Stop()
	defer close(s.done)
	defer func() {
		if s.onTerminate != nil {
			s.onTerminate(s.id)
		}
	}()

	for {
		select {
		case raw := <-s.inbox:
			timer.Reset(IdleTimeout)
			if s.handle(raw) {
				return
			}
		case <-timer.C:
			slog.Info("session idle timeout", "chat_id", string(s.id))
			return
		}
	}
}

// handle processes one command and reports whether the session should
// terminate after it.
func (s *Session) handle(raw any) bool {
	switch cmd := raw.(type) {
	case cmdSendMessage:
		s.onSendMessage(cmd)
	case cmdSubscribe:
		s.onSubscribe(cmd)
	case cmdUnsubscribe:
		delete(s.subs, cmd.id)
	case cmdAddFileContext:
		cmd.reply <- s.onAddFileContext(cmd.filename)
	case cmdGetState:
		cmd.reply <- s.snapshot()
	case cmdTurnEvent:
		s.onTurnEvent(cmd.ev)
	case cmdTurnDone:
		s.onTurnDone(cmd)
	case cmdStop:
		cmd.reply <- struct{}{}
		return true
	}
	return false
}

func (s *Session) snapshot() State {
	return State{
		ID:        s.id,
		Title:     s.title,
		Messages:  append([]types.Message(nil), s.messages...),
		CreatedAt: s.createdAt,
		Streaming: s.streaming,
	}
}

func (s *Session) onSubscribe(cmd cmdSubscribe) {
	s.subs[cmd.sub.id] = cmd.sub
	cmd.sub.send(Frame{Event: &Event{Type: eventConnected}})
	if s.streaming {
		for _, ev := range s.buffer {
			ev := ev
			cmd.sub.send(Frame{Event: &ev})
		}
	}
	cmd.reply <- cmd.sub
}

func (s *Session) onAddFileContext(filename string) error {
	content := fmt.Sprintf("[File uploaded to working directory: %s] - You can use commands like `cat`, `head`, or `ls` to inspect it.", filename)
	s.messages = append(s.messages, types.Message{Role: types.RoleUser, Content: content})
	return s.persist()
}

func (s *Session) onSendMessage(cmd cmdSendMessage) {
	if cmd.sub != nil {
		s.subs[cmd.sub.id] = cmd.sub
	}

	// Two concurrent sends serialize in arrival order: the second doesn't
	// start its turn until the first's has fully completed.
	if s.streaming {
		s.pending = append(s.pending, cmd)
		return
	}

	if s.title == types.DefaultTitle && len(s.messages) == 0 {
		s.title = truncateTitle(cmd.content)
		if err := s.store.UpdateTitle(context.Background(), s.id, s.title); err != nil {
			slog.Error("update title", "chat_id", string(s.id), "error", err)
		}
	}

	s.messages = append(s.messages, types.Message{Role: types.RoleUser, Content: cmd.content})
	if err := s.persist(); err != nil {
		slog.Error("persist user message", "chat_id", string(s.id), "error", err)
	}

	s.streaming = true
	s.buffer = nil
	s.broadcastBuffered(Event{Type: eventUserMessage, Content: cmd.content})

	chatSnapshot := &types.Chat{ID: s.id, Title: s.title, CreatedAt: s.createdAt, Messages: append([]types.Message(nil), s.messages...)}
	ctx := cmd.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	go s.runTurn(ctx, chatSnapshot)
}

// runTurn drives the agent loop from a separate goroutine, never touching
// session fields directly — every event it observes is forwarded back
// into the session's own inbox so that all state mutation still happens
// on the single actor thread.
func (s *Session) runTurn(ctx context.Context, chat *types.Chat) {
	produced, err := s.agent.Run(ctx, chat, func(ev agent.Event) {
		s.inbox <- cmdTurnEvent{ev: ev}
	})
	s.inbox <- cmdTurnDone{produced: produced, err: err}
}

func (s *Session) onTurnEvent(ev agent.Event) {
	switch ev.Type {
	case agent.EventText:
		s.broadcastBuffered(Event{Type: eventTextDelta, Text: ev.Text})
	case agent.EventToolCall:
		s.broadcastBuffered(Event{Type: eventToolCall, ToolCallID: ev.ToolCallID, ToolName: ev.ToolName, Input: toInput(ev.ToolArgs)})
	case agent.EventToolResult:
		s.broadcastBuffered(Event{Type: eventToolResult, ToolCallID: ev.ToolCallID, Output: toInput(ev.ToolResult)})
	}
}

func (s *Session) onTurnDone(cmd cmdTurnDone) {
	s.messages = append(s.messages, cmd.produced...)
	if err := s.persist(); err != nil {
		slog.Error("persist turn result", "chat_id", string(s.id), "error", err)
	}

	if cmd.err != nil {
		s.broadcastBuffered(Event{Type: eventError, Message: cmd.err.Error()})
	}

	s.streaming = false
	for _, sub := range s.subs {
		sub.send(Frame{Done: true})
	}

	if len(s.pending) > 0 {
		next := s.pending[0]
		s.pending = s.pending[1:]
		s.onSendMessage(next)
	}
}

func (s *Session) broadcastBuffered(ev Event) {
	s.buffer = append(s.buffer, ev)
	for _, sub := range s.subs {
		sub.send(Frame{Event: &ev})
	}
}

func (s *Session) persist() error {
	return s.store.SaveMessages(context.Background(), s.id, s.messages)
}

func truncateTitle(content string) string {
	r := []rune(content)
	if len(r) <= 50 {
		return content
	}
	return string(r[:50])
}
