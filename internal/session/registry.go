package session

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/user/chatd/internal/agent"
	"github.com/user/chatd/internal/apperror"
	ctxengine "github.com/user/chatd/internal/context"
	"github.com/user/chatd/internal/executor"
	"github.com/user/chatd/internal/tool"
	"github.com/user/chatd/internal/types"
	"github.com/user/chatd/pkg/llm"
)

// Registry looks up the live session for a chat-id, lazily spawning one
// when absent. Session restart policy on crash is deliberately "do not
// auto-restart" — state on disk is intact, and the next request
// reconstitutes a fresh session.
type Registry struct {
	store       types.Store
	provider    llm.Provider
	engine      *ctxengine.Engine
	exec        *executor.Executor
	maxSteps    int
	workRoot    string

	mu       sync.Mutex
	sessions map[types.ChatID]*Session
}

// NewRegistry creates a Registry. workRoot is the parent directory under
// which each session gets its own temp work_dir.
func NewRegistry(store types.Store, provider llm.Provider, engine *ctxengine.Engine, exec *executor.Executor, maxSteps int, workRoot string) *Registry {
	return &Registry{
		store:    store,
		provider: provider,
		engine:   engine,
		exec:     exec,
		maxSteps: maxSteps,
		workRoot: workRoot,
		sessions: make(map[types.ChatID]*Session),
	}
}

// GetOrStart returns the live session for id, spawning one from the
// Store's record (or a freshly created one, titled "Chat <id>", if the
// Store has none) if it isn't already running.
func (r *Registry) GetOrStart(ctx context.Context, id types.ChatID) (*Session, error) {
	r.mu.Lock()
	if s, ok := r.sessions[id]; ok {
		r.mu.Unlock()
		return s, nil
	}
	r.mu.Unlock()

	chat, err := r.store.Get(ctx, id)
	if err != nil {
		if !apperror.Is(err, apperror.ErrNotFound) {
			return nil, fmt.Errorf("load chat: %w", err)
		}
		chat, err = r.store.Create(ctx, id, fmt.Sprintf("Chat %s", id))
		if err != nil {
			return nil, fmt.Errorf("create chat record: %w", err)
		}
	}

	if err := os.MkdirAll(r.workRoot, 0o755); err != nil {
		return nil, fmt.Errorf("ensure work root: %w", err)
	}
	workDir, err := os.MkdirTemp(r.workRoot, "chat-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	tools := tool.NewRegistry()
	tools.Register(tool.NewExecuteCommand(r.exec, workDir))
	ag := agent.New(r.provider, r.engine, tools, r.maxSteps)

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		// Lost the race to spawn; drop the duplicate work dir.
		os.RemoveAll(workDir)
		return s, nil
	}

	s := newSession(chat, r.store, ag, workDir, r.remove)
	r.sessions[id] = s
	go s.run()
	return s, nil
}

// Lookup returns the live session for id without spawning one.
func (r *Registry) Lookup(id types.ChatID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Delete stops the live session (if any) and removes the chat record.
// The record is removed regardless of whether the session stopped
// cleanly — session shutdown is best-effort, persistence is not.
func (r *Registry) Delete(ctx context.Context, id types.ChatID) error {
	if s, ok := r.Lookup(id); ok {
		s.Stop()
	}
	return r.store.Delete(ctx, id)
}

// remove drops id from the registry and reclaims its work_dir. Called by
// a session's own run loop as it terminates (idle timeout or Stop), so it
// must not block on anything that session holds.
func (r *Registry) remove(id types.ChatID) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if ok {
		os.RemoveAll(s.WorkDir())
	}
}

