// Package transcript keeps an in-process mirror of one conversation: the
// text exchanged and the tool calls the remote model made along the way.
// It exists for progress summaries and test assertions only; the hosting
// service owns the authoritative thread, and nothing here touches disk.
package transcript

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// Message is one mirrored conversational turn.
type Message struct {
	Role      string
	Text      string
	ToolCalls []ToolCall
	Timestamp time.Time
}

// ToolCall records a tool invocation observed during a run.
type ToolCall struct {
	Name      string
	Arguments string
}

// Filter narrows List results. A zero Filter returns everything in order.
type Filter struct {
	Role  string
	Limit int
}

// Transcript mirrors the conversation on one hosting-service thread.
type Transcript struct {
	mu        sync.RWMutex
	threadID  string
	messages  []Message
	toolCalls int
	now       func() time.Time
}

// New binds a fresh transcript to the given thread id.
func New(threadID string) (*Transcript, error) {
	trimmed := strings.TrimSpace(threadID)
	if trimmed == "" {
		return nil, errors.New("thread id is empty")
	}
	return &Transcript{threadID: trimmed, now: time.Now}, nil
}

// ThreadID returns the hosting-service thread this transcript mirrors.
func (t *Transcript) ThreadID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.threadID
}

// Append records a message. Blank roles are rejected; a zero timestamp is
// stamped with the current time.
func (t *Transcript) Append(msg Message) error {
	if strings.TrimSpace(msg.Role) == "" {
		return errors.New("message role is required")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = t.now().UTC()
	}
	msg.ToolCalls = cloneToolCalls(msg.ToolCalls)
	t.messages = append(t.messages, msg)
	t.toolCalls += len(msg.ToolCalls)
	return nil
}

// List returns messages in append order, filtered by role when set and
// truncated to Limit when positive.
func (t *Transcript) List(filter Filter) []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	role := strings.TrimSpace(filter.Role)
	var result []Message
	for _, msg := range t.messages {
		if role != "" && msg.Role != role {
			continue
		}
		cloned := msg
		cloned.ToolCalls = cloneToolCalls(msg.ToolCalls)
		result = append(result, cloned)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result
}

// Len reports the number of mirrored messages.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// ToolCallCount reports the total tool calls observed on this thread.
func (t *Transcript) ToolCallCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.toolCalls
}

// Reset discards the mirrored history and rebinds to a new thread id, which
// is how the chat `clear` command starts a fresh conversation.
func (t *Transcript) Reset(threadID string) error {
	trimmed := strings.TrimSpace(threadID)
	if trimmed == "" {
		return errors.New("thread id is empty")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.threadID = trimmed
	t.messages = nil
	t.toolCalls = 0
	return nil
}

func cloneToolCalls(calls []ToolCall) []ToolCall {
	if len(calls) == 0 {
		return nil
	}
	dst := make([]ToolCall, len(calls))
	copy(dst, calls)
	return dst
}
