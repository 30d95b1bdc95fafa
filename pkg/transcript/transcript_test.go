package transcript

import (
	"testing"
	"time"
)

func TestAppendAndListByRole(t *testing.T) {
	tr, err := New("thread-1")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	messages := []Message{
		{Role: "user", Text: "What tables are available?"},
		{Role: "assistant", Text: "Customer, Product, Orders", ToolCalls: []ToolCall{{Name: "list_tables"}}},
		{Role: "user", Text: "Describe Customer"},
	}
	for _, msg := range messages {
		if err := tr.Append(msg); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	if tr.Len() != 3 {
		t.Fatalf("expected 3 messages, got %d", tr.Len())
	}
	users := tr.List(Filter{Role: "user"})
	if len(users) != 2 || users[1].Text != "Describe Customer" {
		t.Fatalf("role filter broken: %+v", users)
	}
	if tr.ToolCallCount() != 1 {
		t.Fatalf("tool call accounting off: %d", tr.ToolCallCount())
	}
}

func TestAppendRejectsBlankRole(t *testing.T) {
	tr, err := New("thread-1")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := tr.Append(Message{Role: "  ", Text: "hi"}); err == nil {
		t.Fatal("expected error for blank role")
	}
}

func TestAppendStampsTimestamp(t *testing.T) {
	tr, err := New("thread-1")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	fixed := time.Unix(1_700_000_000, 0)
	tr.now = func() time.Time { return fixed }
	if err := tr.Append(Message{Role: "user", Text: "hi"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	got := tr.List(Filter{})[0].Timestamp
	if !got.Equal(fixed.UTC()) {
		t.Fatalf("timestamp not stamped: %v", got)
	}
}

func TestResetRebindsThread(t *testing.T) {
	tr, err := New("thread-1")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := tr.Append(Message{Role: "user", Text: "hi", ToolCalls: []ToolCall{{Name: "x"}}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := tr.Reset("thread-2"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if tr.ThreadID() != "thread-2" {
		t.Fatalf("thread id not rebound: %s", tr.ThreadID())
	}
	if tr.Len() != 0 || tr.ToolCallCount() != 0 {
		t.Fatal("history survived reset")
	}
	if err := tr.Reset(" "); err == nil {
		t.Fatal("expected error for blank thread id")
	}
}

func TestListReturnsClones(t *testing.T) {
	tr, err := New("thread-1")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := tr.Append(Message{Role: "assistant", Text: "ok", ToolCalls: []ToolCall{{Name: "read_data"}}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	listed := tr.List(Filter{})
	listed[0].ToolCalls[0].Name = "mutated"
	if tr.List(Filter{})[0].ToolCalls[0].Name != "read_data" {
		t.Fatal("List leaked internal slice")
	}
}
