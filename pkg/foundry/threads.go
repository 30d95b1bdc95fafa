package foundry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// CreateThread opens a fresh, empty conversation thread.
func (c *Client) CreateThread(ctx context.Context) (*Thread, error) {
	var thread Thread
	if err := c.do(ctx, http.MethodPost, "/threads", nil, struct{}{}, &thread); err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}
	return &thread, nil
}

// messageParams is the create-message payload.
type messageParams struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CreateMessage appends a message to the thread.
func (c *Client) CreateMessage(ctx context.Context, threadID, role, text string) (*Message, error) {
	if strings.TrimSpace(threadID) == "" {
		return nil, errors.New("thread id is empty")
	}
	if strings.TrimSpace(role) == "" {
		return nil, errors.New("message role is empty")
	}
	var msg Message
	path := "/threads/" + url.PathEscape(threadID) + "/messages"
	if err := c.do(ctx, http.MethodPost, path, nil, messageParams{Role: role, Content: text}, &msg); err != nil {
		return nil, fmt.Errorf("create message on %s: %w", threadID, err)
	}
	return &msg, nil
}

// MessageFilter narrows ListMessages results. Order defaults to ascending;
// Role, when set, keeps only messages authored by that role.
type MessageFilter struct {
	Order ListOrder
	Role  string
}

// ListMessages returns the thread's messages in the requested order. Role
// filtering happens client side since the service does not expose it.
func (c *Client) ListMessages(ctx context.Context, threadID string, filter MessageFilter) ([]Message, error) {
	if strings.TrimSpace(threadID) == "" {
		return nil, errors.New("thread id is empty")
	}
	order := filter.Order
	if order == "" {
		order = OrderAscending
	}

	var messages []Message
	after := ""
	path := "/threads/" + url.PathEscape(threadID) + "/messages"
	for {
		query := url.Values{"limit": {listPageSize}, "order": {string(order)}}
		if after != "" {
			query.Set("after", after)
		}
		var page listPage[Message]
		if err := c.do(ctx, http.MethodGet, path, query, nil, &page); err != nil {
			return nil, fmt.Errorf("list messages on %s: %w", threadID, err)
		}
		messages = append(messages, page.Data...)
		if !page.HasMore || page.LastID == "" {
			break
		}
		after = page.LastID
	}

	role := strings.TrimSpace(filter.Role)
	if role == "" {
		return messages, nil
	}
	filtered := messages[:0]
	for _, msg := range messages {
		if msg.Role == role {
			filtered = append(filtered, msg)
		}
	}
	return filtered, nil
}

// LatestAssistantText returns the newest assistant text on the thread, or
// the empty string when the assistant has not replied yet.
func (c *Client) LatestAssistantText(ctx context.Context, threadID string) (string, error) {
	messages, err := c.ListMessages(ctx, threadID, MessageFilter{Order: OrderAscending, Role: "assistant"})
	if err != nil {
		return "", err
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if text := messages[i].Text(); text != "" {
			return text, nil
		}
	}
	return "", nil
}
