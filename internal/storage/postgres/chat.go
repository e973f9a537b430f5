package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/scrypster/crmstore/internal/storage"
	"github.com/scrypster/crmstore/pkg/types"
)

const (
	threadColumns         = `id, user_id, title, created_at, updated_at`
	messageColumns        = `id, thread_id, user_id, role, content, created_at`
	toolInvocationColumns = `id, message_id, user_id, tool_name, input, output, status, error, created_at, updated_at`
)

// ChatRepository implements storage.ChatRepository using PostgreSQL.
// It owns threads, their messages and the tool invocations of each message,
// and composes them into nested shapes.
type ChatRepository struct {
	h        Handle
	threads  *table[types.Thread]
	messages *table[types.Message]
	tools    *table[types.ToolInvocation]
}

// NewChatRepository creates a chat repository on h.
func NewChatRepository(h Handle) *ChatRepository {
	return &ChatRepository{
		h: h,
		threads: &table[types.Thread]{
			name:        "threads",
			columns:     threadColumns,
			scan:        scanThread,
			sortable:    map[string]bool{"created_at": true, "updated_at": true, "title": true},
			defaultSort: "updated_at",
			touch:       true,
		},
		messages: &table[types.Message]{
			name:        "messages",
			columns:     messageColumns,
			scan:        scanMessage,
			sortable:    map[string]bool{"created_at": true},
			defaultSort: "created_at",
		},
		tools: &table[types.ToolInvocation]{
			name:        "tool_invocations",
			columns:     toolInvocationColumns,
			scan:        scanToolInvocation,
			sortable:    map[string]bool{"created_at": true},
			defaultSort: "created_at",
			touch:       true,
		},
	}
}

// CreateThread inserts a thread.
func (r *ChatRepository) CreateThread(ctx context.Context, thread *types.Thread) (*types.Thread, error) {
	const op = "postgres: create thread"
	if thread == nil {
		return nil, storage.ErrInvalidInput
	}
	if err := requireUser(op, thread.UserID); err != nil {
		return nil, err
	}

	t := *thread
	stamp(&t.CreatedAt, &t.UpdatedAt)

	return r.threads.insert(ctx, r.h, op,
		[]string{"id", "user_id", "title", "created_at", "updated_at"},
		newID(t.ID), t.UserID, nullableString(t.Title), t.CreatedAt, t.UpdatedAt,
	)
}

// GetThread retrieves a thread by ID. Returns nil when it does not exist.
func (r *ChatRepository) GetThread(ctx context.Context, userID, id string) (*types.Thread, error) {
	return r.threads.get(ctx, r.h, "postgres: get thread", (&where{}).eq("user_id", userID).eq("id", id))
}

// ListThreads returns one page of the user's threads, most recently active
// first by default.
func (r *ChatRepository) ListThreads(ctx context.Context, userID string, opts storage.ListOptions) (*storage.PaginatedResult[types.Thread], error) {
	const op = "postgres: list threads"
	if err := requireUser(op, userID); err != nil {
		return nil, err
	}
	return r.threads.list(ctx, r.h, op, (&where{}).eq("user_id", userID), opts)
}

// UpdateThread applies p to a thread. Returns nil when it does not exist.
func (r *ChatRepository) UpdateThread(ctx context.Context, userID, id string, p types.ThreadPatch) (*types.Thread, error) {
	var set patch
	if p.Title != nil {
		set.set("title", nullableString(*p.Title))
	}
	return r.threads.update(ctx, r.h, "postgres: update thread", &set, (&where{}).eq("user_id", userID).eq("id", id))
}

// DeleteThread removes a thread. Messages and tool invocations cascade.
func (r *ChatRepository) DeleteThread(ctx context.Context, userID, id string) (int64, error) {
	return r.threads.delete(ctx, r.h, "postgres: delete thread", (&where{}).eq("user_id", userID).eq("id", id))
}

// DeleteAllForUser removes every thread the user owns, with their contents.
func (r *ChatRepository) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	const op = "postgres: delete threads for user"
	if err := requireUser(op, userID); err != nil {
		return 0, err
	}
	return r.threads.delete(ctx, r.h, op, (&where{}).eq("user_id", userID))
}

// CreateMessage appends a message to one of the user's threads and bumps the
// thread's updated_at. A thread the user does not own is invalid input.
func (r *ChatRepository) CreateMessage(ctx context.Context, msg *types.Message) (*types.Message, error) {
	const op = "postgres: create message"
	if msg == nil {
		return nil, storage.ErrInvalidInput
	}
	if err := requireUser(op, msg.UserID); err != nil {
		return nil, err
	}
	if msg.ThreadID == "" || msg.Role == "" {
		return nil, fmt.Errorf("%s: %w: thread and role are required", op, storage.ErrInvalidInput)
	}

	m := *msg
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	var created *types.Message
	err := r.h.InTx(ctx, func(tx DBTX) error {
		n, err := execCount(ctx, tx, op, storage.CodeUpdateFailed,
			"UPDATE threads SET updated_at = NOW() WHERE user_id = $1 AND id = $2", m.UserID, m.ThreadID)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%s: %w: thread %s not found", op, storage.ErrInvalidInput, m.ThreadID)
		}

		created, err = r.messages.insert(ctx, tx, op,
			[]string{"id", "thread_id", "user_id", "role", "content", "created_at"},
			newID(m.ID), m.ThreadID, m.UserID, m.Role, m.Content, m.CreatedAt,
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetMessage retrieves a message by ID. Returns nil when it does not exist.
func (r *ChatRepository) GetMessage(ctx context.Context, userID, id string) (*types.Message, error) {
	return r.messages.get(ctx, r.h, "postgres: get message", (&where{}).eq("user_id", userID).eq("id", id))
}

// ListMessages returns one page of a thread's messages, oldest first by
// default.
func (r *ChatRepository) ListMessages(ctx context.Context, userID, threadID string, opts storage.ListOptions) (*storage.PaginatedResult[types.Message], error) {
	const op = "postgres: list messages"
	if err := requireUser(op, userID); err != nil {
		return nil, err
	}
	if opts.SortOrder == "" {
		opts.SortOrder = "asc"
	}
	return r.messages.list(ctx, r.h, op, (&where{}).eq("user_id", userID).eq("thread_id", threadID), opts)
}

// CreateToolInvocation records a tool call made for one of the user's
// messages.
func (r *ChatRepository) CreateToolInvocation(ctx context.Context, inv *types.ToolInvocation) (*types.ToolInvocation, error) {
	const op = "postgres: create tool invocation"
	if inv == nil {
		return nil, storage.ErrInvalidInput
	}
	if err := requireUser(op, inv.UserID); err != nil {
		return nil, err
	}
	if inv.MessageID == "" || inv.ToolName == "" {
		return nil, fmt.Errorf("%s: %w: message and tool name are required", op, storage.ErrInvalidInput)
	}
	if !validJSON(inv.Input) || !validJSON(inv.Output) {
		return nil, fmt.Errorf("%s: %w: input and output must be JSON", op, storage.ErrInvalidInput)
	}

	ti := *inv
	stamp(&ti.CreatedAt, &ti.UpdatedAt)
	if ti.Status == "" {
		ti.Status = "pending"
	}

	// The SELECT ... WHERE EXISTS form inserts nothing for a foreign message.
	query := `
		INSERT INTO tool_invocations (id, message_id, user_id, tool_name, input, output, status, error, created_at, updated_at)
		SELECT $1::text, $2::text, $3::text, $4::text, $5::jsonb, $6::jsonb, $7::text, $8::text, $9::timestamptz, $10::timestamptz
		WHERE EXISTS (SELECT 1 FROM messages WHERE id = $2 AND user_id = $3)
		RETURNING ` + toolInvocationColumns

	created, err := r.tools.insertQuery(ctx, r.h, op, query,
		newID(ti.ID), ti.MessageID, ti.UserID, ti.ToolName, nullableBytes(ti.Input), nullableBytes(ti.Output),
		ti.Status, nullableString(ti.Error), ti.CreatedAt, ti.UpdatedAt,
	)
	if errors.Is(err, storage.ErrNoRowsReturned) {
		return nil, fmt.Errorf("%s: %w: message %s not found", op, storage.ErrInvalidInput, ti.MessageID)
	}
	return created, err
}

// UpdateToolInvocation records the outcome of a tool call. Returns nil when it
// does not exist.
func (r *ChatRepository) UpdateToolInvocation(ctx context.Context, userID, id string, p types.ToolInvocationPatch) (*types.ToolInvocation, error) {
	const op = "postgres: update tool invocation"

	var set patch
	if p.Output != nil {
		if !validJSON(*p.Output) {
			return nil, fmt.Errorf("%s: %w: output must be JSON", op, storage.ErrInvalidInput)
		}
		set.set("output", nullableBytes(*p.Output))
	}
	if p.Status != nil {
		set.set("status", *p.Status)
	}
	if p.Error != nil {
		set.set("error", nullableString(*p.Error))
	}
	return r.tools.update(ctx, r.h, op, &set, (&where{}).eq("user_id", userID).eq("id", id))
}

// ListToolInvocations returns a message's tool invocations in call order.
func (r *ChatRepository) ListToolInvocations(ctx context.Context, userID, messageID string) ([]types.ToolInvocation, error) {
	query := "SELECT " + toolInvocationColumns + ` FROM tool_invocations
		WHERE user_id = $1 AND message_id = $2
		ORDER BY created_at ASC, id ASC`
	return r.tools.query(ctx, r.h, "postgres: list tool invocations", query, userID, messageID)
}

// GetMessageWithToolCalls returns a message with its tool invocations nested,
// or nil when the message does not exist.
func (r *ChatRepository) GetMessageWithToolCalls(ctx context.Context, userID, messageID string) (*types.MessageWithToolCalls, error) {
	msg, err := r.GetMessage(ctx, userID, messageID)
	if err != nil || msg == nil {
		return nil, err
	}
	calls, err := r.ListToolInvocations(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	return &types.MessageWithToolCalls{Message: *msg, ToolCalls: calls}, nil
}

// GetThreadWithMessages returns a thread with all of its messages, oldest
// first, each carrying its tool invocations. Returns nil when the thread does
// not exist.
func (r *ChatRepository) GetThreadWithMessages(ctx context.Context, userID, threadID string) (*types.ThreadWithMessages, error) {
	const op = "postgres: get thread with messages"

	thread, err := r.GetThread(ctx, userID, threadID)
	if err != nil || thread == nil {
		return nil, err
	}

	msgs, err := r.messages.query(ctx, r.h, op,
		"SELECT "+messageColumns+" FROM messages WHERE user_id = $1 AND thread_id = $2 ORDER BY created_at ASC, id ASC",
		userID, threadID)
	if err != nil {
		return nil, err
	}

	out := &types.ThreadWithMessages{Thread: *thread, Messages: make([]types.MessageWithToolCalls, 0, len(msgs))}
	if len(msgs) == 0 {
		return out, nil
	}

	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	calls, err := r.tools.query(ctx, r.h, op,
		"SELECT "+toolInvocationColumns+" FROM tool_invocations WHERE user_id = $1 AND message_id = ANY($2) ORDER BY created_at ASC, id ASC",
		userID, pq.Array(ids))
	if err != nil {
		return nil, err
	}

	byMessage := make(map[string][]types.ToolInvocation, len(msgs))
	for _, c := range calls {
		byMessage[c.MessageID] = append(byMessage[c.MessageID], c)
	}
	for _, m := range msgs {
		tc := byMessage[m.ID]
		if tc == nil {
			tc = []types.ToolInvocation{}
		}
		out.Messages = append(out.Messages, types.MessageWithToolCalls{Message: m, ToolCalls: tc})
	}
	return out, nil
}

func validJSON(b json.RawMessage) bool {
	return len(b) == 0 || json.Valid(b)
}

func scanThread(s scanner) (types.Thread, error) {
	var (
		t     types.Thread
		title sql.NullString
	)
	if err := s.Scan(&t.ID, &t.UserID, &title, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return t, err
	}
	t.Title = title.String
	return t, nil
}

func scanMessage(s scanner) (types.Message, error) {
	var m types.Message
	err := s.Scan(&m.ID, &m.ThreadID, &m.UserID, &m.Role, &m.Content, &m.CreatedAt)
	return m, err
}

func scanToolInvocation(s scanner) (types.ToolInvocation, error) {
	var (
		ti     types.ToolInvocation
		input  sql.NullString
		output sql.NullString
		errMsg sql.NullString
	)
	err := s.Scan(&ti.ID, &ti.MessageID, &ti.UserID, &ti.ToolName, &input, &output, &ti.Status, &errMsg,
		&ti.CreatedAt, &ti.UpdatedAt)
	if err != nil {
		return ti, err
	}
	ti.Input = rawJSON(input)
	ti.Output = rawJSON(output)
	ti.Error = errMsg.String
	return ti, nil
}
