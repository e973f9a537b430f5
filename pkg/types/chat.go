package types

import (
	"encoding/json"
	"time"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// Thread is a conversation. Deleting it cascades to its messages and their
// tool invocations.
type Thread struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ThreadPatch changes thread fields.
type ThreadPatch struct {
	Title *string
}

// Message is one turn of a thread.
type Message struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ToolInvocation is a tool call made while producing a message.
type ToolInvocation struct {
	ID        string          `json:"id"`
	MessageID string          `json:"message_id"`
	UserID    string          `json:"user_id"`
	ToolName  string          `json:"tool_name"`
	Input     json.RawMessage `json:"input,omitempty"`
	Output    json.RawMessage `json:"output,omitempty"`
	Status    string          `json:"status"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ToolInvocationPatch changes the outcome fields of a tool invocation.
type ToolInvocationPatch struct {
	Output *json.RawMessage
	Status *string
	Error  *string
}

// MessageWithToolCalls nests a message's tool invocations under it.
type MessageWithToolCalls struct {
	Message
	ToolCalls []ToolInvocation `json:"tool_calls"`
}

// ThreadWithMessages nests a thread's messages, oldest first, under it.
type ThreadWithMessages struct {
	Thread
	Messages []MessageWithToolCalls `json:"messages"`
}
