package domain

import "strings"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

type ContentPartType string

const (
	PartText  ContentPartType = "text"
	PartImage ContentPartType = "image"
)

// ContentPart is one block of a multimodal message. Data holds base64 image bytes.
type ContentPart struct {
	Type      ContentPartType `json:"type"`
	Text      string          `json:"text,omitempty"`
	MediaType string          `json:"media_type,omitempty"`
	Data      string          `json:"data,omitempty"`
}

type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type Message struct {
	Role       Role          `json:"role"`
	Content    string        `json:"content,omitempty"`
	Parts      []ContentPart `json:"parts,omitempty"`
	ToolCalls  []ToolCall    `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

// Text returns the plain content, or the first text part of a multimodal message.
func (m Message) Text() string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	for _, p := range m.Parts {
		if p.Type == PartText {
			return p.Text
		}
	}
	return ""
}

func UserText(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

func AssistantText(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

// ConversationTurn is a visible message of the dialogue.
type ConversationTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ToolDefinition describes a callable tool with a JSON schema for its input.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// ToolChoice values understood by chat model adapters.
const (
	ToolChoiceAuto     = "auto"
	ToolChoiceRequired = "required"
)

type ChatRequest struct {
	System      string
	Messages    []Message
	Tools       []ToolDefinition
	ToolChoice  string
	Temperature float64
	MaxTokens   int
	Stop        []string
}

type ChatResponse struct {
	Text             string
	ToolCalls        []ToolCall
	StopReason       string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// FirstToolCall returns the first requested tool call, if any.
func (r *ChatResponse) FirstToolCall() (ToolCall, bool) {
	if r == nil || len(r.ToolCalls) == 0 {
		return ToolCall{}, false
	}
	return r.ToolCalls[0], true
}

func (r *ChatResponse) TrimmedText() string {
	if r == nil {
		return ""
	}
	return strings.TrimSpace(r.Text)
}

// SessionView is the client-facing state of a docent session.
type SessionView struct {
	ID           string             `json:"id"`
	Card         *Card              `json:"card,omitempty"`
	Conversation []ConversationTurn `json:"conversation"`
}
