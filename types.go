package tunacode

import "encoding/json"

// --- Conversation model ---

// MessageKind discriminates the four message variants in a conversation log.
type MessageKind string

const (
	// KindUserPrompt is text typed by the user.
	KindUserPrompt MessageKind = "user"
	// KindSystemPrompt is instruction text injected by the runtime.
	KindSystemPrompt MessageKind = "system"
	// KindModelRequest carries parts sent to the model (tool returns, guidance).
	KindModelRequest MessageKind = "request"
	// KindModelResponse carries parts produced by the model.
	KindModelResponse MessageKind = "response"
)

// PartKind discriminates the part variants inside a request/response message.
type PartKind string

const (
	PartText       PartKind = "text"
	PartToolCall   PartKind = "tool-call"
	PartToolReturn PartKind = "tool-return"
	PartThought    PartKind = "thought"
)

// Part is one element of a ModelRequest or ModelResponse message.
// The Kind field selects which of the remaining fields are meaningful:
// Text for PartText/PartThought; ID+Tool+Args for PartToolCall;
// ID+Tool+Content+Pruned for PartToolReturn.
type Part struct {
	Kind    PartKind        `json:"kind"`
	Text    string          `json:"text,omitempty"`
	ID      string          `json:"id,omitempty"`
	Tool    string          `json:"tool,omitempty"`
	Args    json.RawMessage `json:"args,omitempty"`
	Content string          `json:"content,omitempty"`
	Pruned  bool            `json:"pruned,omitempty"`
}

// Message is one ordered record in the conversation.
// UserPrompt and SystemPrompt carry Text; ModelRequest and ModelResponse
// carry Parts.
type Message struct {
	Kind  MessageKind `json:"kind"`
	Text  string      `json:"text,omitempty"`
	Parts []Part      `json:"parts,omitempty"`
}

// --- Message and part constructors ---

func UserPrompt(text string) Message {
	return Message{Kind: KindUserPrompt, Text: text}
}

func SystemPrompt(text string) Message {
	return Message{Kind: KindSystemPrompt, Text: text}
}

func ModelRequest(parts ...Part) Message {
	return Message{Kind: KindModelRequest, Parts: parts}
}

func ModelResponse(parts ...Part) Message {
	return Message{Kind: KindModelResponse, Parts: parts}
}

func TextPart(s string) Part {
	return Part{Kind: PartText, Text: s}
}

func ThoughtPart(s string) Part {
	return Part{Kind: PartThought, Text: s}
}

func ToolCallPart(id, tool string, args json.RawMessage) Part {
	return Part{Kind: PartToolCall, ID: id, Tool: tool, Args: args}
}

func ToolReturnPart(id, tool, content string) Part {
	return Part{Kind: PartToolReturn, ID: id, Tool: tool, Content: content}
}

// --- LLM protocol types ---

// ToolSchema describes a tool to the model.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema
}

// ChatRequest is one model call: the conversation so far plus the tool set.
type ChatRequest struct {
	Messages []Message    `json:"messages"`
	Tools    []ToolSchema `json:"tools,omitempty"`
}

// ChatResponse is one node produced by the model. Parts may mix text,
// thoughts, and tool calls.
type ChatResponse struct {
	Parts []Part    `json:"parts"`
	Usage CallUsage `json:"usage"`
}

// CallUsage records token consumption and cost for a single model call.
type CallUsage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	CachedTokens     int     `json:"cached_tokens"`
	Cost             float64 `json:"cost"`
}

// Add accumulates u2 into u.
func (u *CallUsage) Add(u2 CallUsage) {
	u.PromptTokens += u2.PromptTokens
	u.CompletionTokens += u2.CompletionTokens
	u.CachedTokens += u2.CachedTokens
	u.Cost += u2.Cost
}

// ToolCalls returns the tool-call parts of the response, in emission order.
func (r ChatResponse) ToolCalls() []Part {
	var calls []Part
	for _, p := range r.Parts {
		if p.Kind == PartToolCall {
			calls = append(calls, p)
		}
	}
	return calls
}

// Text concatenates the text parts of the response.
func (r ChatResponse) Text() string {
	var s string
	for _, p := range r.Parts {
		if p.Kind == PartText {
			s += p.Text
		}
	}
	return s
}
