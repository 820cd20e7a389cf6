package openaicompat

import (
	"encoding/json"

	tunacode "github.com/ryumacodes/tunacode"
)

// --- OpenAI wire types ---

type chatBody struct {
	Model         string         `json:"model"`
	Messages      []wireMessage  `json:"messages"`
	Tools         []wireTool     `json:"tools,omitempty"`
	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireTool struct {
	Type     string         `json:"type"`
	Function wireToolSchema `json:"function"`
}

type wireToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type chatResponse struct {
	Choices []choice   `json:"choices"`
	Usage   *wireUsage `json:"usage"`
}

type choice struct {
	Message *wireResponseMessage `json:"message"`
}

type wireResponseMessage struct {
	Content          string         `json:"content"`
	ReasoningContent string         `json:"reasoning_content"`
	ToolCalls        []wireToolCall `json:"tool_calls"`
}

type wireUsage struct {
	PromptTokens        int                  `json:"prompt_tokens"`
	CompletionTokens    int                  `json:"completion_tokens"`
	PromptTokensDetails *promptTokensDetails `json:"prompt_tokens_details"`
}

type promptTokensDetails struct {
	CachedTokens int `json:"cached_tokens"`
}

// buildBody converts core messages and tool schemas into an OpenAI-format
// request body. Thought parts never leave the process.
func buildBody(req tunacode.ChatRequest, model string) chatBody {
	var msgs []wireMessage

	for _, m := range req.Messages {
		switch m.Kind {
		case tunacode.KindSystemPrompt:
			msgs = append(msgs, wireMessage{Role: "system", Content: m.Text})

		case tunacode.KindUserPrompt:
			msgs = append(msgs, wireMessage{Role: "user", Content: m.Text})

		case tunacode.KindModelResponse:
			msg := wireMessage{Role: "assistant"}
			for _, p := range m.Parts {
				switch p.Kind {
				case tunacode.PartText:
					msg.Content += p.Text
				case tunacode.PartToolCall:
					msg.ToolCalls = append(msg.ToolCalls, wireToolCall{
						ID:   p.ID,
						Type: "function",
						Function: wireFunction{
							Name:      p.Tool,
							Arguments: string(p.Args),
						},
					})
				}
			}
			if msg.Content != "" || len(msg.ToolCalls) > 0 {
				msgs = append(msgs, msg)
			}

		case tunacode.KindModelRequest:
			// Tool returns become role:tool messages; guidance text becomes
			// a synthetic user message.
			for _, p := range m.Parts {
				switch p.Kind {
				case tunacode.PartToolReturn:
					msgs = append(msgs, wireMessage{
						Role:       "tool",
						Content:    p.Content,
						ToolCallID: p.ID,
					})
				case tunacode.PartText:
					msgs = append(msgs, wireMessage{Role: "user", Content: p.Text})
				}
			}
		}
	}

	body := chatBody{Model: model, Messages: msgs}
	for _, t := range req.Tools {
		body.Tools = append(body.Tools, wireTool{
			Type: "function",
			Function: wireToolSchema{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return body
}

// parseResponse converts an OpenAI-format response into a core node.
func parseResponse(resp chatResponse) tunacode.ChatResponse {
	var out tunacode.ChatResponse

	if len(resp.Choices) > 0 && resp.Choices[0].Message != nil {
		m := resp.Choices[0].Message
		if m.ReasoningContent != "" {
			out.Parts = append(out.Parts, tunacode.ThoughtPart(m.ReasoningContent))
		}
		if m.Content != "" {
			out.Parts = append(out.Parts, tunacode.TextPart(m.Content))
		}
		for _, tc := range m.ToolCalls {
			args := json.RawMessage(tc.Function.Arguments)
			if len(args) == 0 {
				args = json.RawMessage(`{}`)
			}
			out.Parts = append(out.Parts, tunacode.ToolCallPart(tc.ID, tc.Function.Name, args))
		}
	}

	if resp.Usage != nil {
		out.Usage = tunacode.CallUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		}
		if resp.Usage.PromptTokensDetails != nil {
			out.Usage.CachedTokens = resp.Usage.PromptTokensDetails.CachedTokens
		}
	}
	return out
}
