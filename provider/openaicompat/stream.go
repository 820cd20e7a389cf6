package openaicompat

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	tunacode "github.com/ryumacodes/tunacode"
)

// --- SSE wire types ---

type streamChunk struct {
	Choices []streamChoice `json:"choices"`
	Usage   *wireUsage     `json:"usage"`
}

type streamChoice struct {
	Delta *streamDelta `json:"delta"`
}

type streamDelta struct {
	Content          string            `json:"content"`
	ReasoningContent string            `json:"reasoning_content"`
	ToolCalls        []streamToolDelta `json:"tool_calls"`
}

type streamToolDelta struct {
	Index    int          `json:"index"`
	ID       string       `json:"id"`
	Function wireFunction `json:"function"`
}

// toolAccumulator assembles a tool call from its argument fragments.
type toolAccumulator struct {
	id   string
	name string
	args strings.Builder
}

// streamSSE consumes an OpenAI server-sent-event stream, forwarding text
// deltas into ch and assembling the final node (text, thoughts, tool calls,
// usage). ch is closed before returning.
func streamSSE(ctx context.Context, provider string, body io.Reader, ch chan<- string) (tunacode.ChatResponse, error) {
	defer close(ch)

	var (
		content  strings.Builder
		thinking strings.Builder
		tools    []*toolAccumulator
		usage    tunacode.CallUsage
	)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return tunacode.ChatResponse{}, err
		}
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok || data == "[DONE]" {
			continue
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Skip malformed keep-alive or vendor extension lines.
			continue
		}
		if chunk.Usage != nil {
			usage.PromptTokens = chunk.Usage.PromptTokens
			usage.CompletionTokens = chunk.Usage.CompletionTokens
			if chunk.Usage.PromptTokensDetails != nil {
				usage.CachedTokens = chunk.Usage.PromptTokensDetails.CachedTokens
			}
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta == nil {
			continue
		}
		delta := chunk.Choices[0].Delta

		if delta.Content != "" {
			content.WriteString(delta.Content)
			select {
			case ch <- delta.Content:
			case <-ctx.Done():
				return tunacode.ChatResponse{}, ctx.Err()
			}
		}
		if delta.ReasoningContent != "" {
			thinking.WriteString(delta.ReasoningContent)
		}
		for _, td := range delta.ToolCalls {
			for td.Index >= len(tools) {
				tools = append(tools, &toolAccumulator{})
			}
			acc := tools[td.Index]
			if td.ID != "" {
				acc.id = td.ID
			}
			if td.Function.Name != "" {
				acc.name = td.Function.Name
			}
			acc.args.WriteString(td.Function.Arguments)
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return tunacode.ChatResponse{}, ctx.Err()
		}
		return tunacode.ChatResponse{}, &tunacode.ProviderError{Provider: provider, Message: "stream read: " + err.Error()}
	}

	var out tunacode.ChatResponse
	if thinking.Len() > 0 {
		out.Parts = append(out.Parts, tunacode.ThoughtPart(thinking.String()))
	}
	if content.Len() > 0 {
		out.Parts = append(out.Parts, tunacode.TextPart(content.String()))
	}
	for _, acc := range tools {
		args := acc.args.String()
		if args == "" {
			args = "{}"
		}
		out.Parts = append(out.Parts, tunacode.ToolCallPart(acc.id, acc.name, json.RawMessage(args)))
	}
	out.Usage = usage
	return out, nil
}
