package tunacode

// PrunePlaceholder is the bit-exact content written over pruned tool returns.
const PrunePlaceholder = "[Old tool result content cleared]"

// MessageStore is the ordered, mutable conversation log for one session.
// It is single-writer: only the orchestrator mutates it during a request.
// UI readers take a Snapshot.
//
// The log is append-only except for three sanctioned mutations: pruning
// tool-return content, appending synthetic messages for interventions, and
// patching orphaned tool calls with synthetic returns on error paths.
type MessageStore struct {
	messages []Message
}

// NewMessageStore creates an empty store.
func NewMessageStore() *MessageStore {
	return &MessageStore{}
}

// Append adds a message to the end of the log. O(1).
func (s *MessageStore) Append(m Message) {
	s.messages = append(s.messages, m)
}

// Len returns the number of messages in the log.
func (s *MessageStore) Len() int {
	return len(s.messages)
}

// Messages returns the live message slice. Callers outside the orchestrator
// must use Snapshot instead.
func (s *MessageStore) Messages() []Message {
	return s.messages
}

// Snapshot returns a deep copy of the log safe to hand to renderers.
func (s *MessageStore) Snapshot() []Message {
	out := make([]Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = m
		if len(m.Parts) > 0 {
			out[i].Parts = append([]Part(nil), m.Parts...)
		}
	}
	return out
}

// UserPromptCount returns the number of user-prompt messages in the log.
func (s *MessageStore) UserPromptCount() int {
	var n int
	for _, m := range s.messages {
		if m.Kind == KindUserPrompt {
			n++
		}
	}
	return n
}

// LastResponseText returns the concatenated text parts of the most recent
// model response, or "" when no response exists.
func (s *MessageStore) LastResponseText() string {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Kind == KindModelResponse {
			var text string
			for _, p := range s.messages[i].Parts {
				if p.Kind == PartText {
					text += p.Text
				}
			}
			return text
		}
	}
	return ""
}

// LastToolReturn returns the most recent tool-return part, or nil.
func (s *MessageStore) LastToolReturn() *Part {
	var found *Part
	s.ToolReturnsReverse(func(_, _ int, p *Part) bool {
		found = p
		return false
	})
	return found
}

// ToolReturnsReverse walks tool-return parts newest-first, calling fn with
// the part's (messageIndex, partIndex) address and a pointer into the live
// log. fn returns false to stop the walk.
func (s *MessageStore) ToolReturnsReverse(fn func(msgIdx, partIdx int, p *Part) bool) {
	for i := len(s.messages) - 1; i >= 0; i-- {
		m := &s.messages[i]
		if m.Kind != KindModelRequest && m.Kind != KindModelResponse {
			continue
		}
		for j := len(m.Parts) - 1; j >= 0; j-- {
			if m.Parts[j].Kind != PartToolReturn {
				continue
			}
			if !fn(i, j, &m.Parts[j]) {
				return
			}
		}
	}
}

// PrunePart replaces the content of the tool-return part at
// (msgIdx, partIdx) with placeholder and returns the number of reclaimed
// token estimates. Already-pruned parts and non-tool-return parts reclaim 0.
func (s *MessageStore) PrunePart(msgIdx, partIdx int, placeholder string) int {
	if msgIdx < 0 || msgIdx >= len(s.messages) {
		return 0
	}
	m := &s.messages[msgIdx]
	if partIdx < 0 || partIdx >= len(m.Parts) {
		return 0
	}
	p := &m.Parts[partIdx]
	if p.Kind != PartToolReturn || p.Pruned {
		return 0
	}
	reclaimed := EstimateTokens(p.Content) - EstimateTokens(placeholder)
	if reclaimed < 0 {
		reclaimed = 0
	}
	p.Content = placeholder
	p.Pruned = true
	return reclaimed
}

// OrphanedToolCalls returns tool-call parts that have no matching
// tool-return part anywhere in the log.
func (s *MessageStore) OrphanedToolCalls() []Part {
	returned := make(map[string]bool)
	for _, m := range s.messages {
		for _, p := range m.Parts {
			if p.Kind == PartToolReturn {
				returned[p.ID] = true
			}
		}
	}
	var orphans []Part
	for _, m := range s.messages {
		for _, p := range m.Parts {
			if p.Kind == PartToolCall && !returned[p.ID] {
				orphans = append(orphans, p)
			}
		}
	}
	return orphans
}

// PatchToolMessages appends a synthetic tool-return for every orphaned
// tool call so the call/return pairing invariant survives error paths.
// Returns the number of returns synthesized.
func (s *MessageStore) PatchToolMessages(reason string) int {
	orphans := s.OrphanedToolCalls()
	if len(orphans) == 0 {
		return 0
	}
	parts := make([]Part, len(orphans))
	for i, c := range orphans {
		parts[i] = ToolReturnPart(c.ID, c.Tool, "Tool execution interrupted: "+reason)
	}
	s.Append(ModelRequest(parts...))
	return len(orphans)
}

// EstimateTotalTokens recomputes the token estimate of the whole log.
func (s *MessageStore) EstimateTotalTokens() int {
	var n int
	for _, m := range s.messages {
		n += EstimateMessageTokens(m)
	}
	return n
}
