package tunacode

import (
	"strings"
	"testing"
)

// buildConversation appends two user turns and the given tool returns
// (oldest first) so compaction is eligible to run.
func buildConversation(returns ...string) *MessageStore {
	s := NewMessageStore()
	s.Append(UserPrompt("first question"))
	for i, content := range returns {
		id := string(rune('a' + i))
		s.Append(ModelResponse(ToolCallPart(id, "grep", nil)))
		s.Append(ModelRequest(ToolReturnPart(id, "grep", content)))
	}
	s.Append(UserPrompt("second question"))
	return s
}

func standardCompactor() *Compactor {
	return NewCompactor(func() bool { return false }, nil)
}

func TestCompactStandardMode(t *testing.T) {
	// Two tool returns of 22,500 estimated tokens each: the newest fits
	// inside the 40k protection window, the older one crosses the boundary
	// and is a candidate worth 22.5k ≥ the 20k minimum.
	old := repeat("x", 90_000)
	recent := repeat("y", 90_000)
	s := buildConversation(old, recent)

	reclaimed := standardCompactor().Compact(s)
	if reclaimed == 0 {
		t.Fatal("expected compaction to reclaim tokens")
	}

	var contents []string
	s.ToolReturnsReverse(func(_, _ int, p *Part) bool {
		contents = append(contents, p.Content)
		return true
	})
	// Newest first: recent untouched, old replaced by the exact placeholder.
	if contents[0] != recent {
		t.Error("protected part was pruned")
	}
	if contents[1] != PrunePlaceholder {
		t.Errorf("candidate = %q, want placeholder", contents[1][:min(len(contents[1]), 40)])
	}
}

func TestCompactIdempotent(t *testing.T) {
	s := buildConversation(repeat("x", 90_000), repeat("y", 90_000))
	c := standardCompactor()

	first := c.Compact(s)
	if first == 0 {
		t.Fatal("first pass reclaimed nothing")
	}
	if second := c.Compact(s); second != 0 {
		t.Errorf("second pass reclaimed %d, want 0", second)
	}
}

func TestCompactBoundaryStickyForMixedSizes(t *testing.T) {
	// Newest-first estimates against the 40k protection window:
	// A=39k fits, B=2k crosses the boundary, and the small C=500 and
	// D=600 behind it must stay candidates — the boundary is sticky,
	// a part can never slip back into the protected window.
	d := repeat("d", 2_400)   // 600 tokens, oldest
	c := repeat("c", 2_000)   // 500 tokens
	b := repeat("b", 8_000)   // 2k tokens, crosses the boundary
	a := repeat("a", 156_000) // 39k tokens, newest, protected
	// Pad the candidate sum over the 20k minimum so pruning runs.
	pad := repeat("p", 80_000) // 20k tokens, older still
	s := buildConversation(pad, d, c, b, a)

	if reclaimed := standardCompactor().Compact(s); reclaimed == 0 {
		t.Fatal("expected compaction to reclaim tokens")
	}

	var contents []string
	s.ToolReturnsReverse(func(_, _ int, p *Part) bool {
		contents = append(contents, p.Content)
		return true
	})
	// Newest first: a protected; b, c, d, pad all pruned.
	if contents[0] != a {
		t.Error("protected part was pruned")
	}
	for i, name := range []string{"b", "c", "d", "pad"} {
		if contents[i+1] != PrunePlaceholder {
			t.Errorf("%s not pruned past the boundary", name)
		}
	}
}

func TestCompactBelowMinimumThreshold(t *testing.T) {
	// Candidates sum to ~5k tokens, below the 20k standard minimum:
	// nothing is pruned even though the boundary is crossed.
	returns := make([]string, 9)
	for i := range returns {
		returns[i] = repeat("z", 20_000) // 5k tokens each, 45k total
	}
	s := buildConversation(returns...)

	if reclaimed := standardCompactor().Compact(s); reclaimed != 0 {
		t.Errorf("reclaimed %d below minimum threshold, want 0", reclaimed)
	}
	s.ToolReturnsReverse(func(_, _ int, p *Part) bool {
		if p.Pruned {
			t.Error("part pruned below minimum threshold")
		}
		return true
	})
}

func TestCompactLocalMode(t *testing.T) {
	// Local mode protects only 2k tokens with a 500 minimum.
	old := repeat("x", 4_000)    // 1k tokens
	recent := repeat("y", 8_000) // 2k tokens fills the protection window
	s := buildConversation(old, recent)

	c := NewCompactor(func() bool { return true }, nil)
	if reclaimed := c.Compact(s); reclaimed == 0 {
		t.Fatal("local mode should prune the old return")
	}
	var contents []string
	s.ToolReturnsReverse(func(_, _ int, p *Part) bool {
		contents = append(contents, p.Content)
		return true
	})
	if contents[1] != PrunePlaceholder {
		t.Error("old return not pruned in local mode")
	}
}

func TestCompactRequiresTwoUserTurns(t *testing.T) {
	s := NewMessageStore()
	s.Append(UserPrompt("only question"))
	s.Append(ModelRequest(ToolReturnPart("1", "grep", repeat("x", 200_000))))

	if reclaimed := standardCompactor().Compact(s); reclaimed != 0 {
		t.Errorf("compacted a single-turn conversation, reclaimed %d", reclaimed)
	}
}

func TestCompactNeverTouchesPromptsOrText(t *testing.T) {
	long := repeat("p", 200_000)
	s := NewMessageStore()
	s.Append(UserPrompt(long))
	s.Append(ModelResponse(TextPart(long)))
	s.Append(ModelRequest(ToolReturnPart("1", "grep", repeat("x", 90_000))))
	s.Append(ModelRequest(ToolReturnPart("2", "grep", repeat("y", 90_000))))
	s.Append(UserPrompt("next"))

	standardCompactor().Compact(s)

	msgs := s.Messages()
	if msgs[0].Text != long || !strings.HasPrefix(msgs[1].Parts[0].Text, "pp") {
		t.Error("compaction touched a prompt or model text")
	}
}

func TestCompactThresholdsMemoized(t *testing.T) {
	mode := false
	c := NewCompactor(func() bool { return mode }, nil)

	s := buildConversation(repeat("x", 90_000), repeat("y", 90_000))
	c.Compact(s) // resolves thresholds with mode=false

	// Flipping the flag after first use must not change the resolved mode.
	mode = true
	s2 := buildConversation(repeat("x", 4_000), repeat("y", 8_000))
	if reclaimed := c.Compact(s2); reclaimed != 0 {
		t.Errorf("memoized compactor applied local thresholds, reclaimed %d", reclaimed)
	}
}
