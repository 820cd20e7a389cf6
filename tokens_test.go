package tunacode

import (
	"encoding/json"
	"testing"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abc", 0},
		{"abcd", 1},
		{"abcdefgh", 2},
		{repeat("x", 4000), 1000},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%q len=%d) = %d, want %d", tt.text[:min(len(tt.text), 10)], len(tt.text), got, tt.want)
		}
	}
}

// Token-estimate additivity: splitting aligned text must not change the
// total beyond rounding. For lengths that are multiples of 4 the estimate
// is exactly additive; otherwise within ±1.
func TestEstimateTokensAdditivity(t *testing.T) {
	a := repeat("a", 4096)
	b := repeat("b", 8192)
	if EstimateTokens(a+b) != EstimateTokens(a)+EstimateTokens(b) {
		t.Errorf("aligned additivity broken: %d != %d + %d",
			EstimateTokens(a+b), EstimateTokens(a), EstimateTokens(b))
	}

	c := repeat("c", 4097)
	sum := EstimateTokens(c[:2000]) + EstimateTokens(c[2000:])
	whole := EstimateTokens(c)
	if diff := whole - sum; diff < -1 || diff > 1 {
		t.Errorf("unaligned additivity off by %d", diff)
	}
}

func TestEstimatePartTokens(t *testing.T) {
	if got := EstimatePartTokens(TextPart(repeat("x", 40))); got != 10 {
		t.Errorf("text part = %d, want 10", got)
	}
	if got := EstimatePartTokens(ToolReturnPart("1", "grep", repeat("y", 80))); got != 20 {
		t.Errorf("tool return = %d, want 20", got)
	}
	call := ToolCallPart("1", "grep", json.RawMessage(`{"pattern":"abc"}`))
	if got := EstimatePartTokens(call); got != len(`{"pattern":"abc"}`)/4 {
		t.Errorf("tool call = %d", got)
	}
}

func TestEstimateMessageTokens(t *testing.T) {
	m := ModelResponse(TextPart(repeat("x", 40)), ToolReturnPart("1", "t", repeat("y", 40)))
	if got := EstimateMessageTokens(m); got != 20 {
		t.Errorf("message = %d, want 20", got)
	}
	if got := EstimateMessageTokens(UserPrompt(repeat("z", 16))); got != 4 {
		t.Errorf("user prompt = %d, want 4", got)
	}
}
