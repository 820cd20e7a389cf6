package observer

import (
	"math"
	"testing"
)

func TestCostCalculator(t *testing.T) {
	c := NewCostCalculator(nil)

	// gpt-4.1: $2.00 in / $8.00 out per million.
	cost := c.Calculate("gpt-4.1", 1_000_000, 500_000)
	if math.Abs(cost-6.00) > 1e-9 {
		t.Errorf("cost = %v, want 6.00", cost)
	}

	if c.Calculate("unknown-model", 1000, 1000) != 0 {
		t.Error("unknown model should cost 0")
	}
}

func TestCostCalculatorOverrides(t *testing.T) {
	c := NewCostCalculator(map[string]ModelPricing{
		"gpt-4.1":      {1.00, 1.00},
		"custom-model": {0.50, 0.50},
	})
	if cost := c.Calculate("gpt-4.1", 1_000_000, 0); math.Abs(cost-1.00) > 1e-9 {
		t.Errorf("override not applied: %v", cost)
	}
	if cost := c.Calculate("custom-model", 0, 2_000_000); math.Abs(cost-1.00) > 1e-9 {
		t.Errorf("custom model: %v", cost)
	}
}

func TestCostFnStripsProviderPrefix(t *testing.T) {
	fn := NewCostCalculator(nil).CostFn()
	with := fn("openai:gpt-4.1", 1_000_000, 0)
	without := fn("gpt-4.1", 1_000_000, 0)
	if with != without || with == 0 {
		t.Errorf("prefixed = %v, bare = %v", with, without)
	}
}
