package tunacode

import (
	"log/slog"
	"sync"
)

// Compaction thresholds. Standard mode protects a generous window of recent
// tool output; local mode assumes a small-context model and prunes hard.
const (
	protectTokensStandard    = 40_000
	minimumThresholdStandard = 20_000
	protectTokensLocal       = 2_000
	minimumThresholdLocal    = 500
)

// compactThresholds is the resolved threshold pair for one configuration.
type compactThresholds struct {
	protectTokens    int
	minimumThreshold int
}

// Compactor proactively reclaims context by pruning old tool-return content.
// It runs once at the start of each request, before any model call. Only
// tool-return parts are eligible: prompts, tool calls, and model text are
// never pruned.
type Compactor struct {
	logger *slog.Logger

	once       sync.Once
	localMode  func() bool
	thresholds compactThresholds
}

// NewCompactor creates a Compactor. localMode is read once and memoized for
// the lifetime of the configuration; a config reload gets a new Compactor.
func NewCompactor(localMode func() bool, logger *slog.Logger) *Compactor {
	if logger == nil {
		logger = nopLogger
	}
	return &Compactor{logger: logger, localMode: localMode}
}

// resolve memoizes the threshold pair on first use.
func (c *Compactor) resolve() compactThresholds {
	c.once.Do(func() {
		c.thresholds = compactThresholds{protectTokensStandard, minimumThresholdStandard}
		if c.localMode != nil && c.localMode() {
			c.thresholds = compactThresholds{protectTokensLocal, minimumThresholdLocal}
		}
	})
	return c.thresholds
}

// partAddr addresses one part inside the message store.
type partAddr struct {
	msgIdx  int
	partIdx int
}

// Compact scans tool returns newest-first, protects the most recent
// protectTokens worth, and prunes everything older — but only when the
// reclaimable sum clears minimumThreshold. Pruning is idempotent: a second
// pass reclaims zero. Returns the number of token estimates reclaimed.
func (c *Compactor) Compact(store *MessageStore) int {
	if store.UserPromptCount() < 2 {
		return 0
	}
	th := c.resolve()

	var (
		accumulated  int
		pastBoundary bool
		candidates   []partAddr
		candidateSum int
	)
	store.ToolReturnsReverse(func(msgIdx, partIdx int, p *Part) bool {
		est := EstimateTokens(p.Content)
		if !pastBoundary && accumulated+est <= th.protectTokens {
			accumulated += est
			return true
		}
		// Protection boundary: this part and everything older is a prune
		// candidate, no matter how small.
		pastBoundary = true
		if !p.Pruned {
			candidates = append(candidates, partAddr{msgIdx, partIdx})
			candidateSum += est
		}
		return true
	})

	if candidateSum < th.minimumThreshold {
		return 0
	}

	var reclaimed int
	for _, addr := range candidates {
		reclaimed += store.PrunePart(addr.msgIdx, addr.partIdx, PrunePlaceholder)
	}
	if reclaimed > 0 {
		c.logger.Info("compacted old tool results",
			"parts", len(candidates),
			"reclaimed_tokens", reclaimed,
			"protect_tokens", th.protectTokens)
	}
	return reclaimed
}
