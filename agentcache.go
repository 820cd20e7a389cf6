package tunacode

import (
	"hash/fnv"
	"log/slog"
	"sort"
	"strconv"
	"sync"
)

// VersionHash summarizes the configuration subset that affects agent
// construction. Any change to max_retries, tool_strict_validation,
// request_delay, global_request_timeout, or the providers subtree (base
// URLs, credential env names) produces a different hash and therefore a
// cache miss.
func VersionHash(cfg SessionConfig) uint64 {
	h := fnv.New64a()
	write := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	write(strconv.Itoa(cfg.MaxRetries))
	write(strconv.FormatBool(cfg.ToolStrictValidation))
	write(cfg.RequestDelay.String())
	write(cfg.GlobalRequestTimeout.String())

	ids := make([]string, 0, len(cfg.Providers))
	for id := range cfg.Providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		p := cfg.Providers[id]
		write(id)
		write(p.BaseURL)
		write(p.APIKeyEnv)
	}
	return h.Sum64()
}

// AgentBuilder constructs a ready-to-invoke agent for a model under the
// given configuration. provider/resolve supplies the production builder.
type AgentBuilder func(model string, cfg SessionConfig) (*Agent, error)

type cacheKey struct {
	model   string
	version uint64
}

// AgentCache holds model-bound agent instances keyed by (model, version
// hash). It is shared across requests in one session. The builder never
// reads the cache, so a plain mutex held across construction is safe.
//
// Callers must invalidate on model change, providers-subtree mutation,
// global timeout, and user abort.
type AgentCache struct {
	mu      sync.Mutex
	entries map[cacheKey]*Agent
	build   AgentBuilder
	logger  *slog.Logger
}

// NewAgentCache creates a cache that constructs agents via build.
func NewAgentCache(build AgentBuilder, logger *slog.Logger) *AgentCache {
	if logger == nil {
		logger = nopLogger
	}
	return &AgentCache{
		entries: make(map[cacheKey]*Agent),
		build:   build,
		logger:  logger,
	}
}

// Acquire returns the cached agent for (model, VersionHash(cfg)), building
// and caching one on miss.
func (c *AgentCache) Acquire(model string, cfg SessionConfig) (*Agent, error) {
	key := cacheKey{model: model, version: VersionHash(cfg)}
	c.mu.Lock()
	defer c.mu.Unlock()
	if a, ok := c.entries[key]; ok {
		return a, nil
	}
	a, err := c.build(model, cfg)
	if err != nil {
		return nil, err
	}
	c.entries[key] = a
	c.logger.Debug("agent constructed", "model", model, "version", key.version)
	return a, nil
}

// Invalidate removes every cached entry for the model, across all versions.
func (c *AgentCache) Invalidate(model string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if key.model == model {
			delete(c.entries, key)
		}
	}
}

// ClearAll drops every entry.
func (c *AgentCache) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

// Size returns the number of cached agents.
func (c *AgentCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
