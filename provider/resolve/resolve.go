// Package resolve turns the providers subtree of the user configuration
// into ready-to-use providers and agent builders.
package resolve

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	tunacode "github.com/ryumacodes/tunacode"
	"github.com/ryumacodes/tunacode/provider/openaicompat"
)

// Provider creates a tunacode.Provider for the given provider id using the
// session's providers subtree. The API key is read from the configured env
// var at construction time, so credential rotations take effect on the next
// cache miss.
func Provider(id string, cfg tunacode.SessionConfig, model string, logger *slog.Logger) (tunacode.Provider, error) {
	settings, ok := cfg.Providers[id]
	if !ok {
		return nil, fmt.Errorf("resolve: unknown provider %q", id)
	}
	if settings.BaseURL == "" {
		return nil, fmt.Errorf("resolve: provider %q has no base_url", id)
	}

	apiKey := ""
	if settings.APIKeyEnv != "" {
		apiKey = os.Getenv(settings.APIKeyEnv)
	}

	var p tunacode.Provider = openaicompat.New(apiKey, model, settings.BaseURL, openaicompat.WithName(id))
	p = tunacode.WithRetry(p,
		tunacode.RetryMaxAttempts(cfg.MaxRetries+1),
		tunacode.RetryBaseDelay(time.Second),
		tunacode.RetryLogger(logger),
	)
	return p, nil
}

// AgentBuilder returns the production tunacode.AgentBuilder: it splits the
// "provider:model" identifier, resolves the provider, and binds the tool
// schemas fixed at session start.
func AgentBuilder(schemas []tunacode.ToolSchema, logger *slog.Logger) tunacode.AgentBuilder {
	return func(model string, cfg tunacode.SessionConfig) (*tunacode.Agent, error) {
		providerID, modelName, ok := strings.Cut(model, ":")
		if !ok || providerID == "" || modelName == "" {
			return nil, fmt.Errorf("resolve: model identifier %q is not provider:model", model)
		}
		p, err := Provider(providerID, cfg, modelName, logger)
		if err != nil {
			return nil, err
		}
		return tunacode.NewAgent(model, p, schemas, cfg.ToolStrictValidation, cfg.RequestDelay), nil
	}
}
