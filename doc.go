// Package tunacode is the core runtime of an interactive AI coding
// assistant: a bounded iteration loop that drives a model conversation
// through tool use until the task is declared complete.
//
// The root package holds the orchestration core — message log, token
// accounting, compaction, agent cache, tool dispatch, authorization,
// streaming, and the intervention engine. Providers, stores, tools, and
// observability live in focused subpackages:
//
//   - provider/openaicompat, provider/resolve — model backends
//   - store/sqlite, store/postgres — session snapshots
//   - tools/file, tools/shell — reference tool set
//   - observer — OTEL tracing, metrics, and cost accounting
//   - internal/config — TOML configuration
//   - cmd/tunacode — CLI entrypoint
package tunacode
