package tunacode

import "context"

// SessionSnapshot is a point-in-time copy of a session's conversation,
// taken by the host between requests. The core holds no persistent state;
// snapshotting is entirely external.
type SessionSnapshot struct {
	ID          string    `json:"id"`
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	TotalTokens int       `json:"total_tokens"`
	CreatedAt   int64     `json:"created_at"`
}

// SnapshotStore persists session snapshots. Implementations live under
// store/ (sqlite, postgres).
type SnapshotStore interface {
	Save(ctx context.Context, snap SessionSnapshot) error
	Load(ctx context.Context, id string) (SessionSnapshot, error)
	List(ctx context.Context, limit int) ([]SessionSnapshot, error)
	Delete(ctx context.Context, id string) error

	Init(ctx context.Context) error
	Close() error
}

// TakeSnapshot captures the session's current conversation.
func TakeSnapshot(s *SessionState) SessionSnapshot {
	return SessionSnapshot{
		ID:          NewID(),
		Model:       s.CurrentModel,
		Messages:    s.Messages.Snapshot(),
		TotalTokens: s.TotalTokens,
		CreatedAt:   NowUnix(),
	}
}
