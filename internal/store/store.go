package store

import (
	"context"
	"errors"

	"github.com/seantiz/partload/internal/model"
)

// ErrInvalidTransition is returned when a session state transition is not allowed.
var ErrInvalidTransition = errors.New("invalid state transition")

// SessionStats holds aggregate session statistics.
type SessionStats struct {
	Total        int            `json:"total"`
	CountByState map[string]int `json:"count_by_state"`
	Items        int            `json:"items"`
	Calls        int            `json:"calls"`
}

// Store defines the persistence operations for the session ledger.
type Store interface {
	CreateSession(ctx context.Context, s *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	ListSessions(ctx context.Context, limit, offset int) ([]*model.Session, int, error)
	UpdateSessionState(ctx context.Context, id, state, errMsg string) error
	RecordChunk(ctx context.Context, c *model.Chunk) error
	GetChunks(ctx context.Context, sessionID string) ([]model.Chunk, error)
	GetSessionStats(ctx context.Context) (*SessionStats, error)
	Close() error
}
