package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dwestbrook/tasksync/internal/store"
)

// InitialOffset is the cursor sentinel meaning "from the beginning".
const InitialOffset = "-1"

// cursorStateKey is the sync_state row the cursor persists under.
const cursorStateKey = "feed_cursor"

// Cursor identifies how much of the remote change feed has been consumed.
// Offset and Handle are opaque tokens issued by the feed; the client
// persists them after every successful pull and resets them to the
// initial sentinel on unrecoverable protocol errors.
type Cursor struct {
	Offset     string    `json:"offset"`
	Handle     string    `json:"handle"`
	LastSyncAt time.Time `json:"last_sync_at"`
}

// Initial returns the sentinel cursor.
func Initial() Cursor {
	return Cursor{Offset: InitialOffset}
}

// CursorStore persists the replication cursor across restarts.
type CursorStore interface {
	// Load returns the persisted cursor, or the initial sentinel when
	// none has been saved yet.
	Load(ctx context.Context) (Cursor, error)

	// Save persists the cursor durably before returning.
	Save(ctx context.Context, c Cursor) error
}

// SQLCursorStore keeps the cursor in the local store's sync_state table.
type SQLCursorStore struct {
	store *store.Store
}

// NewSQLCursorStore wraps the local store as a CursorStore.
func NewSQLCursorStore(s *store.Store) *SQLCursorStore {
	return &SQLCursorStore{store: s}
}

// Load implements CursorStore.
func (s *SQLCursorStore) Load(ctx context.Context) (Cursor, error) {
	value, err := s.store.GetSyncState(ctx, cursorStateKey)
	if err != nil {
		return Initial(), fmt.Errorf("failed to load cursor: %w", err)
	}
	if value == "" {
		return Initial(), nil
	}

	var c Cursor
	if err := json.Unmarshal([]byte(value), &c); err != nil {
		return Initial(), fmt.Errorf("failed to decode cursor: %w", err)
	}
	if c.Offset == "" {
		c.Offset = InitialOffset
	}
	return c, nil
}

// Save implements CursorStore.
func (s *SQLCursorStore) Save(ctx context.Context, c Cursor) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode cursor: %w", err)
	}
	if err := s.store.SetSyncState(ctx, cursorStateKey, string(data)); err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	return nil
}
