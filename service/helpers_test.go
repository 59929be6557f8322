package service

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"meetup-backend/apperr"
	"meetup-backend/database"
	"meetup-backend/models"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.InitDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// createUser inserts a user directly so tests do not pay for bcrypt.
func createUser(t *testing.T, db *sql.DB, email string) int64 {
	t.Helper()
	res, err := db.Exec(`INSERT INTO users (email, password_hash, created_at) VALUES (?, 'x', ?)`, email, utcNow())
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func createGroup(t *testing.T, db *sql.DB, ownerID int64, private bool) *models.Group {
	t.Helper()
	g, err := NewGroupManager(db, nil).Create(context.Background(), ownerID, models.CreateGroupRequest{
		Name: "Morning Runners", Sport: "running", City: "Berlin", IsPrivate: private,
	})
	require.NoError(t, err)
	return g
}

func addMember(t *testing.T, db *sql.DB, groupID, userID int64, role models.Role) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO group_members (group_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)`,
		groupID, userID, string(role), utcNow())
	require.NoError(t, err)
}

func count(t *testing.T, db *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(query, args...).Scan(&n))
	return n
}

func requireKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, apperr.KindOf(err), "error: %v", err)
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func inHours(h int) time.Time { return time.Now().UTC().Add(time.Duration(h) * time.Hour) }

type recordedEvent struct {
	Type    string
	Payload any
}

type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recorder) Publish(eventType string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Type: eventType, Payload: payload})
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}
