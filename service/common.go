// Package service holds the membership, invite, meetup and group lifecycle
// rules. Every check-then-write sequence runs inside one database
// transaction, and events are handed to the Publisher only after commit.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"meetup-backend/apperr"
	"meetup-backend/database"
	"meetup-backend/models"
)

// Publisher receives lifecycle events once the mutation they describe has
// been committed.
type Publisher interface {
	Publish(eventType string, payload any)
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, any) {}

func publisherOrNop(p Publisher) Publisher {
	if p == nil {
		return nopPublisher{}
	}
	return p
}

// normalizeTime is the single canonical form for stored timestamps.
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func utcNow() time.Time { return normalizeTime(time.Now()) }

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

func internal(err error, op string) error {
	return apperr.Wrap(apperr.Internal, err, op)
}

func loadGroup(ctx context.Context, q database.Querier, groupID int64) (*models.Group, error) {
	var g models.Group
	err := q.QueryRowContext(ctx,
		`SELECT id, name, sport, city, is_private, owner_id, created_at FROM groups WHERE id = ?`,
		groupID,
	).Scan(&g.ID, &g.Name, &g.Sport, &g.City, &g.IsPrivate, &g.OwnerID, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "group not found")
	}
	if err != nil {
		return nil, internal(err, "load group")
	}
	g.CreatedAt = g.CreatedAt.UTC()
	return &g, nil
}

func storedRole(ctx context.Context, q database.Querier, groupID, userID int64) (models.Role, bool, error) {
	var role string
	err := q.QueryRowContext(ctx,
		`SELECT role FROM group_members WHERE group_id = ? AND user_id = ?`,
		groupID, userID,
	).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RoleNone, false, nil
	}
	if err != nil {
		return models.RoleNone, false, internal(err, "load membership")
	}
	return models.Role(role), true, nil
}

// resolveRole derives the effective role: ownership wins over any stored row.
func resolveRole(g *models.Group, userID int64, stored models.Role, hasRow bool) models.Role {
	if g.OwnerID == userID {
		return models.RoleOwner
	}
	if !hasRow {
		return models.RoleNone
	}
	return stored
}

func roleIn(ctx context.Context, q database.Querier, g *models.Group, userID int64) (models.Role, error) {
	if g.OwnerID == userID {
		return models.RoleOwner, nil
	}
	stored, ok, err := storedRole(ctx, q, g.ID, userID)
	if err != nil {
		return models.RoleNone, err
	}
	return resolveRole(g, userID, stored, ok), nil
}

// insertMember adds a membership row unless one already exists and reports
// whether a row was written.
func insertMember(ctx context.Context, q database.Querier, groupID, userID int64, role models.Role, now time.Time) (bool, error) {
	res, err := q.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(group_id, user_id) DO NOTHING`,
		groupID, userID, string(role), now,
	)
	if err != nil {
		return false, internal(err, "insert membership")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, internal(err, "insert membership")
	}
	return n == 1, nil
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func nullIntPtr(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func rowsAffected(res sql.Result, op string) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, internal(err, fmt.Sprintf("%s rows affected", op))
	}
	return n, nil
}
