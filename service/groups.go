package service

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"meetup-backend/apperr"
	"meetup-backend/database"
	"meetup-backend/models"
)

const (
	maxGroupNameLen = 120
	maxSportLen     = 50
	maxCityLen      = 80
)

// GroupManager creates groups and tears them down with everything they own.
type GroupManager struct {
	db  *sql.DB
	pub Publisher
	now func() time.Time
}

func NewGroupManager(db *sql.DB, pub Publisher) *GroupManager {
	return &GroupManager{db: db, pub: publisherOrNop(pub), now: utcNow}
}

// foldKey trims and case-folds a sport or city so lookups ignore case.
func foldKey(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// Create stores the group and enrolls the owner as a member row so listings
// stay consistent.
func (m *GroupManager) Create(ctx context.Context, ownerID int64, req models.CreateGroupRequest) (*models.Group, error) {
	g := &models.Group{
		Name:      strings.TrimSpace(req.Name),
		Sport:     foldKey(req.Sport),
		City:      foldKey(req.City),
		IsPrivate: req.IsPrivate,
		OwnerID:   ownerID,
		CreatedAt: m.now(),
	}
	switch {
	case g.Name == "" || g.Sport == "" || g.City == "":
		return nil, apperr.New(apperr.InvalidArgument, "name, sport and city are required")
	case len(g.Name) > maxGroupNameLen:
		return nil, apperr.New(apperr.InvalidArgument, "name is too long")
	case len(g.Sport) > maxSportLen:
		return nil, apperr.New(apperr.InvalidArgument, "sport is too long")
	case len(g.City) > maxCityLen:
		return nil, apperr.New(apperr.InvalidArgument, "city is too long")
	}

	err := database.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO groups (name, sport, city, is_private, owner_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			g.Name, g.Sport, g.City, g.IsPrivate, g.OwnerID, g.CreatedAt,
		)
		if err != nil {
			return internal(err, "insert group")
		}
		if g.ID, err = res.LastInsertId(); err != nil {
			return internal(err, "insert group")
		}
		_, err = insertMember(ctx, tx, g.ID, ownerID, models.RoleMember, g.CreatedAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

const groupSelect = `
	SELECT g.id, g.name, g.sport, g.city, g.is_private, g.owner_id, g.created_at,
	       (SELECT COUNT(*) FROM group_members gm WHERE gm.group_id = g.id) AS members_count
	FROM groups g`

func scanGroups(rows *sql.Rows) ([]models.Group, error) {
	defer rows.Close()
	groups := []models.Group{}
	for rows.Next() {
		var g models.Group
		var count int
		if err := rows.Scan(&g.ID, &g.Name, &g.Sport, &g.City, &g.IsPrivate, &g.OwnerID, &g.CreatedAt, &count); err != nil {
			return nil, internal(err, "scan group")
		}
		g.CreatedAt = g.CreatedAt.UTC()
		g.MembersCount = &count
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, internal(err, "list groups")
	}
	return groups, nil
}

// List returns groups matching the filter, newest first.
func (m *GroupManager) List(ctx context.Context, filter models.GroupFilter) ([]models.Group, error) {
	var where []string
	var args []any
	if s := foldKey(filter.Sport); s != "" {
		where = append(where, "g.sport = ?")
		args = append(args, s)
	}
	if c := foldKey(filter.City); c != "" {
		where = append(where, "g.city = ?")
		args = append(args, c)
	}
	query := groupSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY g.created_at DESC, g.id DESC"

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, internal(err, "list groups")
	}
	return scanGroups(rows)
}

// ListForUser returns the groups user owns or belongs to.
func (m *GroupManager) ListForUser(ctx context.Context, userID int64) ([]models.Group, error) {
	rows, err := m.db.QueryContext(ctx, groupSelect+`
		WHERE g.owner_id = ? OR EXISTS (SELECT 1 FROM group_members x WHERE x.group_id = g.id AND x.user_id = ?)
		ORDER BY g.created_at DESC, g.id DESC`, userID, userID)
	if err != nil {
		return nil, internal(err, "list user groups")
	}
	return scanGroups(rows)
}

// Get returns one group with its member count and, for a viewer, their role.
func (m *GroupManager) Get(ctx context.Context, groupID, viewerID int64) (*models.Group, error) {
	g, err := loadGroup(ctx, m.db, groupID)
	if err != nil {
		return nil, err
	}
	var count int
	if err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM group_members WHERE group_id = ?`, groupID).Scan(&count); err != nil {
		return nil, internal(err, "count members")
	}
	g.MembersCount = &count
	if viewerID != 0 {
		role, err := roleIn(ctx, m.db, g, viewerID)
		if err != nil {
			return nil, err
		}
		g.MyRole = &role
	}
	return g, nil
}

// cascadeSteps delete everything a group owns, children first.
var cascadeSteps = []struct {
	name  string
	query string
}{
	{"meetup participants", `DELETE FROM meetup_participants WHERE meetup_id IN (SELECT id FROM meetups WHERE group_id = ?)`},
	{"meetups", `DELETE FROM meetups WHERE group_id = ?`},
	{"invites", `DELETE FROM group_invites WHERE group_id = ?`},
	{"memberships", `DELETE FROM group_members WHERE group_id = ?`},
	{"group", `DELETE FROM groups WHERE id = ?`},
}

// Delete removes the group and everything it owns in one transaction. Owner
// or mod only.
func (m *GroupManager) Delete(ctx context.Context, actorID, groupID int64) error {
	err := database.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		g, err := loadGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}
		role, err := roleIn(ctx, tx, g, actorID)
		if err != nil {
			return err
		}
		if !role.CanModerate() {
			return apperr.New(apperr.Forbidden, "only the owner or a mod can delete the group")
		}
		for _, step := range cascadeSteps {
			if _, err := tx.ExecContext(ctx, step.query, groupID); err != nil {
				return internal(err, "delete "+step.name)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	m.pub.Publish(models.EventGroupDeleted, models.GroupDeletedEvent{GroupID: groupID})
	return nil
}
