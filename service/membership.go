package service

import (
	"context"
	"database/sql"
	"time"

	"meetup-backend/apperr"
	"meetup-backend/database"
	"meetup-backend/models"
)

// MembershipStore owns the (group, user) -> role mapping.
type MembershipStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewMembershipStore(db *sql.DB) *MembershipStore {
	return &MembershipStore{db: db, now: utcNow}
}

// Join adds user to a public group. Joining twice is a no-op; joined reports
// whether a membership was created.
func (s *MembershipStore) Join(ctx context.Context, groupID, userID int64) (joined bool, err error) {
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		g, err := loadGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if g.IsPrivate {
			return apperr.New(apperr.Forbidden, "private group: an invite is required")
		}
		joined, err = insertMember(ctx, tx, groupID, userID, models.RoleMember, s.now())
		return err
	})
	return joined, err
}

// SetRole lets the owner promote or demote a member.
func (s *MembershipStore) SetRole(ctx context.Context, actorID, groupID, targetID int64, role models.Role) error {
	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		g, err := loadGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if g.OwnerID != actorID {
			return apperr.New(apperr.Forbidden, "only the group owner can change roles")
		}
		if !role.Assignable() {
			return apperr.Newf(apperr.InvalidArgument, "invalid role %q (member/mod)", role)
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE group_members SET role = ? WHERE group_id = ? AND user_id = ?`,
			string(role), groupID, targetID,
		)
		if err != nil {
			return internal(err, "update role")
		}
		n, err := rowsAffected(res, "update role")
		if err != nil {
			return err
		}
		if n == 0 {
			return apperr.New(apperr.NotFound, "user is not a member")
		}
		return nil
	})
}

// Kick removes target from the group. Owner and mods may kick; the owner
// can never be kicked.
func (s *MembershipStore) Kick(ctx context.Context, actorID, groupID, targetID int64) error {
	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		g, err := loadGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}
		actorRole, err := roleIn(ctx, tx, g, actorID)
		if err != nil {
			return err
		}
		if !actorRole.CanModerate() {
			return apperr.New(apperr.Forbidden, "only the owner or a mod can kick members")
		}
		if targetID == g.OwnerID {
			return apperr.New(apperr.InvalidArgument, "the owner cannot be kicked")
		}
		res, err := tx.ExecContext(ctx,
			`DELETE FROM group_members WHERE group_id = ? AND user_id = ?`,
			groupID, targetID,
		)
		if err != nil {
			return internal(err, "delete membership")
		}
		n, err := rowsAffected(res, "delete membership")
		if err != nil {
			return err
		}
		if n == 0 {
			return apperr.New(apperr.NotFound, "user is not a member")
		}
		return nil
	})
}

// Leave drops the caller's own membership. Leaving a group one is not in is
// a no-op.
func (s *MembershipStore) Leave(ctx context.Context, groupID, userID int64) (left bool, err error) {
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		g, err := loadGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if g.OwnerID == userID {
			return apperr.New(apperr.InvalidArgument, "the owner cannot leave the group")
		}
		res, err := tx.ExecContext(ctx,
			`DELETE FROM group_members WHERE group_id = ? AND user_id = ?`,
			groupID, userID,
		)
		if err != nil {
			return internal(err, "delete membership")
		}
		n, err := rowsAffected(res, "delete membership")
		left = n == 1
		return err
	})
	return left, err
}

// RoleOf returns the user's effective role, RoleNone when not a member.
func (s *MembershipStore) RoleOf(ctx context.Context, groupID, userID int64) (models.Role, error) {
	g, err := loadGroup(ctx, s.db, groupID)
	if err != nil {
		return models.RoleNone, err
	}
	return roleIn(ctx, s.db, g, userID)
}

// ListMembers returns members ordered by email.
func (s *MembershipStore) ListMembers(ctx context.Context, groupID int64) ([]models.Member, error) {
	g, err := loadGroup(ctx, s.db, groupID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.email, gm.role
		FROM group_members gm
		JOIN users u ON gm.user_id = u.id
		WHERE gm.group_id = ?
		ORDER BY u.email ASC, u.id ASC
	`, groupID)
	if err != nil {
		return nil, internal(err, "list members")
	}
	defer rows.Close()

	members := []models.Member{}
	for rows.Next() {
		var m models.Member
		var role string
		if err := rows.Scan(&m.UserID, &m.Email, &role); err != nil {
			return nil, internal(err, "scan member")
		}
		m.Role = resolveRole(g, m.UserID, models.Role(role), true)
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, internal(err, "list members")
	}
	return members, nil
}
