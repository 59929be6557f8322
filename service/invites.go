package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"meetup-backend/apperr"
	"meetup-backend/database"
	"meetup-backend/models"
	"meetup-backend/util"
)

// InviteLedger issues and redeems bounded-use invite tokens for private groups.
type InviteLedger struct {
	db       *sql.DB
	now      func() time.Time
	newToken func() (string, error)
}

func NewInviteLedger(db *sql.DB) *InviteLedger {
	return &InviteLedger{
		db:  db,
		now: utcNow,
		newToken: func() (string, error) {
			return util.GenerateToken(util.InviteTokenBytes)
		},
	}
}

const inviteColumns = `id, group_id, token, created_by, created_at, expires_at, is_active, uses, max_uses, revoked_at`

func scanInvite(row interface{ Scan(...any) error }) (*models.Invite, error) {
	var inv models.Invite
	var expiresAt, revokedAt sql.NullTime
	var maxUses sql.NullInt64
	err := row.Scan(&inv.ID, &inv.GroupID, &inv.Token, &inv.CreatedBy, &inv.CreatedAt,
		&expiresAt, &inv.IsActive, &inv.Uses, &maxUses, &revokedAt)
	if err != nil {
		return nil, err
	}
	inv.CreatedAt = inv.CreatedAt.UTC()
	inv.ExpiresAt = nullTimePtr(expiresAt)
	inv.RevokedAt = nullTimePtr(revokedAt)
	inv.MaxUses = nullIntPtr(maxUses)
	return &inv, nil
}

// Create issues a new invite. Only the owner of a private group may do so.
func (l *InviteLedger) Create(ctx context.Context, actorID, groupID int64, expiresAt *time.Time, maxUses *int) (*models.Invite, error) {
	g, err := loadGroup(ctx, l.db, groupID)
	if err != nil {
		return nil, err
	}
	if g.OwnerID != actorID {
		return nil, apperr.New(apperr.Forbidden, "only the group owner can create invites")
	}
	if !g.IsPrivate {
		return nil, apperr.New(apperr.InvalidArgument, "group is not private")
	}
	if maxUses != nil && *maxUses < 1 {
		return nil, apperr.New(apperr.InvalidArgument, "max_uses must be at least 1")
	}

	now := l.now()
	inv := &models.Invite{
		GroupID:   groupID,
		CreatedBy: actorID,
		CreatedAt: now,
		IsActive:  true,
		MaxUses:   maxUses,
	}
	if expiresAt != nil {
		t := normalizeTime(*expiresAt)
		if !t.After(now) {
			return nil, apperr.New(apperr.InvalidArgument, "expires_at must be in the future")
		}
		inv.ExpiresAt = &t
	}

	inv.Token, err = l.newToken()
	if err != nil {
		return nil, internal(err, "generate invite token")
	}

	var expires, limit any
	if inv.ExpiresAt != nil {
		expires = *inv.ExpiresAt
	}
	if maxUses != nil {
		limit = *maxUses
	}
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO group_invites (group_id, token, created_by, created_at, expires_at, is_active, uses, max_uses)
		 VALUES (?, ?, ?, ?, ?, TRUE, 0, ?)`,
		groupID, inv.Token, actorID, now, expires, limit,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.Wrap(apperr.Conflict, err, "invite token collision, retry")
		}
		return nil, internal(err, "insert invite")
	}
	inv.ID, _ = res.LastInsertId()
	return inv, nil
}

// Redeem adds user to the invite's group. The membership insert and the use
// increment commit together. Redeeming while already a member is a no-op
// that consumes no use.
func (l *InviteLedger) Redeem(ctx context.Context, token string, userID int64) (groupID int64, joined bool, err error) {
	err = database.WithTx(ctx, l.db, func(tx *sql.Tx) error {
		inv, err := scanInvite(tx.QueryRowContext(ctx,
			`SELECT `+inviteColumns+` FROM group_invites WHERE token = ?`, token))
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.New(apperr.NotFound, "invite not found")
		}
		if err != nil {
			return internal(err, "load invite")
		}
		groupID = inv.GroupID

		now := l.now()
		if !inv.IsActive || inv.RevokedAt != nil {
			return apperr.New(apperr.Gone, "invite is no longer valid")
		}
		if inv.Expired(now) {
			return apperr.New(apperr.Gone, "invite expired")
		}
		if inv.Exhausted() {
			return apperr.New(apperr.Conflict, "invite exhausted")
		}

		g, err := loadGroup(ctx, tx, inv.GroupID)
		if err != nil {
			return err
		}
		role, err := roleIn(ctx, tx, g, userID)
		if err != nil {
			return err
		}
		if role != models.RoleNone {
			return nil
		}

		joined, err = insertMember(ctx, tx, g.ID, userID, models.RoleMember, now)
		if err != nil || !joined {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE group_invites
			SET uses = uses + 1,
			    is_active = CASE WHEN max_uses IS NOT NULL AND uses + 1 >= max_uses THEN FALSE ELSE is_active END
			WHERE id = ?
		`, inv.ID)
		if err != nil {
			return internal(err, "consume invite")
		}
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return groupID, joined, nil
}

// Revoke deactivates an invite of the owner's group.
func (l *InviteLedger) Revoke(ctx context.Context, actorID, groupID int64, token string) error {
	g, err := loadGroup(ctx, l.db, groupID)
	if err != nil {
		return err
	}
	if g.OwnerID != actorID {
		return apperr.New(apperr.Forbidden, "only the group owner can revoke invites")
	}
	res, err := l.db.ExecContext(ctx,
		`UPDATE group_invites SET is_active = FALSE, revoked_at = COALESCE(revoked_at, ?)
		 WHERE group_id = ? AND token = ?`,
		l.now(), groupID, token,
	)
	if err != nil {
		return internal(err, "revoke invite")
	}
	n, err := rowsAffected(res, "revoke invite")
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.New(apperr.NotFound, "invite not found")
	}
	return nil
}

// List returns the group's invites, newest first.
func (l *InviteLedger) List(ctx context.Context, actorID, groupID int64) ([]models.Invite, error) {
	g, err := loadGroup(ctx, l.db, groupID)
	if err != nil {
		return nil, err
	}
	if g.OwnerID != actorID {
		return nil, apperr.New(apperr.Forbidden, "only the group owner can list invites")
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT `+inviteColumns+` FROM group_invites WHERE group_id = ? ORDER BY created_at DESC, id DESC`,
		groupID,
	)
	if err != nil {
		return nil, internal(err, "list invites")
	}
	defer rows.Close()

	invites := []models.Invite{}
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, internal(err, "scan invite")
		}
		invites = append(invites, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, internal(err, "list invites")
	}
	return invites, nil
}

// DeactivateExpired flips is_active off for every invite whose expiry has
// passed and returns how many were touched.
func (l *InviteLedger) DeactivateExpired(ctx context.Context) (int64, error) {
	res, err := l.db.ExecContext(ctx,
		`UPDATE group_invites SET is_active = FALSE
		 WHERE is_active = TRUE AND expires_at IS NOT NULL AND expires_at < ?`,
		l.now(),
	)
	if err != nil {
		return 0, internal(err, "deactivate expired invites")
	}
	return rowsAffected(res, "deactivate expired invites")
}
