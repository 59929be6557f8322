package models

import "time"

// Role is a user's standing inside a group. The owner role is never stored;
// it is derived from Group.OwnerID.
type Role string

const (
	RoleNone   Role = ""
	RoleOwner  Role = "owner"
	RoleMod    Role = "mod"
	RoleMember Role = "member"
)

// Assignable reports whether the role may be written to a membership row.
func (r Role) Assignable() bool {
	return r == RoleMember || r == RoleMod
}

// CanModerate is the "owner or mod" capability.
func (r Role) CanModerate() bool {
	return r == RoleOwner || r == RoleMod
}

type Group struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Sport     string    `json:"sport"`
	City      string    `json:"city"`
	IsPrivate bool      `json:"is_private"`
	OwnerID   int64     `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`

	MembersCount *int  `json:"members_count,omitempty"`
	MyRole       *Role `json:"my_role,omitempty"`
}

type CreateGroupRequest struct {
	Name      string `json:"name"`
	Sport     string `json:"sport"`
	City      string `json:"city"`
	IsPrivate bool   `json:"is_private"`
}

// GroupFilter narrows a group listing. Empty fields match everything.
type GroupFilter struct {
	Sport string
	City  string
}

type Membership struct {
	ID       int64     `json:"id"`
	GroupID  int64     `json:"group_id"`
	UserID   int64     `json:"user_id"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// Member is a row of a group's member listing with the effective role.
type Member struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
}

type SetRoleRequest struct {
	Role Role `json:"role"`
}

type Invite struct {
	ID        int64      `json:"-"`
	GroupID   int64      `json:"group_id"`
	Token     string     `json:"token"`
	CreatedBy int64      `json:"created_by"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at"`
	IsActive  bool       `json:"is_active"`
	Uses      int        `json:"uses"`
	MaxUses   *int       `json:"max_uses"`
	RevokedAt *time.Time `json:"revoked_at"`
}

// Expired reports whether the invite's expiry lies before now.
func (i *Invite) Expired(now time.Time) bool {
	return i.ExpiresAt != nil && i.ExpiresAt.Before(now)
}

// Exhausted reports whether every allowed use has been consumed.
func (i *Invite) Exhausted() bool {
	return i.MaxUses != nil && i.Uses >= *i.MaxUses
}

type CreateInviteRequest struct {
	ExpiresAt *time.Time `json:"expires_at"`
	MaxUses   *int       `json:"max_uses"`
}
