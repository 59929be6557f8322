package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"meetup-backend/apperr"
	"meetup-backend/models"
)

// bcrypt ignores input past 72 bytes.
const maxPasswordBytes = 72

// UserDirectory registers users and checks their credentials.
type UserDirectory struct {
	db   *sql.DB
	cost int
	now  func() time.Time
}

// NewUserDirectory uses bcrypt.DefaultCost when cost is not positive.
func NewUserDirectory(db *sql.DB, cost int) *UserDirectory {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &UserDirectory{db: db, cost: cost, now: utcNow}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (d *UserDirectory) Register(ctx context.Context, email, password string) (*models.User, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, apperr.New(apperr.InvalidArgument, "a valid email is required")
	}
	if password == "" {
		return nil, apperr.New(apperr.InvalidArgument, "password is required")
	}
	if len(password) > maxPasswordBytes {
		return nil, apperr.New(apperr.InvalidArgument, "password too long (max 72 bytes)")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), d.cost)
	if err != nil {
		return nil, internal(err, "hash password")
	}

	u := &models.User{Email: email, PasswordHash: string(hash), CreatedAt: d.now()}
	res, err := d.db.ExecContext(ctx,
		`INSERT INTO users (email, password_hash, created_at) VALUES (?, ?, ?)`,
		u.Email, u.PasswordHash, u.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.Wrap(apperr.Conflict, err, "email already registered")
		}
		return nil, internal(err, "insert user")
	}
	if u.ID, err = res.LastInsertId(); err != nil {
		return nil, internal(err, "insert user")
	}
	return u, nil
}

// Authenticate checks credentials; any mismatch is Unauthorized.
func (d *UserDirectory) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	u, err := d.byEmail(ctx, normalizeEmail(email))
	if apperr.Is(err, apperr.NotFound) {
		return nil, apperr.New(apperr.Unauthorized, "invalid credentials")
	}
	if err != nil {
		return nil, err
	}
	if len(password) > maxPasswordBytes || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, apperr.New(apperr.Unauthorized, "invalid credentials")
	}
	return u, nil
}

func (d *UserDirectory) Get(ctx context.Context, id int64) (*models.User, error) {
	return d.scanOne(d.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE id = ?`, id))
}

// Exists reports whether a user id is still present.
func (d *UserDirectory) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)`, id).Scan(&exists)
	if err != nil {
		return false, internal(err, "check user")
	}
	return exists, nil
}

func (d *UserDirectory) byEmail(ctx context.Context, email string) (*models.User, error) {
	return d.scanOne(d.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE email = ?`, email))
}

func (d *UserDirectory) scanOne(row *sql.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "user not found")
	}
	if err != nil {
		return nil, internal(err, "load user")
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}
