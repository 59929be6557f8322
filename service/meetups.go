package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"meetup-backend/apperr"
	"meetup-backend/database"
	"meetup-backend/models"
)

const (
	maxMeetingPointLen = 255
	maxNotesLen        = 500
	maxLevelTagLen     = 30

	DefaultUpcomingLimit = 10
	MaxUpcomingLimit     = 100
)

// MeetupEngine runs the meetup lifecycle and enforces capacity.
//
//	open -> full       join fills the last seat
//	full -> open       a participant leaves
//	open|full -> cancelled | done   terminal
type MeetupEngine struct {
	db  *sql.DB
	pub Publisher
	now func() time.Time
}

func NewMeetupEngine(db *sql.DB, pub Publisher) *MeetupEngine {
	return &MeetupEngine{db: db, pub: publisherOrNop(pub), now: utcNow}
}

const meetupColumns = `id, group_id, created_by, starts_at, meeting_point, notes, level_tag, pace_min, pace_max, capacity, status, created_at`

func scanMeetup(row interface{ Scan(...any) error }) (*models.Meetup, error) {
	var m models.Meetup
	var notes, level sql.NullString
	var paceMin, paceMax, capacity sql.NullInt64
	var status string
	err := row.Scan(&m.ID, &m.GroupID, &m.CreatedBy, &m.StartsAt, &m.MeetingPoint,
		&notes, &level, &paceMin, &paceMax, &capacity, &status, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.StartsAt = m.StartsAt.UTC()
	m.CreatedAt = m.CreatedAt.UTC()
	m.Notes = nullStringPtr(notes)
	m.LevelTag = nullStringPtr(level)
	m.PaceMin = nullIntPtr(paceMin)
	m.PaceMax = nullIntPtr(paceMax)
	m.Capacity = nullIntPtr(capacity)
	m.Status = models.MeetupStatus(status)
	return &m, nil
}

func loadMeetup(ctx context.Context, q database.Querier, meetupID int64) (*models.Meetup, error) {
	m, err := scanMeetup(q.QueryRowContext(ctx, `SELECT `+meetupColumns+` FROM meetups WHERE id = ?`, meetupID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "meetup not found")
	}
	if err != nil {
		return nil, internal(err, "load meetup")
	}
	return m, nil
}

func trimmedOrNil(s *string, lower bool) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	if lower {
		v = strings.ToLower(v)
	}
	return &v
}

func validateMeetup(req *models.CreateMeetupRequest) error {
	req.MeetingPoint = strings.TrimSpace(req.MeetingPoint)
	req.Notes = trimmedOrNil(req.Notes, false)
	req.LevelTag = trimmedOrNil(req.LevelTag, true)

	switch {
	case req.StartsAt.IsZero():
		return apperr.New(apperr.InvalidArgument, "starts_at is required")
	case req.MeetingPoint == "":
		return apperr.New(apperr.InvalidArgument, "meeting_point is required")
	case len(req.MeetingPoint) > maxMeetingPointLen:
		return apperr.New(apperr.InvalidArgument, "meeting_point is too long")
	case req.Notes != nil && len(*req.Notes) > maxNotesLen:
		return apperr.New(apperr.InvalidArgument, "notes are too long")
	case req.LevelTag != nil && len(*req.LevelTag) > maxLevelTagLen:
		return apperr.New(apperr.InvalidArgument, "level_tag is too long")
	case req.Capacity != nil && *req.Capacity < 1:
		return apperr.New(apperr.InvalidArgument, "capacity must be at least 1")
	case req.PaceMin != nil && *req.PaceMin < 0, req.PaceMax != nil && *req.PaceMax < 0:
		return apperr.New(apperr.InvalidArgument, "pace must not be negative")
	case req.PaceMin != nil && req.PaceMax != nil && *req.PaceMin > *req.PaceMax:
		return apperr.New(apperr.InvalidArgument, "pace_min must not exceed pace_max")
	}
	return nil
}

func derefOrNil[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

// Create schedules a meetup and enrolls its creator, whose seat counts
// toward capacity.
func (e *MeetupEngine) Create(ctx context.Context, groupID, creatorID int64, req models.CreateMeetupRequest) (*models.Meetup, error) {
	var m *models.Meetup
	var groupName string
	err := database.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		g, err := loadGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}
		role, err := roleIn(ctx, tx, g, creatorID)
		if err != nil {
			return err
		}
		if role == models.RoleNone {
			return apperr.New(apperr.Forbidden, "you must be a group member")
		}
		if err := validateMeetup(&req); err != nil {
			return err
		}
		groupName = g.Name

		now := e.now()
		status := models.MeetupOpen
		if req.Capacity != nil && *req.Capacity <= 1 {
			status = models.MeetupFull
		}
		m = &models.Meetup{
			GroupID:      groupID,
			CreatedBy:    creatorID,
			StartsAt:     normalizeTime(req.StartsAt),
			MeetingPoint: req.MeetingPoint,
			Notes:        req.Notes,
			LevelTag:     req.LevelTag,
			PaceMin:      req.PaceMin,
			PaceMax:      req.PaceMax,
			Capacity:     req.Capacity,
			Status:       status,
			CreatedAt:    now,
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO meetups (group_id, created_by, starts_at, meeting_point, notes, level_tag, pace_min, pace_max, capacity, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.GroupID, m.CreatedBy, m.StartsAt, m.MeetingPoint,
			derefOrNil(m.Notes), derefOrNil(m.LevelTag), derefOrNil(m.PaceMin), derefOrNil(m.PaceMax), derefOrNil(m.Capacity),
			string(m.Status), m.CreatedAt,
		)
		if err != nil {
			return internal(err, "insert meetup")
		}
		if m.ID, err = res.LastInsertId(); err != nil {
			return internal(err, "insert meetup")
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO meetup_participants (meetup_id, user_id, joined_at) VALUES (?, ?, ?)`,
			m.ID, creatorID, now,
		)
		if err != nil {
			return internal(err, "enroll creator")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.pub.Publish(models.EventMeetupCreated, models.MeetupCreatedEvent{
		ID:           m.ID,
		GroupID:      m.GroupID,
		GroupName:    groupName,
		MeetingPoint: m.MeetingPoint,
		StartsAt:     m.StartsAt,
		Status:       m.Status,
	})
	return m, nil
}

// Get returns one meetup to a member of its group.
func (e *MeetupEngine) Get(ctx context.Context, actorID, meetupID int64) (*models.MeetupDetail, error) {
	m, err := loadMeetup(ctx, e.db, meetupID)
	if err != nil {
		return nil, err
	}
	g, err := loadGroup(ctx, e.db, m.GroupID)
	if err != nil {
		return nil, err
	}
	role, err := roleIn(ctx, e.db, g, actorID)
	if err != nil {
		return nil, err
	}
	if role == models.RoleNone {
		return nil, apperr.New(apperr.Forbidden, "you must be a group member")
	}
	return &models.MeetupDetail{Meetup: *m, Group: models.GroupRef{ID: g.ID, Name: g.Name}}, nil
}

// Join reserves a seat for user. The seat count is read inside the same
// transaction that inserts the participant, so two joins racing for the last
// seat cannot both succeed.
func (e *MeetupEngine) Join(ctx context.Context, meetupID, userID int64) (joined bool, err error) {
	var m *models.Meetup
	err = database.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		m, err = loadMeetup(ctx, tx, meetupID)
		if err != nil {
			return err
		}
		if m.Status == models.MeetupFull {
			return apperr.New(apperr.Conflict, "meetup is full")
		}
		if m.Status != models.MeetupOpen {
			return apperr.Newf(apperr.InvalidArgument, "meetup is %s", m.Status)
		}
		g, err := loadGroup(ctx, tx, m.GroupID)
		if err != nil {
			return err
		}
		role, err := roleIn(ctx, tx, g, userID)
		if err != nil {
			return err
		}
		if role == models.RoleNone {
			return apperr.New(apperr.Forbidden, "you must be a group member")
		}

		var already bool
		err = tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM meetup_participants WHERE meetup_id = ? AND user_id = ?)`,
			meetupID, userID,
		).Scan(&already)
		if err != nil {
			return internal(err, "check participation")
		}
		if already {
			return nil
		}

		var count int
		if m.Capacity != nil {
			err = tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM meetup_participants WHERE meetup_id = ?`, meetupID,
			).Scan(&count)
			if err != nil {
				return internal(err, "count participants")
			}
			if count >= *m.Capacity {
				return apperr.New(apperr.Conflict, "meetup is full")
			}
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO meetup_participants (meetup_id, user_id, joined_at) VALUES (?, ?, ?)`,
			meetupID, userID, e.now(),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return nil
			}
			return internal(err, "insert participant")
		}
		joined = true

		if m.Capacity != nil && count+1 >= *m.Capacity {
			if _, err := tx.ExecContext(ctx, `UPDATE meetups SET status = ? WHERE id = ?`, string(models.MeetupFull), meetupID); err != nil {
				return internal(err, "mark meetup full")
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if joined {
		e.pub.Publish(models.EventMeetupJoined, models.MeetupJoinedEvent{
			MeetupID: m.ID,
			GroupID:  m.GroupID,
			UserID:   userID,
		})
	}
	return joined, nil
}

// Leave frees user's seat. A full meetup reopens. Leaving a meetup one never
// joined is a no-op; participants of a cancelled or done meetup stay put.
func (e *MeetupEngine) Leave(ctx context.Context, meetupID, userID int64) (left bool, status models.MeetupStatus, err error) {
	var m *models.Meetup
	err = database.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		m, err = loadMeetup(ctx, tx, meetupID)
		if err != nil {
			return err
		}
		status = m.Status

		var joinedBefore bool
		err = tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM meetup_participants WHERE meetup_id = ? AND user_id = ?)`,
			meetupID, userID,
		).Scan(&joinedBefore)
		if err != nil {
			return internal(err, "check participation")
		}
		if !joinedBefore {
			return nil
		}
		if m.Status.Terminal() {
			return apperr.Newf(apperr.InvalidArgument, "meetup is %s", m.Status)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM meetup_participants WHERE meetup_id = ? AND user_id = ?`, meetupID, userID,
		); err != nil {
			return internal(err, "delete participant")
		}
		left = true

		if m.Status == models.MeetupFull {
			if _, err := tx.ExecContext(ctx, `UPDATE meetups SET status = ? WHERE id = ?`, string(models.MeetupOpen), meetupID); err != nil {
				return internal(err, "reopen meetup")
			}
			status = models.MeetupOpen
		}
		return nil
	})
	if err != nil {
		return false, "", err
	}
	if left {
		e.pub.Publish(models.EventMeetupLeft, models.MeetupLeftEvent{
			MeetupID: m.ID,
			GroupID:  m.GroupID,
			UserID:   userID,
			Status:   status,
		})
	}
	return left, status, nil
}

// Cancel moves the meetup to cancelled. Only its creator or the group owner
// may do this, and never on a meetup that is already terminal.
func (e *MeetupEngine) Cancel(ctx context.Context, actorID, meetupID int64) (*models.Meetup, error) {
	return e.finish(ctx, actorID, meetupID, models.MeetupCancelled, models.EventMeetupCancelled)
}

// MarkDone moves the meetup to done under the same rules as Cancel.
func (e *MeetupEngine) MarkDone(ctx context.Context, actorID, meetupID int64) (*models.Meetup, error) {
	return e.finish(ctx, actorID, meetupID, models.MeetupDone, models.EventMeetupDone)
}

func (e *MeetupEngine) finish(ctx context.Context, actorID, meetupID int64, to models.MeetupStatus, eventType string) (*models.Meetup, error) {
	var m *models.Meetup
	err := database.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		var err error
		m, err = loadMeetup(ctx, tx, meetupID)
		if err != nil {
			return err
		}
		g, err := loadGroup(ctx, tx, m.GroupID)
		if err != nil {
			return err
		}
		if actorID != m.CreatedBy && actorID != g.OwnerID {
			return apperr.New(apperr.Forbidden, "only the creator or the group owner can do this")
		}
		if m.Status.Terminal() {
			return apperr.Newf(apperr.InvalidArgument, "meetup is already %s", m.Status)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE meetups SET status = ? WHERE id = ?`, string(to), meetupID); err != nil {
			return internal(err, "update meetup status")
		}
		m.Status = to
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.pub.Publish(eventType, models.MeetupStatusEvent{
		MeetupID: m.ID,
		GroupID:  m.GroupID,
		Status:   m.Status,
	})
	return m, nil
}

// ListUpcoming returns the group's open and full meetups starting from now,
// soonest first. viewerID 0 means no viewer; IsJoined is then false.
func (e *MeetupEngine) ListUpcoming(ctx context.Context, groupID, viewerID int64) ([]models.MeetupWithParticipants, error) {
	if _, err := loadGroup(ctx, e.db, groupID); err != nil {
		return nil, err
	}
	now := e.now()
	rows, err := e.db.QueryContext(ctx, `
		SELECT `+meetupColumns+` FROM meetups
		WHERE group_id = ? AND status IN ('open', 'full') AND starts_at >= ?
		ORDER BY starts_at ASC, id ASC
	`, groupID, now)
	if err != nil {
		return nil, internal(err, "list meetups")
	}
	defer rows.Close()

	out := []models.MeetupWithParticipants{}
	index := map[int64]int{}
	for rows.Next() {
		m, err := scanMeetup(rows)
		if err != nil {
			return nil, internal(err, "scan meetup")
		}
		index[m.ID] = len(out)
		out = append(out, models.MeetupWithParticipants{Meetup: *m, Participants: []models.UserPublic{}})
	}
	if err := rows.Err(); err != nil {
		return nil, internal(err, "list meetups")
	}
	if len(out) == 0 {
		return out, nil
	}

	prow, err := e.db.QueryContext(ctx, `
		SELECT mp.meetup_id, u.id, u.email
		FROM meetup_participants mp
		JOIN meetups m ON m.id = mp.meetup_id
		JOIN users u ON u.id = mp.user_id
		WHERE m.group_id = ? AND m.status IN ('open', 'full') AND m.starts_at >= ?
		ORDER BY u.email ASC
	`, groupID, now)
	if err != nil {
		return nil, internal(err, "list participants")
	}
	defer prow.Close()
	for prow.Next() {
		var meetupID int64
		var u models.UserPublic
		if err := prow.Scan(&meetupID, &u.ID, &u.Email); err != nil {
			return nil, internal(err, "scan participant")
		}
		i, ok := index[meetupID]
		if !ok {
			continue
		}
		item := &out[i]
		item.Participants = append(item.Participants, u)
		item.ParticipantsCount++
		if viewerID != 0 && u.ID == viewerID {
			item.IsJoined = true
		}
	}
	if err := prow.Err(); err != nil {
		return nil, internal(err, "list participants")
	}
	return out, nil
}

// ListUpcomingForUser returns open and full meetups the user joined,
// soonest first, regardless of current group membership.
func (e *MeetupEngine) ListUpcomingForUser(ctx context.Context, userID int64, limit int) ([]models.MeetupDetail, error) {
	if limit == 0 {
		limit = DefaultUpcomingLimit
	}
	if limit < 1 || limit > MaxUpcomingLimit {
		return nil, apperr.Newf(apperr.InvalidArgument, "limit must be between 1 and %d", MaxUpcomingLimit)
	}
	rows, err := e.db.QueryContext(ctx, `
		SELECT m.id, m.group_id, m.created_by, m.starts_at, m.meeting_point, m.notes, m.level_tag,
		       m.pace_min, m.pace_max, m.capacity, m.status, m.created_at, g.name
		FROM meetups m
		JOIN meetup_participants mp ON mp.meetup_id = m.id
		JOIN groups g ON g.id = m.group_id
		WHERE mp.user_id = ? AND m.status IN ('open', 'full') AND m.starts_at >= ?
		ORDER BY m.starts_at ASC, m.id ASC
		LIMIT ?
	`, userID, e.now(), limit)
	if err != nil {
		return nil, internal(err, "list upcoming meetups")
	}
	defer rows.Close()

	out := []models.MeetupDetail{}
	for rows.Next() {
		var groupName string
		m, err := scanMeetup(scanFunc(func(dest ...any) error {
			return rows.Scan(append(dest, &groupName)...)
		}))
		if err != nil {
			return nil, internal(err, "scan meetup")
		}
		out = append(out, models.MeetupDetail{Meetup: *m, Group: models.GroupRef{ID: m.GroupID, Name: groupName}})
	}
	if err := rows.Err(); err != nil {
		return nil, internal(err, "list upcoming meetups")
	}
	return out, nil
}

type scanFunc func(dest ...any) error

func (f scanFunc) Scan(dest ...any) error { return f(dest...) }
