package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetup-backend/apperr"
	"meetup-backend/models"
)

func meetupStatus(t *testing.T, e *MeetupEngine, actor, id int64) models.MeetupStatus {
	t.Helper()
	m, err := e.Get(context.Background(), actor, id)
	require.NoError(t, err)
	return m.Status
}

// emptyMeetup creates a meetup with the given capacity and has its creator
// leave, so every seat is free.
func emptyMeetup(t *testing.T, e *MeetupEngine, groupID, creator int64, capacity int) *models.Meetup {
	t.Helper()
	ctx := context.Background()
	m, err := e.Create(ctx, groupID, creator, models.CreateMeetupRequest{
		StartsAt: inHours(24), MeetingPoint: "Main gate", Capacity: intPtr(capacity),
	})
	require.NoError(t, err)
	left, _, err := e.Leave(ctx, m.ID, creator)
	require.NoError(t, err)
	require.True(t, left)
	return m
}

// Capacity one: a join fills the meetup, a leave reopens it.
func TestCapacityFillAndReopen(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	owner := createUser(t, db, "owner@example.com")
	u1 := createUser(t, db, "e@example.com")
	u2 := createUser(t, db, "f@example.com")
	g := createGroup(t, db, owner, false)
	addMember(t, db, g.ID, u1, models.RoleMember)
	addMember(t, db, g.ID, u2, models.RoleMember)
	e := NewMeetupEngine(db, nil)

	m := emptyMeetup(t, e, g.ID, owner, 1)
	assert.Equal(t, models.MeetupOpen, meetupStatus(t, e, owner, m.ID))

	joined, err := e.Join(ctx, m.ID, u1)
	require.NoError(t, err)
	assert.True(t, joined)
	assert.Equal(t, models.MeetupFull, meetupStatus(t, e, owner, m.ID))

	_, err = e.Join(ctx, m.ID, u2)
	requireKind(t, err, apperr.Conflict)

	left, status, err := e.Leave(ctx, m.ID, u1)
	require.NoError(t, err)
	assert.True(t, left)
	assert.Equal(t, models.MeetupOpen, status)

	joined, err = e.Join(ctx, m.ID, u2)
	require.NoError(t, err)
	assert.True(t, joined)
	assert.Equal(t, models.MeetupFull, meetupStatus(t, e, owner, m.ID))
}

// After done, joins fail as invalid.
func TestJoinAfterDone(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	owner := createUser(t, db, "owner@example.com")
	u := createUser(t, db, "u@example.com")
	g := createGroup(t, db, owner, false)
	addMember(t, db, g.ID, u, models.RoleMember)
	e := NewMeetupEngine(db, nil)

	m, err := e.Create(ctx, g.ID, owner, models.CreateMeetupRequest{StartsAt: inHours(2), MeetingPoint: "Bridge"})
	require.NoError(t, err)
	done, err := e.MarkDone(ctx, owner, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MeetupDone, done.Status)

	_, err = e.Join(ctx, m.ID, u)
	requireKind(t, err, apperr.InvalidArgument)
}

func TestCreatorCountsTowardCapacity(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	owner := createUser(t, db, "owner@example.com")
	u := createUser(t, db, "u@example.com")
	g := createGroup(t, db, owner, false)
	addMember(t, db, g.ID, u, models.RoleMember)
	rec := &recorder{}
	e := NewMeetupEngine(db, rec)

	m, err := e.Create(ctx, g.ID, u, models.CreateMeetupRequest{
		StartsAt: inHours(3), MeetingPoint: " Lake ", Capacity: intPtr(1), LevelTag: strPtr("  Easy "),
	})
	require.NoError(t, err)
	assert.Equal(t, models.MeetupFull, m.Status)
	assert.Equal(t, "Lake", m.MeetingPoint)
	require.NotNil(t, m.LevelTag)
	assert.Equal(t, "easy", *m.LevelTag)
	assert.Equal(t, 1, count(t, db, `SELECT COUNT(*) FROM meetup_participants WHERE meetup_id = ? AND user_id = ?`, m.ID, u))

	require.Len(t, rec.events, 1)
	ev := rec.events[0].Payload.(models.MeetupCreatedEvent)
	assert.Equal(t, models.EventMeetupCreated, rec.events[0].Type)
	assert.Equal(t, g.Name, ev.GroupName)
	assert.Equal(t, m.ID, ev.ID)
}

func TestMeetupCreateRules(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	owner := createUser(t, db, "owner@example.com")
	stranger := createUser(t, db, "s@example.com")
	g := createGroup(t, db, owner, false)
	e := NewMeetupEngine(db, nil)

	_, err := e.Create(ctx, g.ID, stranger, models.CreateMeetupRequest{StartsAt: inHours(1), MeetingPoint: "x"})
	requireKind(t, err, apperr.Forbidden)
	_, err = e.Create(ctx, 999, owner, models.CreateMeetupRequest{StartsAt: inHours(1), MeetingPoint: "x"})
	requireKind(t, err, apperr.NotFound)

	bad := []models.CreateMeetupRequest{
		{MeetingPoint: "x"},
		{StartsAt: inHours(1), MeetingPoint: "   "},
		{StartsAt: inHours(1), MeetingPoint: "x", Capacity: intPtr(0)},
		{StartsAt: inHours(1), MeetingPoint: "x", PaceMin: intPtr(-1)},
		{StartsAt: inHours(1), MeetingPoint: "x", PaceMin: intPtr(400), PaceMax: intPtr(300)},
	}
	for _, req := range bad {
		_, err := e.Create(ctx, g.ID, owner, req)
		requireKind(t, err, apperr.InvalidArgument)
	}
	assert.Zero(t, count(t, db, `SELECT COUNT(*) FROM meetups`))
}

func TestJoinRules(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	owner := createUser(t, db, "owner@example.com")
	u := createUser(t, db, "u@example.com")
	stranger := createUser(t, db, "s@example.com")
	g := createGroup(t, db, owner, false)
	addMember(t, db, g.ID, u, models.RoleMember)
	rec := &recorder{}
	e := NewMeetupEngine(db, rec)

	m, err := e.Create(ctx, g.ID, owner, models.CreateMeetupRequest{StartsAt: inHours(5), MeetingPoint: "Gym"})
	require.NoError(t, err)

	_, err = e.Join(ctx, m.ID, stranger)
	requireKind(t, err, apperr.Forbidden)
	_, err = e.Join(ctx, 404, u)
	requireKind(t, err, apperr.NotFound)

	joined, err := e.Join(ctx, m.ID, u)
	require.NoError(t, err)
	assert.True(t, joined)
	joined, err = e.Join(ctx, m.ID, u)
	require.NoError(t, err)
	assert.False(t, joined)

	assert.Equal(t, []string{models.EventMeetupCreated, models.EventMeetupJoined}, rec.types())
}

func TestConcurrentJoinsNeverOverfill(t *testing.T) {
	const capacity, extra = 3, 5
	db := openTestDB(t)
	ctx := context.Background()
	owner := createUser(t, db, "owner@example.com")
	g := createGroup(t, db, owner, false)
	e := NewMeetupEngine(db, nil)
	m := emptyMeetup(t, e, g.ID, owner, capacity)

	users := make([]int64, capacity+extra)
	for i := range users {
		users[i] = createUser(t, db, fmt.Sprintf("u%d@example.com", i))
		addMember(t, db, g.ID, users[i], models.RoleMember)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(users))
	for i, u := range users {
		wg.Add(1)
		go func(i int, u int64) {
			defer wg.Done()
			_, errs[i] = e.Join(ctx, m.ID, u)
		}(i, u)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case apperr.Is(err, apperr.Conflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, capacity, ok)
	assert.Equal(t, extra, conflicts)
	assert.Equal(t, capacity, count(t, db, `SELECT COUNT(*) FROM meetup_participants WHERE meetup_id = ?`, m.ID))
	assert.Equal(t, models.MeetupFull, meetupStatus(t, e, owner, m.ID))
}

func TestCancelAndDoneRules(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	owner := createUser(t, db, "owner@example.com")
	creator := createUser(t, db, "c@example.com")
	mod := createUser(t, db, "mod@example.com")
	g := createGroup(t, db, owner, false)
	addMember(t, db, g.ID, creator, models.RoleMember)
	addMember(t, db, g.ID, mod, models.RoleMod)
	rec := &recorder{}
	e := NewMeetupEngine(db, rec)

	m, err := e.Create(ctx, g.ID, creator, models.CreateMeetupRequest{StartsAt: inHours(4), MeetingPoint: "Pier"})
	require.NoError(t, err)

	_, err = e.Cancel(ctx, mod, m.ID)
	requireKind(t, err, apperr.Forbidden)

	cancelled, err := e.Cancel(ctx, creator, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MeetupCancelled, cancelled.Status)

	_, err = e.MarkDone(ctx, owner, m.ID)
	requireKind(t, err, apperr.InvalidArgument)
	_, err = e.Cancel(ctx, owner, m.ID)
	requireKind(t, err, apperr.InvalidArgument)

	// Participants of a terminal meetup stay put.
	_, _, err = e.Leave(ctx, m.ID, creator)
	requireKind(t, err, apperr.InvalidArgument)
	left, status, err := e.Leave(ctx, m.ID, mod)
	require.NoError(t, err)
	assert.False(t, left)
	assert.Equal(t, models.MeetupCancelled, status)

	other, err := e.Create(ctx, g.ID, creator, models.CreateMeetupRequest{StartsAt: inHours(4), MeetingPoint: "Pier"})
	require.NoError(t, err)
	_, err = e.MarkDone(ctx, owner, other.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{
		models.EventMeetupCreated, models.EventMeetupCancelled,
		models.EventMeetupCreated, models.EventMeetupDone,
	}, rec.types())
}

func TestGetRequiresMembership(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	owner := createUser(t, db, "owner@example.com")
	stranger := createUser(t, db, "s@example.com")
	g := createGroup(t, db, owner, false)
	e := NewMeetupEngine(db, nil)

	m, err := e.Create(ctx, g.ID, owner, models.CreateMeetupRequest{StartsAt: inHours(1), MeetingPoint: "Hill"})
	require.NoError(t, err)

	got, err := e.Get(ctx, owner, m.ID)
	require.NoError(t, err)
	assert.Equal(t, g.Name, got.Group.Name)

	_, err = e.Get(ctx, stranger, m.ID)
	requireKind(t, err, apperr.Forbidden)
}

func TestListUpcoming(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	owner := createUser(t, db, "owner@example.com")
	amy := createUser(t, db, "amy@example.com")
	g := createGroup(t, db, owner, false)
	addMember(t, db, g.ID, amy, models.RoleMember)
	e := NewMeetupEngine(db, nil)

	later, err := e.Create(ctx, g.ID, owner, models.CreateMeetupRequest{StartsAt: inHours(48), MeetingPoint: "B"})
	require.NoError(t, err)
	sooner, err := e.Create(ctx, g.ID, owner, models.CreateMeetupRequest{StartsAt: inHours(2), MeetingPoint: "A"})
	require.NoError(t, err)
	cancelled, err := e.Create(ctx, g.ID, owner, models.CreateMeetupRequest{StartsAt: inHours(3), MeetingPoint: "C"})
	require.NoError(t, err)
	_, err = e.Cancel(ctx, owner, cancelled.ID)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO meetups (group_id, created_by, starts_at, meeting_point, status, created_at)
		VALUES (?, ?, ?, 'past', 'open', ?)`, g.ID, owner, normalizeTime(time.Now().Add(-time.Hour)), utcNow())
	require.NoError(t, err)

	_, err = e.Join(ctx, sooner.ID, amy)
	require.NoError(t, err)

	got, err := e.ListUpcoming(ctx, g.ID, amy)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, sooner.ID, got[0].ID)
	assert.Equal(t, later.ID, got[1].ID)

	assert.Equal(t, 2, got[0].ParticipantsCount)
	assert.True(t, got[0].IsJoined)
	assert.Equal(t, []models.UserPublic{
		{ID: amy, Email: "amy@example.com"},
		{ID: owner, Email: "owner@example.com"},
	}, got[0].Participants)

	assert.Equal(t, 1, got[1].ParticipantsCount)
	assert.False(t, got[1].IsJoined)

	_, err = e.ListUpcoming(ctx, 999, amy)
	requireKind(t, err, apperr.NotFound)
}

func TestListUpcomingForUser(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	owner := createUser(t, db, "owner@example.com")
	u := createUser(t, db, "u@example.com")
	g := createGroup(t, db, owner, false)
	addMember(t, db, g.ID, u, models.RoleMember)
	e := NewMeetupEngine(db, nil)

	for i := 1; i <= 3; i++ {
		m, err := e.Create(ctx, g.ID, owner, models.CreateMeetupRequest{StartsAt: inHours(i), MeetingPoint: fmt.Sprintf("P%d", i)})
		require.NoError(t, err)
		_, err = e.Join(ctx, m.ID, u)
		require.NoError(t, err)
	}
	_, err := e.Create(ctx, g.ID, owner, models.CreateMeetupRequest{StartsAt: inHours(1), MeetingPoint: "not joined"})
	require.NoError(t, err)

	got, err := e.ListUpcomingForUser(ctx, u, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "P1", got[0].MeetingPoint)
	assert.Equal(t, "P2", got[1].MeetingPoint)
	assert.Equal(t, g.Name, got[0].Group.Name)

	all, err := e.ListUpcomingForUser(ctx, u, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = e.ListUpcomingForUser(ctx, u, MaxUpcomingLimit+1)
	requireKind(t, err, apperr.InvalidArgument)
	_, err = e.ListUpcomingForUser(ctx, u, -1)
	requireKind(t, err, apperr.InvalidArgument)
}
