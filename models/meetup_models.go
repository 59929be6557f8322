package models

import "time"

type MeetupStatus string

const (
	MeetupOpen      MeetupStatus = "open"
	MeetupFull      MeetupStatus = "full"
	MeetupCancelled MeetupStatus = "cancelled"
	MeetupDone      MeetupStatus = "done"
)

// Terminal reports whether no further transition may leave this status.
func (s MeetupStatus) Terminal() bool {
	return s == MeetupCancelled || s == MeetupDone
}

type Meetup struct {
	ID           int64        `json:"id"`
	GroupID      int64        `json:"group_id"`
	CreatedBy    int64        `json:"created_by"`
	StartsAt     time.Time    `json:"starts_at"`
	MeetingPoint string       `json:"meeting_point"`
	Notes        *string      `json:"notes"`
	LevelTag     *string      `json:"level_tag"`
	PaceMin      *int         `json:"pace_min"` // seconds per km
	PaceMax      *int         `json:"pace_max"`
	Capacity     *int         `json:"capacity"`
	Status       MeetupStatus `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
}

type CreateMeetupRequest struct {
	StartsAt     time.Time `json:"starts_at"`
	MeetingPoint string    `json:"meeting_point"`
	Notes        *string   `json:"notes"`
	LevelTag     *string   `json:"level_tag"`
	PaceMin      *int      `json:"pace_min"`
	PaceMax      *int      `json:"pace_max"`
	Capacity     *int      `json:"capacity"`
}

// MeetupWithParticipants annotates a meetup for a group listing.
type MeetupWithParticipants struct {
	Meetup
	ParticipantsCount int          `json:"participants_count"`
	Participants      []UserPublic `json:"participants"`
	IsJoined          bool         `json:"is_joined"`
}

type GroupRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// MeetupDetail is a single meetup together with its group.
type MeetupDetail struct {
	Meetup
	Group GroupRef `json:"group"`
}
