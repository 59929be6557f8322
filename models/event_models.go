package models

import "time"

// Live update event types.
const (
	EventGroupDeleted    = "GROUP_DELETED"
	EventMeetupCreated   = "MEETUP_CREATED"
	EventMeetupJoined    = "MEETUP_JOINED"
	EventMeetupLeft      = "MEETUP_LEFT"
	EventMeetupCancelled = "MEETUP_CANCELLED"
	EventMeetupDone      = "MEETUP_DONE"
)

type GroupDeletedEvent struct {
	GroupID int64 `json:"group_id"`
}

type MeetupCreatedEvent struct {
	ID           int64        `json:"id"`
	GroupID      int64        `json:"group_id"`
	GroupName    string       `json:"group_name"`
	MeetingPoint string       `json:"meeting_point"`
	StartsAt     time.Time    `json:"starts_at"`
	Status       MeetupStatus `json:"status"`
}

type MeetupJoinedEvent struct {
	MeetupID int64 `json:"meetup_id"`
	GroupID  int64 `json:"group_id"`
	UserID   int64 `json:"user_id"`
}

type MeetupLeftEvent struct {
	MeetupID int64        `json:"meetup_id"`
	GroupID  int64        `json:"group_id"`
	UserID   int64        `json:"user_id"`
	Status   MeetupStatus `json:"status"`
}

// MeetupStatusEvent is the payload of MEETUP_CANCELLED and MEETUP_DONE.
type MeetupStatusEvent struct {
	MeetupID int64        `json:"meetup_id"`
	GroupID  int64        `json:"group_id"`
	Status   MeetupStatus `json:"status"`
}
