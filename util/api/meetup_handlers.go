package api

import (
	"context"
	"net/http"
	"strconv"

	"meetup-backend/apperr"
	"meetup-backend/models"
	"meetup-backend/util"
)

// CreateMeetupHandler handles POST /groups/{groupID}/meetups.
func (h *Handler) CreateMeetupHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	groupID, err := pathID(r, "groupID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req models.CreateMeetupRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	m, err := h.Meetups.Create(r.Context(), groupID, userID, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.Log.WithField("meetup_id", m.ID).WithField("group_id", groupID).Info("meetup created")
	util.WriteJSON(w, http.StatusCreated, m)
}

// ListGroupMeetupsHandler handles GET /groups/{groupID}/meetups.
func (h *Handler) ListGroupMeetupsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	groupID, err := pathID(r, "groupID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.requireVisible(r.Context(), groupID, userID); err != nil {
		h.fail(w, r, err)
		return
	}
	meetups, err := h.Meetups.ListUpcoming(r.Context(), groupID, userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, meetups)
}

// UpcomingMeetupsHandler handles GET /meetups/upcoming?limit=.
func (h *Handler) UpcomingMeetupsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			h.fail(w, r, apperr.New(apperr.InvalidArgument, "limit must be a number"))
			return
		}
	}
	meetups, err := h.Meetups.ListUpcomingForUser(r.Context(), userID, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, meetups)
}

// GetMeetupHandler handles GET /meetups/{meetupID}.
func (h *Handler) GetMeetupHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	meetupID, err := pathID(r, "meetupID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	m, err := h.Meetups.Get(r.Context(), userID, meetupID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, m)
}

// JoinMeetupHandler handles POST /meetups/{meetupID}/join.
func (h *Handler) JoinMeetupHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	meetupID, err := pathID(r, "meetupID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	joined, err := h.Meetups.Join(r.Context(), meetupID, userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]any{"meetup_id": meetupID, "joined": joined})
}

// LeaveMeetupHandler handles POST /meetups/{meetupID}/leave.
func (h *Handler) LeaveMeetupHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	meetupID, err := pathID(r, "meetupID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	left, status, err := h.Meetups.Leave(r.Context(), meetupID, userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]any{"meetup_id": meetupID, "left": left, "status": status})
}

type finishFunc func(ctx context.Context, actorID, meetupID int64) (*models.Meetup, error)

func (h *Handler) finishMeetup(w http.ResponseWriter, r *http.Request, finish finishFunc) {
	userID, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	meetupID, err := pathID(r, "meetupID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	m, err := finish(r.Context(), userID, meetupID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.Log.WithField("meetup_id", m.ID).WithField("status", m.Status).Info("meetup finished")
	util.WriteJSON(w, http.StatusOK, m)
}

// CancelMeetupHandler handles POST /meetups/{meetupID}/cancel.
func (h *Handler) CancelMeetupHandler(w http.ResponseWriter, r *http.Request) {
	h.finishMeetup(w, r, h.Meetups.Cancel)
}

// DoneMeetupHandler handles POST /meetups/{meetupID}/done.
func (h *Handler) DoneMeetupHandler(w http.ResponseWriter, r *http.Request) {
	h.finishMeetup(w, r, h.Meetups.MarkDone)
}
