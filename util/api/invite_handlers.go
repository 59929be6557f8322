package api

import (
	"net/http"

	"meetup-backend/apperr"
	"meetup-backend/models"
	"meetup-backend/util"
)

// CreateInviteHandler handles POST /groups/{groupID}/invites.
func (h *Handler) CreateInviteHandler(w http.ResponseWriter, r *http.Request) {
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
	var req models.CreateInviteRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	inv, err := h.Invites.Create(r.Context(), userID, groupID, req.ExpiresAt, req.MaxUses)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.Log.WithField("group_id", groupID).Info("invite created")
	util.WriteJSON(w, http.StatusCreated, inv)
}

// ListInvitesHandler handles GET /groups/{groupID}/invites.
func (h *Handler) ListInvitesHandler(w http.ResponseWriter, r *http.Request) {
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
	invites, err := h.Invites.List(r.Context(), userID, groupID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, invites)
}

// RevokeInviteHandler handles POST /groups/{groupID}/invites/{token}/revoke.
func (h *Handler) RevokeInviteHandler(w http.ResponseWriter, r *http.Request) {
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
	if err := h.Invites.Revoke(r.Context(), userID, groupID, r.PathValue("token")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RedeemInviteHandler handles POST /invites/{token}/redeem.
func (h *Handler) RedeemInviteHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	token := r.PathValue("token")
	if token == "" {
		h.fail(w, r, apperr.New(apperr.InvalidArgument, "missing invite token"))
		return
	}
	groupID, joined, err := h.Invites.Redeem(r.Context(), token, userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]any{"group_id": groupID, "joined": joined})
}
