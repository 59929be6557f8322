package api

import (
	"context"
	"net/http"

	"meetup-backend/apperr"
	"meetup-backend/models"
	"meetup-backend/util"
)

// requireVisible fails with Forbidden when a private group is viewed by a
// non-member.
func (h *Handler) requireVisible(ctx context.Context, groupID, userID int64) error {
	g, err := h.Groups.Get(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if g.IsPrivate && (g.MyRole == nil || *g.MyRole == models.RoleNone) {
		return apperr.New(apperr.Forbidden, "private group: members only")
	}
	return nil
}

// CreateGroupHandler handles POST /groups.
func (h *Handler) CreateGroupHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req models.CreateGroupRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	g, err := h.Groups.Create(r.Context(), userID, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.Log.WithField("group_id", g.ID).WithField("owner_id", userID).Info("group created")
	util.WriteJSON(w, http.StatusCreated, g)
}

// ListGroupsHandler handles GET /groups?sport=&city=.
func (h *Handler) ListGroupsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	groups, err := h.Groups.List(r.Context(), models.GroupFilter{Sport: q.Get("sport"), City: q.Get("city")})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, groups)
}

// MyGroupsHandler handles GET /groups/my.
func (h *Handler) MyGroupsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	groups, err := h.Groups.ListForUser(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, groups)
}

// GetGroupHandler handles GET /groups/{groupID}.
func (h *Handler) GetGroupHandler(w http.ResponseWriter, r *http.Request) {
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
	g, err := h.Groups.Get(r.Context(), groupID, userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, g)
}

// DeleteGroupHandler handles DELETE /groups/{groupID}.
func (h *Handler) DeleteGroupHandler(w http.ResponseWriter, r *http.Request) {
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
	if err := h.Groups.Delete(r.Context(), userID, groupID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.Log.WithField("group_id", groupID).WithField("actor_id", userID).Info("group deleted")
	w.WriteHeader(http.StatusNoContent)
}

// JoinGroupHandler handles POST /groups/{groupID}/join.
func (h *Handler) JoinGroupHandler(w http.ResponseWriter, r *http.Request) {
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
	joined, err := h.Members.Join(r.Context(), groupID, userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]any{"group_id": groupID, "joined": joined})
}

// LeaveGroupHandler handles POST /groups/{groupID}/leave.
func (h *Handler) LeaveGroupHandler(w http.ResponseWriter, r *http.Request) {
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
	left, err := h.Members.Leave(r.Context(), groupID, userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]any{"group_id": groupID, "left": left})
}

// ListMembersHandler handles GET /groups/{groupID}/members.
func (h *Handler) ListMembersHandler(w http.ResponseWriter, r *http.Request) {
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
	members, err := h.Members.ListMembers(r.Context(), groupID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, members)
}

// MyRoleHandler handles GET /groups/{groupID}/members/me. A non-member gets
// an empty role.
func (h *Handler) MyRoleHandler(w http.ResponseWriter, r *http.Request) {
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
	role, err := h.Members.RoleOf(r.Context(), groupID, userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]any{
		"group_id":  groupID,
		"role":      role,
		"is_member": role != models.RoleNone,
	})
}

// SetRoleHandler handles POST /groups/{groupID}/members/{userID}/role.
func (h *Handler) SetRoleHandler(w http.ResponseWriter, r *http.Request) {
	actorID, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	groupID, err := pathID(r, "groupID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	targetID, err := pathID(r, "userID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req models.SetRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Members.SetRole(r.Context(), actorID, groupID, targetID, req.Role); err != nil {
		h.fail(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]any{"user_id": targetID, "role": req.Role})
}

// KickHandler handles POST /groups/{groupID}/members/{userID}/kick.
func (h *Handler) KickHandler(w http.ResponseWriter, r *http.Request) {
	actorID, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	groupID, err := pathID(r, "groupID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	targetID, err := pathID(r, "userID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Members.Kick(r.Context(), actorID, groupID, targetID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.Log.WithField("group_id", groupID).WithField("user_id", targetID).Info("member kicked")
	w.WriteHeader(http.StatusNoContent)
}
