package api

import (
	"net/http"

	"meetup-backend/models"
	"meetup-backend/util"
)

func (h *Handler) issueToken(w http.ResponseWriter, r *http.Request, status int, userID int64) {
	token, err := h.Tokens.Issue(userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	util.WriteJSON(w, status, models.TokenResponse{AccessToken: token, TokenType: "bearer"})
}

// RegisterHandler handles POST /auth/register.
func (h *Handler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	u, err := h.Users.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.Log.WithField("user_id", u.ID).Info("user registered")
	h.issueToken(w, r, http.StatusCreated, u.ID)
}

// LoginHandler handles POST /auth/login.
func (h *Handler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	u, err := h.Users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.issueToken(w, r, http.StatusOK, u.ID)
}

// MeHandler handles GET /auth/me.
func (h *Handler) MeHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	u, err := h.Users.Get(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, u)
}
