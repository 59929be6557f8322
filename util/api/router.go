package api

import (
	"net/http"

	"meetup-backend/middleware"
)

// NewRouter wires every route. Everything except register and login sits
// behind the auth middleware; users may be nil to skip the deleted-user
// check.
func NewRouter(h *Handler, verifier middleware.Verifier, users middleware.UserChecker) http.Handler {
	auth := middleware.AuthMiddleware(verifier, users, h.Log)
	protected := func(fn http.HandlerFunc) http.Handler { return auth(fn) }

	mux := http.NewServeMux()

	// Auth handlers
	mux.HandleFunc("POST /auth/register", h.RegisterHandler)
	mux.HandleFunc("POST /auth/login", h.LoginHandler)
	mux.Handle("GET /auth/me", protected(h.MeHandler))

	// Group handlers
	mux.Handle("POST /groups", protected(h.CreateGroupHandler))
	mux.Handle("GET /groups", protected(h.ListGroupsHandler))
	mux.Handle("GET /groups/my", protected(h.MyGroupsHandler))
	mux.Handle("GET /groups/{groupID}", protected(h.GetGroupHandler))
	mux.Handle("DELETE /groups/{groupID}", protected(h.DeleteGroupHandler))

	// Membership handlers
	mux.Handle("POST /groups/{groupID}/join", protected(h.JoinGroupHandler))
	mux.Handle("POST /groups/{groupID}/leave", protected(h.LeaveGroupHandler))
	mux.Handle("GET /groups/{groupID}/members", protected(h.ListMembersHandler))
	mux.Handle("GET /groups/{groupID}/members/me", protected(h.MyRoleHandler))
	mux.Handle("POST /groups/{groupID}/members/{userID}/role", protected(h.SetRoleHandler))
	mux.Handle("POST /groups/{groupID}/members/{userID}/kick", protected(h.KickHandler))

	// Invite handlers
	mux.Handle("POST /groups/{groupID}/invites", protected(h.CreateInviteHandler))
	mux.Handle("GET /groups/{groupID}/invites", protected(h.ListInvitesHandler))
	mux.Handle("POST /groups/{groupID}/invites/{token}/revoke", protected(h.RevokeInviteHandler))
	mux.Handle("POST /invites/{token}/redeem", protected(h.RedeemInviteHandler))

	// Meetup handlers
	mux.Handle("POST /groups/{groupID}/meetups", protected(h.CreateMeetupHandler))
	mux.Handle("GET /groups/{groupID}/meetups", protected(h.ListGroupMeetupsHandler))
	mux.Handle("GET /meetups/upcoming", protected(h.UpcomingMeetupsHandler))
	mux.Handle("GET /meetups/{meetupID}", protected(h.GetMeetupHandler))
	mux.Handle("POST /meetups/{meetupID}/join", protected(h.JoinMeetupHandler))
	mux.Handle("POST /meetups/{meetupID}/leave", protected(h.LeaveMeetupHandler))
	mux.Handle("POST /meetups/{meetupID}/cancel", protected(h.CancelMeetupHandler))
	mux.Handle("POST /meetups/{meetupID}/done", protected(h.DoneMeetupHandler))

	// Live updates
	mux.Handle("GET /ws", protected(h.WebSocketHandler))
	mux.Handle("GET /events", protected(h.EventsHandler))

	return middleware.RequestLogger(h.Log)(mux)
}
