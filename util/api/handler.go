// Package api exposes the meetup services over HTTP and streams live
// updates over websocket and server-sent events.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"meetup-backend/apperr"
	"meetup-backend/middleware"
	"meetup-backend/realtime"
	"meetup-backend/service"
	"meetup-backend/util"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Handler holds the services every route needs.
type Handler struct {
	Users   *service.UserDirectory
	Groups  *service.GroupManager
	Members *service.MembershipStore
	Invites *service.InviteLedger
	Meetups *service.MeetupEngine
	Tokens  *util.TokenIssuer
	Hub     *realtime.Hub
	Log     *logrus.Logger

	// Origins lists browser origins allowed to open a websocket. Empty
	// allows any.
	Origins []string
}

// fail writes err to the client. Internal failures are logged with their
// cause; clients only see a generic message.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if apperr.KindOf(err) == apperr.Internal {
		h.Log.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).WithError(err).Error("request failed")
	}
	util.WriteError(w, err)
}

// currentUser returns the id set by the auth middleware.
func currentUser(r *http.Request) (int64, error) {
	id, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		return 0, apperr.New(apperr.Unauthorized, "you must be logged in")
	}
	return id, nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Newf(apperr.InvalidArgument, "invalid %s", name)
	}
	return id, nil
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst as is.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperr.Wrap(apperr.InvalidArgument, err, "invalid request body")
	}
	return nil
}
