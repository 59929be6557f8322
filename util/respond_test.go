package util

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetup-backend/apperr"
)

func TestWriteError(t *testing.T) {
	cases := []struct {
		err     error
		status  int
		kind    apperr.Kind
		message string
	}{
		{apperr.New(apperr.Conflict, "meetup is full"), http.StatusConflict, apperr.Conflict, "meetup is full"},
		{apperr.New(apperr.Gone, "invite expired"), http.StatusGone, apperr.Gone, "invite expired"},
		{errors.New("disk on fire"), http.StatusInternalServerError, apperr.Internal, "internal server error"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		WriteError(rec, tc.err)
		assert.Equal(t, tc.status, rec.Code)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "error", body["status"])
		assert.Equal(t, string(tc.kind), body["kind"])
		assert.Equal(t, tc.message, body["message"])
	}
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]int{"id": 3})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"id":3}`, rec.Body.String())
}
