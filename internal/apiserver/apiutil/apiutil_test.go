package apiutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nayaschool/internal/shared/apperr"
	"nayaschool/internal/shared/storage"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"module unavailable", apperr.ErrModuleUnavailable, http.StatusUnprocessableEntity},
		{"limit reached", fmt.Errorf("enrol: %w", apperr.ErrEnrolmentLimitReached), http.StatusUnprocessableEntity},
		{"validation", apperr.NewValidationError("role", "bad"), http.StatusUnprocessableEntity},
		{"forbidden", apperr.ErrForbidden, http.StatusForbidden},
		{"not found", apperr.ErrNotFound, http.StatusNotFound},
		{"storage not found", storage.ErrNotFound, http.StatusNotFound},
		{"already completed", apperr.ErrAlreadyCompleted, http.StatusConflict},
		{"unauthorized", apperr.ErrUnauthorized, http.StatusUnauthorized},
		{"unknown", errors.New("db down"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusOf(tt.err))
		})
	}
}

func TestWriteErr(t *testing.T) {
	t.Run("user-facing message", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteErr(rec, apperr.ErrEnrolmentLimitReached)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), "You have reached the maximum of 4 current modules.")
	})

	t.Run("wrapped detail", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteErr(rec, fmt.Errorf("%w: can only delete teacher accounts", apperr.ErrForbidden))
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "can only delete teacher accounts")
	})

	t.Run("validation fields", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteErr(rec, apperr.NewValidationError("result", "The selected result is invalid."))
		var body struct {
			Error  string            `json:"error"`
			Fields map[string]string `json:"fields"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "validation failed", body.Error)
		assert.Equal(t, "The selected result is invalid.", body.Fields["result"])
	})

	t.Run("internal error hidden", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteErr(rec, errors.New("pq: connection refused"))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "connection refused")
	})
}

func TestRespondContentNegotiation(t *testing.T) {
	t.Run("api client gets json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/enrol/mod-1", nil)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Referer", "http://school.test/dashboard")
		rec := httptest.NewRecorder()
		Respond(rec, req, http.StatusCreated, map[string]bool{"success": true})
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	})

	t.Run("browser form redirects back", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/enrol/mod-1", nil)
		req.Header.Set("Accept", "text/html")
		req.Header.Set("Referer", "http://school.test/dashboard")
		rec := httptest.NewRecorder()
		Respond(rec, req, http.StatusCreated, nil)
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "http://school.test/dashboard", rec.Header().Get("Location"))
	})

	t.Run("no referer falls back to json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/enrol/mod-1", nil)
		req.Header.Set("Accept", "text/html")
		assert.True(t, WantsJSON(req))
	})
}

type createRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	MaxStudents *int   `json:"max_students" validate:"omitempty,min=1,max=50"`
}

func TestDecodeAndValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(
			`{"name":"Ada","email":"ada@school.com","password":"password1"}`))
		var body createRequest
		require.NoError(t, DecodeAndValidate(req, &body))
		assert.Equal(t, "Ada", body.Name)
	})

	t.Run("field errors use json names", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(
			`{"email":"not-an-email","password":"short","max_students":51}`))
		var body createRequest
		err := DecodeAndValidate(req, &body)

		var verr *apperr.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "The name field is required.", verr.Fields["name"])
		assert.Equal(t, "The email must be a valid email address.", verr.Fields["email"])
		assert.Equal(t, "The password must be at least 8 characters.", verr.Fields["password"])
		assert.Equal(t, "The max students may not be greater than 50.", verr.Fields["max_students"])
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
		var body createRequest
		var verr *apperr.ValidationError
		require.ErrorAs(t, DecodeAndValidate(req, &body), &verr)
		assert.Contains(t, verr.Fields, "body")
	})

	t.Run("empty body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
		var body createRequest
		var verr *apperr.ValidationError
		require.ErrorAs(t, DecodeAndValidate(req, &body), &verr)
		assert.Equal(t, "The request body is required.", verr.Fields["body"])
	})
}

func TestGenerateIDAndPage(t *testing.T) {
	id := GenerateID(PrefixModule)
	assert.Regexp(t, `^mod-[0-9a-f]{12}$`, id)
	assert.NotEqual(t, id, GenerateID(PrefixModule))

	req := httptest.NewRequest(http.MethodGet, "/dashboard?page=3", nil)
	assert.Equal(t, 3, PageParam(req))
	req = httptest.NewRequest(http.MethodGet, "/dashboard?page=-1", nil)
	assert.Equal(t, 1, PageParam(req))
}
