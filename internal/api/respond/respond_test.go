package respond

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hugh/schoolhub/internal/api/dto"
	"github.com/hugh/schoolhub/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func render(t *testing.T, detail bool, err error) (*httptest.ResponseRecorder, dto.ErrorResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	handler := Detailed(detail)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Error(w, r, err)
	}))
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	var body dto.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestError(t *testing.T) {
	t.Run("operational error keeps its message", func(t *testing.T) {
		rec, body := render(t, false, apperr.NotFound("No document found with that ID"))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "fail", body.Status)
		assert.Equal(t, "No document found with that ID", body.Message)
	})

	t.Run("validation fields are listed", func(t *testing.T) {
		rec, body := render(t, false, apperr.ValidationFields("Invalid input data", map[string]string{"email": "must be a valid email"}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "must be a valid email", body.Errors["email"])
	})

	t.Run("unknown error is hidden", func(t *testing.T) {
		rec, body := render(t, false, errors.New("pq: connection refused"))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "error", body.Status)
		assert.Equal(t, msgUnexpected, body.Message)
		assert.Empty(t, body.Detail)
	})

	t.Run("development adds detail", func(t *testing.T) {
		_, body := render(t, true, errors.New("pq: connection refused"))
		assert.Equal(t, "pq: connection refused", body.Detail)
	})

	t.Run("internal operational error keeps message and hides cause", func(t *testing.T) {
		rec, body := render(t, false, apperr.Internal("There was an error sending the email. Try again later!", errors.New("smtp down")))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "error", body.Status)
		assert.Equal(t, "There was an error sending the email. Try again later!", body.Message)
		assert.Empty(t, body.Detail)
	})
}

func TestList_EmptyIsSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	List(rec, []string{}, 0)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"success","results":0,"data":[]}`, rec.Body.String())
}
