// Package respond writes the JSON envelope shared by handlers and middleware.
package respond

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hugh/schoolhub/internal/api/dto"
	"github.com/hugh/schoolhub/internal/apperr"
	"github.com/hugh/schoolhub/internal/database/models"
)

const msgUnexpected = "Something went very wrong!"

type detailKey struct{}

// Detailed returns a middleware that adds the error chain to 5xx bodies.
// It is only installed in development.
func Detailed(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), detailKey{}, enabled)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func detailed(ctx context.Context) bool {
	enabled, _ := ctx.Value(detailKey{}).(bool)
	return enabled
}

func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func Success(w http.ResponseWriter, status int, data interface{}) {
	JSON(w, status, dto.Response{Status: dto.StatusSuccess, Data: data})
}

// List renders a collection with its size. An empty collection is still a
// success.
func List(w http.ResponseWriter, data interface{}, n int) {
	JSON(w, http.StatusOK, dto.Response{Status: dto.StatusSuccess, Results: &n, Data: data})
}

func Message(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, dto.Response{Status: dto.StatusSuccess, Message: msg})
}

// Auth renders an issued token together with the user it belongs to.
func Auth(w http.ResponseWriter, status int, token string, user *models.User) {
	JSON(w, status, dto.Response{
		Status: dto.StatusSuccess,
		Token:  token,
		Data:   dto.UserData{User: user},
	})
}

func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Fail renders a client error with a message.
func Fail(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, dto.ErrorResponse{Status: statusText(status), Message: msg})
}

// Error renders err. Operational errors keep their message; anything else is
// logged and hidden behind a generic message.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		slog.ErrorContext(ctx, "unhandled error", "method", r.Method, "path", r.URL.Path, "error", err)
		body := dto.ErrorResponse{Status: dto.StatusError, Message: msgUnexpected}
		if detailed(ctx) {
			body.Detail = err.Error()
		}
		JSON(w, http.StatusInternalServerError, body)
		return
	}

	status := appErr.Status()
	body := dto.ErrorResponse{
		Status:  statusText(status),
		Message: appErr.Message,
		Errors:  appErr.Fields,
	}
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(ctx, appErr.Message, "method", r.Method, "path", r.URL.Path, "error", appErr.Err)
		if detailed(ctx) && appErr.Err != nil {
			body.Detail = appErr.Err.Error()
		}
	}
	JSON(w, status, body)
}

func statusText(status int) string {
	if status >= http.StatusInternalServerError {
		return dto.StatusError
	}
	return dto.StatusFail
}
