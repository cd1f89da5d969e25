package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/hugh/schoolhub/internal/api/respond"
	"github.com/hugh/schoolhub/internal/auth"
	"github.com/hugh/schoolhub/internal/database/models"
)

type contextKey string

const principalKey contextKey = "principal"

// TokenCookie is the httpOnly cookie the API sets on login.
const TokenCookie = "jwt"

const (
	msgNotLoggedIn     = "You are not logged in! Please log in to get access."
	msgUserGone        = "The user belonging to this token no longer exists."
	msgPasswordChanged = "User recently changed password! Please log in again."
	msgExpiredToken    = "Your token has expired! Please log in again."
	msgInvalidToken    = "Invalid token. Please log in again!"
	msgForbidden       = "You do not have permission to perform this action"
	msgUnverified      = "Please verify your email address to access this resource."
)

// WithPrincipal returns a context carrying the authenticated user.
func WithPrincipal(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, principalKey, user)
}

// Principal returns the authenticated user, or nil outside Protect.
func Principal(ctx context.Context) *models.User {
	user, _ := ctx.Value(principalKey).(*models.User)
	return user
}

// Protect authenticates the request and attaches the principal to its
// context. The token comes from the Authorization header, else the jwt cookie.
func Protect(tokens auth.TokenService, principals auth.PrincipalStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				respond.Fail(w, http.StatusUnauthorized, msgNotLoggedIn)
				return
			}

			claims, err := tokens.ValidateToken(token)
			if err != nil {
				msg := msgInvalidToken
				if errors.Is(err, auth.ErrExpiredToken) {
					msg = msgExpiredToken
				}
				respond.Fail(w, http.StatusUnauthorized, msg)
				return
			}

			user, err := principals.GetActiveUser(r.Context(), claims.UserID)
			if errors.Is(err, auth.ErrUserNotFound) {
				respond.Fail(w, http.StatusUnauthorized, msgUserGone)
				return
			}
			if err != nil {
				respond.Error(w, r, err)
				return
			}

			if user.ChangedPasswordAfter(claims.IssuedAt()) {
				respond.Fail(w, http.StatusUnauthorized, msgPasswordChanged)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), user)))
		})
	}
}

func extractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if cookie, err := r.Cookie(TokenCookie); err == nil && cookie.Value != "loggedout" {
		return cookie.Value
	}
	return ""
}

// RequireRole lets the request through only for the listed roles. It must
// run after Protect.
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := Principal(r.Context())
			if user == nil {
				respond.Fail(w, http.StatusUnauthorized, msgNotLoggedIn)
				return
			}

			for _, role := range roles {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			respond.Fail(w, http.StatusForbidden, msgForbidden)
		})
	}
}

// RequireVerifiedEmail rejects principals whose email is not verified.
func RequireVerifiedEmail(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := Principal(r.Context())
		if user == nil {
			respond.Fail(w, http.StatusUnauthorized, msgNotLoggedIn)
			return
		}
		if !user.EmailVerified {
			respond.Fail(w, http.StatusForbidden, msgUnverified)
			return
		}
		next.ServeHTTP(w, r)
	})
}
