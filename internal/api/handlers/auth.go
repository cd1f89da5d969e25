package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hugh/schoolhub/internal/api/dto"
	"github.com/hugh/schoolhub/internal/api/middleware"
	"github.com/hugh/schoolhub/internal/api/respond"
	"github.com/hugh/schoolhub/internal/auth"
)

const (
	msgVerificationSent = "Verification email sent. Please verify your email to complete registration."
	msgAccountCreated   = "Email verified and account created successfully!"
	msgResetSent        = "Token sent to email!"
	msgLoggedOut        = "Logged out successfully"
)

type AuthHandler struct {
	authService  auth.Authenticator
	cookieMaxAge int
}

// NewAuthHandler creates the account handlers. cookieMaxAge is the lifetime
// of the jwt cookie in seconds.
func NewAuthHandler(authService auth.Authenticator, cookieMaxAge int) *AuthHandler {
	return &AuthHandler{authService: authService, cookieMaxAge: cookieMaxAge}
}

// Signup registers an admin together with their school. It is public.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req dto.AdminSignupRequest
	if err := decodeJSON(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}
	h.signup(w, r, req.AccountInput, req.AdminRegistration)
}

func (h *AuthHandler) SignupTeacher(w http.ResponseWriter, r *http.Request) {
	var req dto.TeacherSignupRequest
	if err := decodeJSON(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}
	h.signup(w, r, req.AccountInput, req.TeacherRegistration)
}

func (h *AuthHandler) SignupStudent(w http.ResponseWriter, r *http.Request) {
	var req dto.StudentSignupRequest
	if err := decodeJSON(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}
	h.signup(w, r, req.AccountInput, req.StudentRegistration)
}

func (h *AuthHandler) signup(w http.ResponseWriter, r *http.Request, in auth.AccountInput, reg auth.Registration) {
	token, err := h.authService.Signup(r.Context(), middleware.Principal(r.Context()), in, reg)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, dto.Response{
		Status:  dto.StatusSuccess,
		Message: msgVerificationSent,
		Token:   token,
	})
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	user, err := h.authService.VerifyEmail(r.Context(), chi.URLParam(r, "nonce"), r.URL.Query().Get("token"))
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, dto.Response{
		Status:  dto.StatusSuccess,
		Message: msgAccountCreated,
		Data:    dto.UserData{User: user},
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}

	resp, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	h.sendToken(w, r, http.StatusOK, resp)
}

// Logout overwrites the jwt cookie with a short-lived placeholder.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    "loggedout",
		Path:     "/",
		Expires:  time.Now().Add(10 * time.Second),
		MaxAge:   10,
		HttpOnly: true,
		Secure:   isSecure(r),
		SameSite: http.SameSiteLaxMode,
	})

	respond.Message(w, http.StatusOK, msgLoggedOut)
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ForgotPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}

	if err := h.authService.ForgotPassword(r.Context(), req.Email); err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.Message(w, http.StatusOK, msgResetSent)
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ResetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}

	resp, err := h.authService.ResetPassword(r.Context(), chi.URLParam(r, "token"), req.Password, req.PasswordConfirm)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	h.sendToken(w, r, http.StatusOK, resp)
}

func (h *AuthHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdatePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}

	resp, err := h.authService.UpdatePassword(r.Context(), middleware.Principal(r.Context()),
		req.PasswordCurrent, req.Password, req.PasswordConfirm)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	h.sendToken(w, r, http.StatusOK, resp)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.authService.Profile(r.Context(), middleware.Principal(r.Context()).ID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.Success(w, http.StatusOK, dto.UserData{User: user})
}

func (h *AuthHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var in auth.UpdateMeInput
	if err := decodeJSON(r, &in); err != nil {
		respond.Error(w, r, err)
		return
	}

	user, err := h.authService.UpdateMe(r.Context(), middleware.Principal(r.Context()), in)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.Success(w, http.StatusOK, dto.UserData{User: user})
}

func (h *AuthHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	if err := h.authService.Deactivate(r.Context(), middleware.Principal(r.Context())); err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.NoContent(w)
}

// sendToken sets the jwt cookie and renders the token with its user.
func (h *AuthHandler) sendToken(w http.ResponseWriter, r *http.Request, status int, resp *auth.AuthResponse) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    resp.Token,
		Path:     "/",
		MaxAge:   h.cookieMaxAge,
		HttpOnly: true,
		Secure:   isSecure(r),
		SameSite: http.SameSiteLaxMode,
	})

	respond.Auth(w, status, resp.Token, resp.User)
}

func isSecure(r *http.Request) bool {
	return r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
}

