package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hugh/schoolhub/internal/api/dto"
	"github.com/hugh/schoolhub/internal/api/handlers"
	"github.com/hugh/schoolhub/internal/api/middleware"
	"github.com/hugh/schoolhub/internal/database/models"
	"github.com/hugh/schoolhub/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cookieMaxAge = 90 * 24 * 60 * 60

func setupAuthTestRouter(t *testing.T) (*chi.Mux, *testutil.TestSetup) {
	tc := testutil.NewTestContext(t)
	handler := handlers.NewAuthHandler(tc.Auth, cookieMaxAge)

	r := chi.NewRouter()
	r.Route("/api/v1/users", func(r chi.Router) {
		r.Post("/signup", handler.Signup)
		r.Post("/login", handler.Login)
		r.Post("/forgotPassword", handler.ForgotPassword)
		r.Get("/verifyEmail/{nonce}", handler.VerifyEmail)
		r.Patch("/resetPassword/{token}", handler.ResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Protect(tc.JWTService, tc.Auth))
			r.Use(middleware.RequireVerifiedEmail)
			r.Get("/me", handler.Me)
			r.Patch("/updateMe", handler.UpdateMe)
			r.Delete("/deleteMe", handler.DeleteMe)
			r.Patch("/updatePassword", handler.UpdatePassword)
			r.Post("/logout", handler.Logout)
			r.Post("/signup/teacher", handler.SignupTeacher)
			r.Post("/signup/student", handler.SignupStudent)
		})
	})

	return r, tc
}

func adminSignupBody(email string) map[string]string {
	return map[string]string{
		"email":               email,
		"password":            "s3cret-pass",
		"password_confirm":    "s3cret-pass",
		"first_name":          "Grace",
		"last_name":           "Hopper",
		"phone_number":        "+1 555 0100",
		"dob":                 "1980-02-29",
		"school_name":         "Harbor Academy",
		"school_address":      "1 Quay Street",
		"school_phone_number": "+1 555 0199",
	}
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func jwtCookie(rr *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == middleware.TokenCookie {
			return c
		}
	}
	return nil
}

func TestAuthHandler_SignupAndVerify(t *testing.T) {
	router, tc := setupAuthTestRouter(t)

	rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/api/v1/users/signup", adminSignupBody("grace@harbor.test")))
	testutil.AssertStatus(t, rr, http.StatusOK)

	var signup dto.Response
	testutil.ParseJSONResponse(t, rr, &signup)
	assert.Equal(t, "success", signup.Status)
	assert.NotEmpty(t, signup.Token)
	assert.Contains(t, signup.Message, "Verification email sent")

	var count int64
	require.NoError(t, tc.DB.Model(&models.User{}).Count(&count).Error)
	assert.Zero(t, count, "nothing is stored before verification")

	msg, ok := tc.Mailer.Last()
	require.True(t, ok)
	nonce, token := testutil.VerificationLink(t, msg)
	verifyPath := "/api/v1/users/verifyEmail/" + nonce + "?token=" + url.QueryEscape(token)

	rr = serve(router, testutil.UnauthenticatedRequest(t, "GET", verifyPath, nil))
	testutil.AssertStatus(t, rr, http.StatusOK)

	var verified struct {
		Status  string       `json:"status"`
		Message string       `json:"message"`
		Data    dto.UserData `json:"data"`
	}
	testutil.ParseJSONResponse(t, rr, &verified)
	assert.Equal(t, "Email verified and account created successfully!", verified.Message)
	require.NotNil(t, verified.Data.User)
	assert.Equal(t, "grace@harbor.test", verified.Data.User.Email)
	assert.Equal(t, models.RoleAdmin, verified.Data.User.Role)

	t.Run("second verification fails", func(t *testing.T) {
		rr := serve(router, testutil.UnauthenticatedRequest(t, "GET", verifyPath, nil))
		testutil.AssertStatus(t, rr, http.StatusBadRequest)

		var body dto.ErrorResponse
		testutil.ParseJSONResponse(t, rr, &body)
		assert.Equal(t, "fail", body.Status)
		assert.Equal(t, "Token is invalid or has expired", body.Message)
	})

	t.Run("signing up again conflicts", func(t *testing.T) {
		rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/api/v1/users/signup", adminSignupBody("grace@harbor.test")))
		testutil.AssertStatus(t, rr, http.StatusConflict)
	})
}

func TestAuthHandler_SignupValidation(t *testing.T) {
	router, _ := setupAuthTestRouter(t)

	tests := []struct {
		name   string
		modify func(map[string]string)
		field  string
	}{
		{"password mismatch", func(b map[string]string) { b["password_confirm"] = "different-pass" }, "password_confirm"},
		{"short password", func(b map[string]string) { b["password"] = "short"; b["password_confirm"] = "short" }, "password"},
		{"bad email", func(b map[string]string) { b["email"] = "not-an-email" }, "email"},
		{"bad dob", func(b map[string]string) { b["dob"] = "29/02/1980" }, "dob"},
		{"missing school", func(b map[string]string) { delete(b, "school_name") }, "school_name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := adminSignupBody("val@harbor.test")
			tt.modify(body)

			rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/api/v1/users/signup", body))
			testutil.AssertStatus(t, rr, http.StatusBadRequest)

			var resp dto.ErrorResponse
			testutil.ParseJSONResponse(t, rr, &resp)
			assert.Equal(t, "fail", resp.Status)
			assert.Contains(t, resp.Errors, tt.field)
		})
	}

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/v1/users/signup", nil)
		rr := serve(router, req)
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})
}

func TestAuthHandler_SignupTeacher(t *testing.T) {
	router, tc := setupAuthTestRouter(t)
	admin := testutil.CreateTestUser(t, tc.DB, models.RoleAdmin)

	body := adminSignupBody("alan@harbor.test")
	rr := serve(router, testutil.AuthenticatedRequest(t, "POST", "/api/v1/users/signup/teacher", body, tc.Token(t, admin)))
	testutil.AssertStatus(t, rr, http.StatusOK)

	msg, ok := tc.Mailer.Last()
	require.True(t, ok)
	nonce, token := testutil.VerificationLink(t, msg)

	rr = serve(router, testutil.UnauthenticatedRequest(t, "GET",
		"/api/v1/users/verifyEmail/"+nonce+"?token="+url.QueryEscape(token), nil))
	testutil.AssertStatus(t, rr, http.StatusOK)

	var teacher models.Teacher
	require.NoError(t, tc.DB.Joins("JOIN users ON users.id = teachers.user_id").
		Where("users.email = ?", "alan@harbor.test").Take(&teacher).Error)
	assert.Equal(t, admin.Admin.ID, linkedAdmin(t, tc, teacher))
}

func linkedAdmin(t *testing.T, tc *testutil.TestSetup, teacher models.Teacher) uuid.UUID {
	t.Helper()
	var link models.SchoolAdmin
	require.NoError(t, tc.DB.Where("id = ?", teacher.SchoolAdminID).Take(&link).Error)
	return link.AdminID
}

func TestAuthHandler_Login(t *testing.T) {
	router, tc := setupAuthTestRouter(t)
	user := testutil.CreateTestUser(t, tc.DB, models.RoleTeacher)

	t.Run("successful login", func(t *testing.T) {
		rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/api/v1/users/login", map[string]string{
			"email":    user.Email,
			"password": testutil.TestPassword,
		}))
		testutil.AssertStatus(t, rr, http.StatusOK)

		var resp struct {
			Status string       `json:"status"`
			Token  string       `json:"token"`
			Data   dto.UserData `json:"data"`
		}
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, "success", resp.Status)
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, user.ID, resp.Data.User.ID)
		assert.NotContains(t, rr.Body.String(), "password_hash")

		cookie := jwtCookie(rr)
		require.NotNil(t, cookie)
		assert.Equal(t, resp.Token, cookie.Value)
		assert.True(t, cookie.HttpOnly)
		assert.False(t, cookie.Secure)
		assert.Equal(t, cookieMaxAge, cookie.MaxAge)
	})

	t.Run("cookie is secure behind a TLS proxy", func(t *testing.T) {
		req := testutil.UnauthenticatedRequest(t, "POST", "/api/v1/users/login", map[string]string{
			"email":    user.Email,
			"password": testutil.TestPassword,
		})
		req.Header.Set("X-Forwarded-Proto", "https")
		rr := serve(router, req)
		testutil.AssertStatus(t, rr, http.StatusOK)
		require.NotNil(t, jwtCookie(rr))
		assert.True(t, jwtCookie(rr).Secure)
	})

	t.Run("wrong password", func(t *testing.T) {
		rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/api/v1/users/login", map[string]string{
			"email":    user.Email,
			"password": "wrong-password",
		}))
		testutil.AssertStatus(t, rr, http.StatusUnauthorized)

		var resp dto.ErrorResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, "Incorrect email or password", resp.Message)
	})

	t.Run("missing fields", func(t *testing.T) {
		rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/api/v1/users/login", map[string]string{
			"email": user.Email,
		}))
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})
}

func TestAuthHandler_Logout(t *testing.T) {
	router, tc := setupAuthTestRouter(t)
	user := testutil.CreateTestUser(t, tc.DB, models.RoleStudent)

	rr := serve(router, testutil.AuthenticatedRequest(t, "POST", "/api/v1/users/logout", nil, tc.Token(t, user)))
	testutil.AssertStatus(t, rr, http.StatusOK)

	cookie := jwtCookie(rr)
	require.NotNil(t, cookie)
	assert.Equal(t, "loggedout", cookie.Value)
	assert.Equal(t, 10, cookie.MaxAge)

	t.Run("the placeholder cookie does not authenticate", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/users/me", nil)
		req.AddCookie(cookie)
		rr := serve(router, req)
		testutil.AssertStatus(t, rr, http.StatusUnauthorized)
	})
}

func TestAuthHandler_Me(t *testing.T) {
	router, tc := setupAuthTestRouter(t)
	user := testutil.CreateTestUser(t, tc.DB, models.RoleTeacher)
	token := tc.Token(t, user)

	rr := serve(router, testutil.AuthenticatedRequest(t, "GET", "/api/v1/users/me", nil, token))
	testutil.AssertStatus(t, rr, http.StatusOK)

	var resp struct {
		Data dto.UserData `json:"data"`
	}
	testutil.ParseJSONResponse(t, rr, &resp)
	require.NotNil(t, resp.Data.User.Teacher)
	require.NotNil(t, resp.Data.User.Teacher.Info)
	assert.Equal(t, "Test", resp.Data.User.Teacher.Info.FirstName)

	t.Run("update details", func(t *testing.T) {
		rr := serve(router, testutil.AuthenticatedRequest(t, "PATCH", "/api/v1/users/updateMe",
			map[string]string{"first_name": "Barbara", "address": "7 Elm Row"}, token))
		testutil.AssertStatus(t, rr, http.StatusOK)

		var resp struct {
			Data dto.UserData `json:"data"`
		}
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, "Barbara", resp.Data.User.Teacher.Info.FirstName)
		assert.Equal(t, "7 Elm Row", resp.Data.User.Teacher.Info.Address)
	})

	t.Run("password fields are rejected", func(t *testing.T) {
		rr := serve(router, testutil.AuthenticatedRequest(t, "PATCH", "/api/v1/users/updateMe",
			map[string]string{"password": "new-password-1"}, token))
		testutil.AssertStatus(t, rr, http.StatusBadRequest)

		var resp dto.ErrorResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Contains(t, resp.Message, "This route is not for password updates")
	})

	t.Run("delete me deactivates", func(t *testing.T) {
		rr := serve(router, testutil.AuthenticatedRequest(t, "DELETE", "/api/v1/users/deleteMe", nil, token))
		testutil.AssertStatus(t, rr, http.StatusNoContent)
		assert.Empty(t, rr.Body.String())

		rr = serve(router, testutil.AuthenticatedRequest(t, "GET", "/api/v1/users/me", nil, token))
		testutil.AssertStatus(t, rr, http.StatusUnauthorized)

		rr = serve(router, testutil.UnauthenticatedRequest(t, "POST", "/api/v1/users/login", map[string]string{
			"email":    user.Email,
			"password": testutil.TestPassword,
		}))
		testutil.AssertStatus(t, rr, http.StatusUnauthorized)
	})
}

func TestAuthHandler_UnverifiedEmail(t *testing.T) {
	router, tc := setupAuthTestRouter(t)
	user := testutil.CreateTestUser(t, tc.DB, models.RoleAdmin)
	require.NoError(t, tc.DB.Model(&models.User{}).Where("id = ?", user.ID).Update("email_verified", false).Error)

	rr := serve(router, testutil.AuthenticatedRequest(t, "GET", "/api/v1/users/me", nil, tc.Token(t, user)))
	testutil.AssertStatus(t, rr, http.StatusForbidden)
}

func TestAuthHandler_PasswordReset(t *testing.T) {
	router, tc := setupAuthTestRouter(t)
	user := testutil.CreateTestUser(t, tc.DB, models.RoleAdmin)
	oldToken := tc.Token(t, user)

	t.Run("unknown email", func(t *testing.T) {
		rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/api/v1/users/forgotPassword",
			map[string]string{"email": "nobody@harbor.test"}))
		testutil.AssertStatus(t, rr, http.StatusNotFound)
	})

	rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/api/v1/users/forgotPassword",
		map[string]string{"email": user.Email}))
	testutil.AssertStatus(t, rr, http.StatusOK)

	msg, ok := tc.Mailer.Last()
	require.True(t, ok)
	nonce := testutil.ResetNonce(t, msg)

	t.Run("mismatched confirmation", func(t *testing.T) {
		rr := serve(router, testutil.UnauthenticatedRequest(t, "PATCH", "/api/v1/users/resetPassword/"+nonce,
			map[string]string{"password": "brand-new-pass", "password_confirm": "other-pass-123"}))
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})

	tc.Clock.Advance(2 * time.Second)
	rr = serve(router, testutil.UnauthenticatedRequest(t, "PATCH", "/api/v1/users/resetPassword/"+nonce,
		map[string]string{"password": "brand-new-pass", "password_confirm": "brand-new-pass"}))
	testutil.AssertStatus(t, rr, http.StatusOK)
	require.NotNil(t, jwtCookie(rr))

	t.Run("token is single use", func(t *testing.T) {
		rr := serve(router, testutil.UnauthenticatedRequest(t, "PATCH", "/api/v1/users/resetPassword/"+nonce,
			map[string]string{"password": "brand-new-pass", "password_confirm": "brand-new-pass"}))
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})

	t.Run("tokens issued before the reset are stale", func(t *testing.T) {
		rr := serve(router, testutil.AuthenticatedRequest(t, "GET", "/api/v1/users/me", nil, oldToken))
		testutil.AssertStatus(t, rr, http.StatusUnauthorized)
	})
}

func TestAuthHandler_UpdatePassword(t *testing.T) {
	router, tc := setupAuthTestRouter(t)
	user := testutil.CreateTestUser(t, tc.DB, models.RoleAdmin)
	token := tc.Token(t, user)

	rr := serve(router, testutil.AuthenticatedRequest(t, "PATCH", "/api/v1/users/updatePassword", map[string]string{
		"password_current": "not-my-password",
		"password":         "another-pass-1",
		"password_confirm": "another-pass-1",
	}, token))
	testutil.AssertStatus(t, rr, http.StatusUnauthorized)

	tc.Clock.Advance(2 * time.Second)
	rr = serve(router, testutil.AuthenticatedRequest(t, "PATCH", "/api/v1/users/updatePassword", map[string]string{
		"password_current": testutil.TestPassword,
		"password":         "another-pass-1",
		"password_confirm": "another-pass-1",
	}, token))
	testutil.AssertStatus(t, rr, http.StatusOK)

	var resp dto.Response
	testutil.ParseJSONResponse(t, rr, &resp)
	require.NotEmpty(t, resp.Token)

	rr = serve(router, testutil.AuthenticatedRequest(t, "GET", "/api/v1/users/me", nil, resp.Token))
	testutil.AssertStatus(t, rr, http.StatusOK)
}
