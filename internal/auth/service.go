package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/schoolhub/internal/api/validation"
	"github.com/hugh/schoolhub/internal/apperr"
	"github.com/hugh/schoolhub/internal/database/models"
	"github.com/hugh/schoolhub/internal/mail"
	"github.com/hugh/schoolhub/pkg/crypto"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound = errors.New("user not found")
)

const (
	msgIncorrectLogin   = "Incorrect email or password"
	msgEmailSendFailed  = "There was an error sending the email. Try again later!"
	msgAccountCreation  = "Failed to create user account"
	msgWrongCurrentPass = "Your current password is wrong."
	msgNotForPasswords  = "This route is not for password updates. Please use /updatePassword."
)

// Config holds the settings the account workflows need.
type Config struct {
	// BaseURL is the public origin of the API, used in verification links.
	BaseURL string
	// ResetURL is the client page that receives the reset nonce.
	ResetURL  string
	VerifyTTL time.Duration
	ResetTTL  time.Duration
}

type Service struct {
	db     *gorm.DB
	jwt    *JWTService
	mailer mail.Sender
	cfg    Config
}

func NewService(db *gorm.DB, jwt *JWTService, mailer mail.Sender, cfg Config) *Service {
	return &Service{db: db, jwt: jwt, mailer: mailer, cfg: cfg}
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

func (s *Service) now() time.Time {
	return s.jwt.now()
}

// Signup validates a registration and emails a verification link. Nothing
// is written to the database until the link is followed. caller is nil for
// public signups, which may only register admins.
func (s *Service) Signup(ctx context.Context, caller *models.User, in AccountInput, reg Registration) (string, error) {
	if reg == nil {
		return "", apperr.Validation("Missing registration details")
	}
	in.Email = normalizeEmail(in.Email)
	if err := validation.Struct(in); err != nil {
		return "", err
	}
	if err := validation.Struct(reg); err != nil {
		return "", err
	}
	if caller == nil && reg.Role() != models.RoleAdmin {
		return "", apperr.Forbidden("You do not have permission to perform this action")
	}

	reg, err := s.resolveRegistration(ctx, caller, reg)
	if err != nil {
		return "", err
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", in.Email).Count(&count).Error; err != nil {
		return "", apperr.FromStore(err, "")
	}
	if count > 0 {
		return "", apperr.Conflict("An account with that email already exists")
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	nonce, err := crypto.NewNonce()
	if err != nil {
		return "", err
	}

	pending := PendingAccount{
		Email:        in.Email,
		PasswordHash: hash,
		NonceHash:    crypto.HashToken(nonce),
		Info: PendingInfo{
			FirstName:   in.FirstName,
			LastName:    in.LastName,
			PhoneNumber: in.PhoneNumber,
			Address:     in.Address,
			DOB:         in.DOB,
		},
	}
	pending.setRegistration(reg)

	token, err := s.jwt.IssueEphemeral(PurposeSignup, pending, s.cfg.VerifyTTL)
	if err != nil {
		return "", fmt.Errorf("issuing verification token: %w", err)
	}

	link := fmt.Sprintf("%s/api/v1/users/verifyEmail/%s?token=%s",
		strings.TrimRight(s.cfg.BaseURL, "/"), nonce, url.QueryEscape(token))
	msg, err := mail.Verification(in.Email, in.FirstName, link)
	if err != nil {
		return "", err
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "sending verification email", "error", err)
		return "", apperr.Internal(msgEmailSendFailed, err)
	}

	return token, nil
}

// resolveRegistration fills in defaults and checks that referenced records
// exist, so that verification does not fail later on a dangling reference.
func (s *Service) resolveRegistration(ctx context.Context, caller *models.User, reg Registration) (Registration, error) {
	db := s.db.WithContext(ctx)

	switch r := reg.(type) {
	case AdminRegistration, *AdminRegistration:
		return reg, nil
	case TeacherRegistration:
		if r.SchoolAdminID == uuid.Nil {
			id, err := s.callerSchoolAdmin(ctx, caller)
			if err != nil {
				return nil, err
			}
			r.SchoolAdminID = id
		} else if err := exists(db, &models.SchoolAdmin{}, r.SchoolAdminID, "No school admin found with that ID"); err != nil {
			return nil, err
		}
		return r, nil
	case *TeacherRegistration:
		return s.resolveRegistration(ctx, caller, *r)
	case StudentRegistration:
		if r.SchoolAdminID != nil {
			if err := exists(db, &models.SchoolAdmin{}, *r.SchoolAdminID, "No school admin found with that ID"); err != nil {
				return nil, err
			}
		}
		if r.ClassID != nil {
			if err := exists(db, &models.Class{}, *r.ClassID, "No class found with that ID"); err != nil {
				return nil, err
			}
		}
		return r, nil
	case *StudentRegistration:
		return s.resolveRegistration(ctx, caller, *r)
	}
	return nil, apperr.Validation("Unsupported registration")
}

// callerSchoolAdmin returns the first school link of the calling admin.
func (s *Service) callerSchoolAdmin(ctx context.Context, caller *models.User) (uuid.UUID, error) {
	missing := apperr.Validation("school_admin_id is required")
	if caller == nil || caller.Role != models.RoleAdmin {
		return uuid.Nil, missing
	}
	var link models.SchoolAdmin
	err := s.db.WithContext(ctx).
		Joins("JOIN admins ON admins.id = school_admins.admin_id").
		Where("admins.user_id = ?", caller.ID).
		Order("school_admins.created_at ASC").
		Take(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, missing
	}
	if err != nil {
		return uuid.Nil, apperr.FromStore(err, "")
	}
	return link.ID, nil
}

func exists(db *gorm.DB, model interface{}, id uuid.UUID, notFound string) error {
	var count int64
	if err := db.Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return apperr.FromStore(err, notFound)
	}
	if count == 0 {
		return apperr.NotFound(notFound)
	}
	return nil
}

// VerifyEmail completes a signup: it checks the emailed nonce against the
// ephemeral token and creates the account and its profile in one
// transaction.
func (s *Service) VerifyEmail(ctx context.Context, nonce, token string) (*models.User, error) {
	var pending PendingAccount
	if err := s.jwt.VerifyEphemeral(token, PurposeSignup, &pending); err != nil {
		return nil, apperr.InvalidToken()
	}
	if nonce == "" || !crypto.EqualHash(crypto.HashToken(nonce), pending.NonceHash) {
		return nil, apperr.InvalidToken()
	}
	reg, err := pending.Registration()
	if err != nil {
		return nil, apperr.InvalidToken()
	}

	// A second visit to the same link finds the account already created.
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", pending.Email).Count(&count).Error; err != nil {
		return nil, apperr.FromStore(err, "")
	}
	if count > 0 {
		return nil, apperr.InvalidToken()
	}

	dob, err := models.ParseDate(pending.Info.DOB)
	if err != nil {
		return nil, apperr.InvalidToken()
	}

	user := &models.User{
		Email:         pending.Email,
		PasswordHash:  pending.PasswordHash,
		Role:          reg.Role(),
		EmailVerified: true,
		Active:        true,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		info := &models.Info{
			FirstName:   pending.Info.FirstName,
			LastName:    pending.Info.LastName,
			PhoneNumber: pending.Info.PhoneNumber,
			Address:     pending.Info.Address,
			DOB:         dob,
		}
		if err := tx.Create(info).Error; err != nil {
			return err
		}
		return createProfile(tx, user, info, reg)
	})
	if err != nil {
		if apperr.IsUniqueViolation(err) {
			return nil, apperr.InvalidToken()
		}
		slog.ErrorContext(ctx, "creating verified account", "email", pending.Email, "error", err)
		return nil, apperr.Internal(msgAccountCreation, err)
	}

	return user, nil
}

// createProfile writes the role-specific rows for a new account.
func createProfile(tx *gorm.DB, user *models.User, info *models.Info, reg Registration) error {
	switch r := reg.(type) {
	case AdminRegistration:
		school := &models.School{
			SchoolName:        r.SchoolName,
			SchoolAddress:     r.SchoolAddress,
			SchoolPhoneNumber: r.SchoolPhoneNumber,
		}
		if err := tx.Create(school).Error; err != nil {
			return fmt.Errorf("creating school: %w", err)
		}
		admin := &models.Admin{UserID: user.ID, InfoID: &info.ID}
		if err := tx.Create(admin).Error; err != nil {
			return fmt.Errorf("creating admin: %w", err)
		}
		link := &models.SchoolAdmin{AdminID: admin.ID, SchoolID: school.ID}
		if err := tx.Create(link).Error; err != nil {
			return fmt.Errorf("linking admin to school: %w", err)
		}
		return nil
	case TeacherRegistration:
		teacher := &models.Teacher{
			UserID:        user.ID,
			SchoolAdminID: r.SchoolAdminID,
			InfoID:        &info.ID,
		}
		if err := tx.Create(teacher).Error; err != nil {
			return fmt.Errorf("creating teacher: %w", err)
		}
		return nil
	case StudentRegistration:
		student := &models.Student{
			UserID:               &user.ID,
			SchoolAdminID:        r.SchoolAdminID,
			ClassID:              r.ClassID,
			InfoID:               &info.ID,
			GuardianName:         r.GuardianName,
			GuardianEmail:        r.GuardianEmail,
			GuardianRelationship: r.GuardianRelationship,
			GuardianContact:      r.GuardianContact,
		}
		if err := tx.Create(student).Error; err != nil {
			return fmt.Errorf("creating student: %w", err)
		}
		return nil
	}
	return errNoRegistration
}

// Login checks credentials and issues an access token.
func (s *Service) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperr.Validation("Please provide email and password")
	}

	var user models.User
	err := s.db.WithContext(ctx).
		Where("email = ? AND active = ?", email, true).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Unauthenticated(msgIncorrectLogin)
	}
	if err != nil {
		return nil, apperr.FromStore(err, "")
	}
	if !CheckPassword(password, user.PasswordHash) {
		return nil, apperr.Unauthenticated(msgIncorrectLogin)
	}

	return s.respond(&user)
}

// GetActiveUser loads an active user by id without associations.
func (s *Service) GetActiveUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Where("id = ? AND active = ?", id, true).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Profile loads an active user with whichever role profile it has.
func (s *Service) Profile(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Preload("Admin.Info").
		Preload("Admin.SchoolAdmins.School").
		Preload("Teacher.Info").
		Preload("Student.Info").
		Preload("Student.Class").
		Where("id = ? AND active = ?", id, true).
		Take(&user).Error
	if err != nil {
		return nil, apperr.FromStore(err, "No user found with that ID")
	}
	return &user, nil
}

// ForgotPassword stores the hash of a fresh nonce and emails the reset
// link. The token is withdrawn again when the email cannot be sent.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	var user models.User
	err := s.db.WithContext(ctx).
		Preload("Admin.Info").Preload("Teacher.Info").Preload("Student.Info").
		Where("email = ? AND active = ?", email, true).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("There is no user with that email address.")
	}
	if err != nil {
		return apperr.FromStore(err, "")
	}

	nonce, err := crypto.NewNonce()
	if err != nil {
		return err
	}
	expires := s.now().Add(s.cfg.ResetTTL)
	if err := s.db.WithContext(ctx).Model(&user).Updates(map[string]interface{}{
		"password_reset_token":   crypto.HashToken(nonce),
		"password_reset_expires": expires,
	}).Error; err != nil {
		return apperr.FromStore(err, "")
	}

	firstName := ""
	if info := user.ProfileInfo(); info != nil {
		firstName = info.FirstName
	}
	msg, err := mail.PasswordReset(user.Email, firstName, s.cfg.ResetURL+nonce)
	if err == nil {
		err = s.mailer.Send(ctx, msg)
	}
	if err != nil {
		slog.ErrorContext(ctx, "sending password reset email", "user_id", user.ID, "error", err)
		if clearErr := clearResetToken(s.db.WithContext(ctx), user.ID); clearErr != nil {
			slog.ErrorContext(ctx, "clearing reset token", "user_id", user.ID, "error", clearErr)
		}
		return apperr.Internal(msgEmailSendFailed, err)
	}
	return nil
}

// ResetPassword consumes a reset nonce and sets a new password. The token
// is single use.
func (s *Service) ResetPassword(ctx context.Context, nonce, password, confirm string) (*AuthResponse, error) {
	if nonce == "" {
		return nil, apperr.InvalidToken()
	}
	var user models.User
	err := s.db.WithContext(ctx).
		Where("password_reset_token = ? AND password_reset_expires > ? AND active = ?",
			crypto.HashToken(nonce), s.now(), true).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.InvalidToken()
	}
	if err != nil {
		return nil, apperr.FromStore(err, "")
	}

	if err := s.setPassword(ctx, &user, password, confirm); err != nil {
		return nil, err
	}
	return s.respond(&user)
}

// UpdatePassword changes the password of a logged-in user after checking
// the current one.
func (s *Service) UpdatePassword(ctx context.Context, principal *models.User, current, password, confirm string) (*AuthResponse, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", principal.ID).Take(&user).Error; err != nil {
		return nil, apperr.FromStore(err, "No user found with that ID")
	}
	if !CheckPassword(current, user.PasswordHash) {
		return nil, apperr.Unauthenticated(msgWrongCurrentPass)
	}
	if err := s.setPassword(ctx, &user, password, confirm); err != nil {
		return nil, err
	}
	return s.respond(&user)
}

type passwordChange struct {
	Password        string `json:"password" validate:"required,password"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

// setPassword stores a new hash and clears any reset token. Tokens issued
// in an earlier millisecond than password_changed_at become stale.
func (s *Service) setPassword(ctx context.Context, user *models.User, password, confirm string) error {
	if err := validation.Struct(passwordChange{Password: password, PasswordConfirm: confirm}); err != nil {
		return err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	changedAt := s.now().Truncate(time.Millisecond)
	err = s.db.WithContext(ctx).Model(user).Select(
		"password_hash", "password_changed_at", "password_reset_token", "password_reset_expires",
	).Updates(&models.User{
		PasswordHash:      hash,
		PasswordChangedAt: &changedAt,
	}).Error
	if err != nil {
		return apperr.FromStore(err, "")
	}
	user.PasswordHash = hash
	user.PasswordChangedAt = &changedAt
	user.PasswordResetToken = ""
	user.PasswordResetExpires = nil
	return nil
}

// UpdateMeInput is the set of personal details a user may change about
// themselves. Password fields are only present to be rejected.
type UpdateMeInput struct {
	FirstName       *string `json:"first_name" validate:"omitempty,min=1,max=100"`
	LastName        *string `json:"last_name" validate:"omitempty,min=1,max=100"`
	PhoneNumber     *string `json:"phone_number" validate:"omitempty,phone"`
	Address         *string `json:"address" validate:"omitempty,max=255"`
	DOB             *string `json:"dob" validate:"omitempty,datetime=2006-01-02"`
	Password        *string `json:"password"`
	PasswordConfirm *string `json:"password_confirm"`
}

// UpdateMe changes the Info record behind the principal's profile.
func (s *Service) UpdateMe(ctx context.Context, principal *models.User, in UpdateMeInput) (*models.User, error) {
	if in.Password != nil || in.PasswordConfirm != nil {
		return nil, apperr.Validation(msgNotForPasswords)
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	user, err := s.Profile(ctx, principal.ID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if in.FirstName != nil {
		updates["first_name"] = *in.FirstName
	}
	if in.LastName != nil {
		updates["last_name"] = *in.LastName
	}
	if in.PhoneNumber != nil {
		updates["phone_number"] = *in.PhoneNumber
	}
	if in.Address != nil {
		updates["address"] = *in.Address
	}
	if in.DOB != nil {
		dob, err := models.ParseDate(*in.DOB)
		if err != nil {
			return nil, apperr.Validation(err.Error())
		}
		updates["dob"] = dob
	}
	if len(updates) == 0 {
		return user, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		info := user.ProfileInfo()
		if info == nil {
			info = &models.Info{}
			if v, ok := updates["first_name"].(string); ok {
				info.FirstName = v
			}
			if v, ok := updates["last_name"].(string); ok {
				info.LastName = v
			}
			if err := validation.Struct(info); err != nil {
				return err
			}
			if err := tx.Create(info).Error; err != nil {
				return err
			}
			if err := attachInfo(tx, user, info.ID); err != nil {
				return err
			}
		}
		return tx.Model(&models.Info{}).Where("id = ?", info.ID).Updates(updates).Error
	})
	if err != nil {
		return nil, apperr.FromStore(err, "")
	}
	return s.Profile(ctx, principal.ID)
}

func attachInfo(tx *gorm.DB, user *models.User, infoID uuid.UUID) error {
	switch {
	case user.Admin != nil:
		return tx.Model(user.Admin).Update("info_id", infoID).Error
	case user.Teacher != nil:
		return tx.Model(user.Teacher).Update("info_id", infoID).Error
	case user.Student != nil:
		return tx.Model(user.Student).Update("info_id", infoID).Error
	}
	return apperr.NotFound("No profile found for this user")
}

// Deactivate soft-deletes the principal. Inactive users are invisible to
// login, authentication and the user listing.
func (s *Service) Deactivate(ctx context.Context, principal *models.User) error {
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", principal.ID).
		Update("active", false).Error
	return apperr.FromStore(err, "")
}

func (s *Service) respond(user *models.User) (*AuthResponse, error) {
	token, err := s.jwt.GenerateToken(user)
	if err != nil {
		return nil, fmt.Errorf("generating token: %w", err)
	}
	return &AuthResponse{Token: token, User: user}, nil
}

// PurgeExpiredResetTokens clears reset tokens whose expiry has passed and
// reports how many were cleared.
func PurgeExpiredResetTokens(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Model(&models.User{}).
		Where("password_reset_expires IS NOT NULL AND password_reset_expires <= ?", now).
		Updates(map[string]interface{}{
			"password_reset_token":   "",
			"password_reset_expires": nil,
		})
	return res.RowsAffected, res.Error
}

func clearResetToken(db *gorm.DB, id uuid.UUID) error {
	return db.Model(&models.User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"password_reset_token":   "",
		"password_reset_expires": nil,
	}).Error
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
