package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/schoolhub/internal/auth"
	"github.com/hugh/schoolhub/internal/database"
	"github.com/hugh/schoolhub/internal/database/models"
	"github.com/hugh/schoolhub/internal/mail"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestPassword is the password of every user created by the fixtures.
const TestPassword = "testpassword123"

const testSecret = "test-secret-key-for-testing"

func init() {
	auth.BcryptCost = bcrypt.MinCost
}

// SetupTestDB creates an isolated in-memory SQLite database with the schema
// migrated and reference data seeded. Foreign keys are enforced.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	// A single connection keeps every statement on the same in-memory
	// database and serializes writers.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	if err := database.Seed(context.Background(), db); err != nil {
		t.Fatalf("failed to seed test database: %v", err)
	}

	return db
}

// Clock is a settable time source shared by the token service and the
// account workflows under test.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return NewClockAt(time.Now().UTC().Truncate(time.Second))
}

// NewClockAt starts a clock at now.
func NewClockAt(now time.Time) *Clock {
	return &Clock{now: now}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// CreateTestJWTService creates a JWT service for testing
func CreateTestJWTService(opts ...auth.Option) *auth.JWTService {
	return auth.NewJWTService(testSecret, 24*time.Hour, opts...)
}

// AuthConfig is the account workflow configuration used in tests.
func AuthConfig() auth.Config {
	return auth.Config{
		BaseURL:   "http://api.school.test",
		ResetURL:  "http://app.school.test/reset-password/",
		VerifyTTL: 10 * time.Minute,
		ResetTTL:  10 * time.Minute,
	}
}

// GenerateTestToken generates a valid JWT token for the given user
func GenerateTestToken(t *testing.T, jwtService *auth.JWTService, user *models.User) string {
	t.Helper()

	token, err := jwtService.GenerateToken(user)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}

	return token
}

func createUser(t *testing.T, tx *gorm.DB, role models.Role) (*models.User, *models.Info) {
	t.Helper()

	hash, err := auth.HashPassword(TestPassword)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	suffix := uuid.NewString()[:8]
	user := &models.User{
		Email:         string(role) + "-" + suffix + "@school.test",
		PasswordHash:  hash,
		Role:          role,
		EmailVerified: true,
		Active:        true,
	}
	if err := tx.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	info := &models.Info{
		FirstName: "Test",
		LastName:  string(role) + "-" + suffix,
		DOB:       models.NewDate(time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC)),
	}
	if err := tx.Create(info).Error; err != nil {
		t.Fatalf("failed to create test info: %v", err)
	}
	return user, info
}

// CreateTestSchoolAdmin creates an admin account running a new school and
// returns the admin's user together with the school link.
func CreateTestSchoolAdmin(t *testing.T, db *gorm.DB) (*models.User, *models.SchoolAdmin) {
	t.Helper()

	user, info := createUser(t, db, models.RoleAdmin)
	school := &models.School{SchoolName: "Test School"}
	if err := db.Create(school).Error; err != nil {
		t.Fatalf("failed to create test school: %v", err)
	}
	admin := &models.Admin{UserID: user.ID, InfoID: &info.ID}
	if err := db.Create(admin).Error; err != nil {
		t.Fatalf("failed to create test admin: %v", err)
	}
	link := &models.SchoolAdmin{AdminID: admin.ID, SchoolID: school.ID, Role: "Principal"}
	if err := db.Create(link).Error; err != nil {
		t.Fatalf("failed to create test school admin: %v", err)
	}
	admin.Info = info
	user.Admin = admin
	return user, link
}

// CreateTestUser creates a verified, active user with an Info record and a
// profile for role. Teachers and students get a fresh school admin.
func CreateTestUser(t *testing.T, db *gorm.DB, role models.Role) *models.User {
	t.Helper()

	switch role {
	case models.RoleAdmin:
		user, _ := CreateTestSchoolAdmin(t, db)
		return user
	case models.RoleTeacher:
		_, link := CreateTestSchoolAdmin(t, db)
		user, info := createUser(t, db, role)
		teacher := &models.Teacher{UserID: user.ID, SchoolAdminID: link.ID, InfoID: &info.ID}
		if err := db.Create(teacher).Error; err != nil {
			t.Fatalf("failed to create test teacher: %v", err)
		}
		teacher.Info = info
		user.Teacher = teacher
		return user
	case models.RoleStudent:
		_, link := CreateTestSchoolAdmin(t, db)
		user, info := createUser(t, db, role)
		student := &models.Student{UserID: &user.ID, SchoolAdminID: &link.ID, InfoID: &info.ID}
		if err := db.Create(student).Error; err != nil {
			t.Fatalf("failed to create test student: %v", err)
		}
		student.Info = info
		user.Student = student
		return user
	}
	t.Fatalf("unknown role %q", role)
	return nil
}

// CreateTestClass creates a class run by schoolAdminID.
func CreateTestClass(t *testing.T, db *gorm.DB, schoolAdminID uuid.UUID, name string) *models.Class {
	t.Helper()

	class := &models.Class{ClassName: name, Grade: "5", SchoolAdminID: &schoolAdminID}
	if err := db.Create(class).Error; err != nil {
		t.Fatalf("failed to create test class: %v", err)
	}
	return class
}

// CreateTestStudent creates a student without an account.
func CreateTestStudent(t *testing.T, db *gorm.DB, classID *uuid.UUID, firstName string) *models.Student {
	t.Helper()

	info := &models.Info{FirstName: firstName, LastName: "Student"}
	if err := db.Create(info).Error; err != nil {
		t.Fatalf("failed to create test info: %v", err)
	}
	student := &models.Student{ClassID: classID, InfoID: &info.ID}
	if err := db.Create(student).Error; err != nil {
		t.Fatalf("failed to create test student: %v", err)
	}
	student.Info = info
	return student
}

// CreateTestSession creates a subject, a period and a session for class
// taught by teacher on Monday.
func CreateTestSession(t *testing.T, db *gorm.DB, teacherID, classID uuid.UUID) *models.Session {
	t.Helper()

	subject := &models.Subject{Name: "Mathematics"}
	if err := db.Create(subject).Error; err != nil {
		t.Fatalf("failed to create test subject: %v", err)
	}
	period := &models.Period{PeriodName: "First"}
	if err := db.Create(period).Error; err != nil {
		t.Fatalf("failed to create test period: %v", err)
	}
	day := Day(t, db, models.Monday)
	session := &models.Session{
		TeacherID: teacherID,
		ClassID:   classID,
		SubjectID: subject.ID,
		PeriodID:  period.ID,
		DayID:     day.ID,
	}
	if err := db.Create(session).Error; err != nil {
		t.Fatalf("failed to create test session: %v", err)
	}
	return session
}

// CreateTestAttendance records status for student in session on date.
func CreateTestAttendance(t *testing.T, db *gorm.DB, studentID, sessionID uuid.UUID, date time.Time, status models.AttendanceStatus) *models.Attendance {
	t.Helper()

	a := &models.Attendance{
		Date:      models.NewDate(date),
		StudentID: studentID,
		SessionID: sessionID,
		StatusID:  Status(t, db, status).ID,
	}
	if err := db.Create(a).Error; err != nil {
		t.Fatalf("failed to create test attendance: %v", err)
	}
	return a
}

// Day returns the seeded row for d.
func Day(t *testing.T, db *gorm.DB, d models.Weekday) *models.Day {
	t.Helper()

	var day models.Day
	if err := db.Where("day = ?", d).Take(&day).Error; err != nil {
		t.Fatalf("failed to load day %s: %v", d, err)
	}
	return &day
}

// Status returns the seeded row for s.
func Status(t *testing.T, db *gorm.DB, s models.AttendanceStatus) *models.Status {
	t.Helper()

	var status models.Status
	if err := db.Where("status = ?", s).Take(&status).Error; err != nil {
		t.Fatalf("failed to load status %s: %v", s, err)
	}
	return &status
}

var verifyLinkRe = regexp.MustCompile(`/users/verifyEmail/([A-Za-z0-9_-]+)\?token=(\S+)`)

// VerificationLink extracts the nonce and ephemeral token from a
// verification email.
func VerificationLink(t *testing.T, msg mail.Message) (nonce, token string) {
	t.Helper()

	m := verifyLinkRe.FindStringSubmatch(msg.Text)
	if m == nil {
		t.Fatalf("no verification link in email: %s", msg.Text)
	}
	token, err := url.QueryUnescape(m[2])
	if err != nil {
		t.Fatalf("failed to unescape token: %v", err)
	}
	return m[1], token
}

var resetLinkRe = regexp.MustCompile(`reset-password/([A-Za-z0-9_-]+)`)

// ResetNonce extracts the reset nonce from a password reset email.
func ResetNonce(t *testing.T, msg mail.Message) string {
	t.Helper()

	m := resetLinkRe.FindStringSubmatch(msg.Text)
	if m == nil {
		t.Fatalf("no reset link in email: %s", msg.Text)
	}
	return m[1]
}

// AuthenticatedRequest creates an HTTP request with authentication
func AuthenticatedRequest(t *testing.T, method, path string, body interface{}, token string) *http.Request {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}

// UnauthenticatedRequest creates an HTTP request without authentication
func UnauthenticatedRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	return AuthenticatedRequest(t, method, path, body, "")
}

// AssertStatus checks if the response has the expected status code
func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if rr.Code != expected {
		t.Errorf("expected status %d, got %d. Body: %s", expected, rr.Code, rr.Body.String())
	}
}

// ParseJSONResponse parses the response body into the given struct
func ParseJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response body: %v. Body: %s", err, rr.Body.String())
	}
}

// TestContext creates a context with a timeout for tests
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestSetup holds all the common test dependencies
type TestSetup struct {
	DB         *gorm.DB
	Clock      *Clock
	JWTService *auth.JWTService
	Mailer     *mail.Recorder
	Auth       *auth.Service
}

// NewTestContext creates a database, a token service on a settable clock, a
// recording mailer and the account service wired to them.
func NewTestContext(t *testing.T) *TestSetup {
	t.Helper()

	db := SetupTestDB(t)
	clock := NewClock()
	jwtService := CreateTestJWTService(auth.WithClock(clock.Now))
	mailer := &mail.Recorder{}

	return &TestSetup{
		DB:         db,
		Clock:      clock,
		JWTService: jwtService,
		Mailer:     mailer,
		Auth:       auth.NewService(db, jwtService, mailer, AuthConfig()),
	}
}

// Token issues an access token for user at the current test time.
func (ts *TestSetup) Token(t *testing.T, user *models.User) string {
	t.Helper()
	return GenerateTestToken(t, ts.JWTService, user)
}
