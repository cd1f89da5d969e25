package handlers_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hugh/schoolhub/internal/api/handlers"
	"github.com/hugh/schoolhub/internal/database/models"
	"github.com/hugh/schoolhub/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStudentAttendanceHandler(t *testing.T) {
	tc := testutil.NewTestContext(t)
	teacher := testutil.CreateTestUser(t, tc.DB, models.RoleTeacher)
	class := testutil.CreateTestClass(t, tc.DB, teacher.Teacher.SchoolAdminID, "Year 5 Teal")
	session := testutil.CreateTestSession(t, tc.DB, teacher.Teacher.ID, class.ID)
	student := testutil.CreateTestStudent(t, tc.DB, &class.ID, "Alan")
	other := testutil.CreateTestStudent(t, tc.DB, &class.ID, "Joan")

	monday := testutil.CreateTestAttendance(t, tc.DB, student.ID, session.ID, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), models.StatusPresent)
	testutil.CreateTestAttendance(t, tc.DB, student.ID, session.ID, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), models.StatusLate)
	foreign := testutil.CreateTestAttendance(t, tc.DB, other.ID, session.ID, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), models.StatusPresent)
	absent := testutil.Status(t, tc.DB, models.StatusAbsent)

	h := handlers.NewStudentAttendanceHandler(tc.DB)
	r := chi.NewRouter()
	r.Get("/api/v1/attendance/students", h.List)
	r.Put("/api/v1/attendance/students/{id}", h.Update)
	path := "/api/v1/attendance/students/" + student.ID.String()

	guardian := func(t *testing.T) string {
		t.Helper()
		var s models.Student
		require.NoError(t, tc.DB.First(&s, "id = ?", student.ID).Error)
		return s.GuardianName
	}

	t.Run("list includes attendance", func(t *testing.T) {
		rr := serve(r, testutil.UnauthenticatedRequest(t, "GET", "/api/v1/attendance/students?sort=created_at", nil))
		testutil.AssertStatus(t, rr, http.StatusOK)

		var resp listResponse[models.Student]
		testutil.ParseJSONResponse(t, rr, &resp)
		require.Equal(t, 2, resp.Results)

		byID := map[uuid.UUID]models.Student{}
		for _, s := range resp.Data {
			byID[s.ID] = s
		}
		require.Len(t, byID[student.ID].Attendance, 2)
		require.Len(t, byID[other.ID].Attendance, 1)
		rec := byID[student.ID].Attendance[0]
		require.NotNil(t, rec.Session)
		require.NotNil(t, rec.Session.Class)
		assert.Equal(t, "Year 5 Teal", rec.Session.Class.ClassName)
		assert.NotNil(t, rec.Status)
	})

	t.Run("student and attendance change together", func(t *testing.T) {
		rr := serve(r, testutil.UnauthenticatedRequest(t, "PUT", path, map[string]interface{}{
			"guardian_name": "Ethel Turing",
			"attendance": []map[string]interface{}{
				{"id": monday.ID, "status_id": absent.ID},
			},
		}))
		testutil.AssertStatus(t, rr, http.StatusOK)

		var resp itemResponse[models.Student]
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, "Ethel Turing", resp.Data.GuardianName)
		assert.Len(t, resp.Data.Attendance, 2)

		var stored models.Attendance
		require.NoError(t, tc.DB.First(&stored, "id = ?", monday.ID).Error)
		assert.Equal(t, absent.ID, stored.StatusID)
	})

	failures := []struct {
		name string
		path string
		body map[string]interface{}
		want int
	}{
		{
			name: "record of another student rolls back",
			path: path,
			body: map[string]interface{}{
				"guardian_name": "Rolled Back",
				"attendance":    []map[string]interface{}{{"id": foreign.ID, "status_id": absent.ID}},
			},
			want: http.StatusBadRequest,
		},
		{
			name: "missing record rolls back",
			path: path,
			body: map[string]interface{}{
				"guardian_name": "Rolled Back",
				"attendance":    []map[string]interface{}{{"id": uuid.New(), "status_id": absent.ID}},
			},
			want: http.StatusNotFound,
		},
		{
			name: "invalid attendance field rolls back",
			path: path,
			body: map[string]interface{}{
				"guardian_name": "Rolled Back",
				"attendance":    []map[string]interface{}{{"id": monday.ID, "colour": "red"}},
			},
			want: http.StatusBadRequest,
		},
		{
			name: "entry without id",
			path: path,
			body: map[string]interface{}{"attendance": []map[string]interface{}{{"status_id": absent.ID}}},
			want: http.StatusBadRequest,
		},
		{
			name: "entry moving to another student",
			path: path,
			body: map[string]interface{}{"attendance": []map[string]interface{}{{"id": monday.ID, "student_id": other.ID}}},
			want: http.StatusBadRequest,
		},
		{
			name: "attendance is not an array",
			path: path,
			body: map[string]interface{}{"attendance": "all present"},
			want: http.StatusBadRequest,
		},
		{
			name: "unknown student",
			path: "/api/v1/attendance/students/" + uuid.NewString(),
			body: map[string]interface{}{"guardian_name": "Nobody"},
			want: http.StatusNotFound,
		},
	}

	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(r, testutil.UnauthenticatedRequest(t, "PUT", tt.path, tt.body))
			testutil.AssertStatus(t, rr, tt.want)
			assert.Equal(t, "Ethel Turing", guardian(t))

			var stored models.Attendance
			require.NoError(t, tc.DB.First(&stored, "id = ?", foreign.ID).Error)
			assert.NotEqual(t, absent.ID, stored.StatusID)
		})
	}
}
