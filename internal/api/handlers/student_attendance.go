package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/hugh/schoolhub/internal/api/respond"
	"github.com/hugh/schoolhub/internal/apperr"
	"github.com/hugh/schoolhub/internal/database/models"
	"github.com/hugh/schoolhub/internal/repository"
	"gorm.io/gorm"
)

type (
	studentRepo    = repository.GormRepository[models.Student, *models.Student]
	attendanceRepo = repository.GormRepository[models.Attendance, *models.Attendance]
)

// StudentAttendanceHandler serves students together with their attendance
// records.
type StudentAttendanceHandler struct {
	db         *gorm.DB
	students   *studentRepo
	attendance *attendanceRepo
	list       *ResourceHandler[models.Student]
}

func NewStudentAttendanceHandler(db *gorm.DB) *StudentAttendanceHandler {
	students := repository.MustNew[models.Student, *models.Student](db, repository.StudentsWithAttendance())
	return &StudentAttendanceHandler{
		db:         db,
		students:   students,
		attendance: repository.MustNew[models.Attendance, *models.Attendance](db, repository.Attendance()),
		list:       NewResourceHandler[models.Student](students),
	}
}

// List returns students with their attendance. It takes the same query
// features as GET /students.
func (h *StudentAttendanceHandler) List(w http.ResponseWriter, r *http.Request) {
	h.list.List(w, r)
}

// attendanceChange is one entry of the attendance array in an update body.
type attendanceChange struct {
	id    uuid.UUID
	patch map[string]json.RawMessage
}

// Update patches a student and the listed attendance records in one
// transaction. The body carries student fields at the top level and an
// optional "attendance" array whose entries name the record by "id".
func (h *StudentAttendanceHandler) Update(w http.ResponseWriter, r *http.Request) {
	studentID, err := urlID(r, "id")
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	var body map[string]json.RawMessage
	if err := decodeJSON(r, &body); err != nil {
		respond.Error(w, r, err)
		return
	}
	changes, err := attendanceChanges(body["attendance"])
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	delete(body, "attendance")

	ctx := r.Context()
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := h.students.WithTx(tx).Update(ctx, studentID, body); err != nil {
			return err
		}

		attendance := h.attendance.WithTx(tx)
		for _, c := range changes {
			record, err := attendance.Get(ctx, c.id)
			if err != nil {
				return err
			}
			if record.StudentID != studentID {
				return apperr.Validation(fmt.Sprintf("Attendance %s does not belong to this student", c.id))
			}
			if _, err := attendance.Update(ctx, c.id, c.patch); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	student, err := h.students.Get(ctx, studentID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.Success(w, http.StatusOK, student)
}

func attendanceChanges(raw json.RawMessage) ([]attendanceChange, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var entries []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, apperr.Validation("attendance must be an array of objects")
	}

	changes := make([]attendanceChange, 0, len(entries))
	for i, entry := range entries {
		var rawID string
		if err := json.Unmarshal(entry["id"], &rawID); err != nil {
			return nil, apperr.Validation(fmt.Sprintf("attendance[%d] needs an id", i))
		}
		id, err := uuid.Parse(rawID)
		if err != nil {
			return nil, apperr.Validation(fmt.Sprintf("attendance[%d] has an invalid id: %s", i, rawID))
		}
		if _, ok := entry["student_id"]; ok {
			return nil, apperr.Validation(fmt.Sprintf("attendance[%d] cannot move to another student", i))
		}
		delete(entry, "id")
		changes = append(changes, attendanceChange{id: id, patch: entry})
	}
	return changes, nil
}
