package repository

import (
	"github.com/hugh/schoolhub/internal/database/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ActiveOnly hides deactivated records from default lookups.
func ActiveOnly(db *gorm.DB) *gorm.DB {
	return db.Where(clause.Eq{Column: column("active"), Value: true})
}

var (
	attendanceCascade = Cascade{Model: &models.Attendance{}, Column: "student_id"}
	sessionAttendance = Cascade{Model: &models.Attendance{}, Column: "session_id"}
)

func Users() Resource[models.User] {
	return Resource[models.User]{
		Name:     "user",
		Preloads: []string{"Admin.Info", "Teacher.Info", "Student.Info"},
		ReadOnly: []string{"email_verified", "password_changed_at"},
		Scope:    ActiveOnly,
		Cascades: []Cascade{
			{Model: &models.Student{}, Column: "user_id", Nullify: true},
			{
				Model:  &models.Teacher{},
				Column: "user_id",
				Then:   []Cascade{{Model: &models.Session{}, Column: "teacher_id", Then: []Cascade{sessionAttendance}}},
			},
			{
				Model:  &models.Admin{},
				Column: "user_id",
				Then:   []Cascade{{Model: &models.SchoolAdmin{}, Column: "admin_id"}},
			},
		},
	}
}

func Admins() Resource[models.Admin] {
	return Resource[models.Admin]{
		Name:     "admin",
		Preloads: []string{"User", "Info", "SchoolAdmins.School"},
		ReadOnly: []string{"user_id"},
	}
}

func Teachers() Resource[models.Teacher] {
	return Resource[models.Teacher]{
		Name:     "teacher",
		Preloads: []string{"User", "Info", "SchoolAdmin.School"},
		ReadOnly: []string{"user_id"},
	}
}

func Students() Resource[models.Student] {
	return Resource[models.Student]{
		Name:       "student",
		Preloads:   []string{"Info", "Class"},
		CreateWith: []string{"Info"},
		Cascades:   []Cascade{attendanceCascade},
	}
}

// StudentsWithAttendance loads each student's attendance records with the
// session class and subject, and the status.
func StudentsWithAttendance() Resource[models.Student] {
	res := Students()
	res.Name = "student attendance"
	res.Preloads = append(res.Preloads, "Attendance.Session.Class", "Attendance.Session.Subject", "Attendance.Status")
	return res
}

func Schools() Resource[models.School] {
	return Resource[models.School]{
		Name:     "school",
		Preloads: []string{"SchoolAdmins.Admin.Info"},
		ReadOnly: []string{"slug"},
		Cascades: []Cascade{{Model: &models.SchoolAdmin{}, Column: "school_id"}},
	}
}

func SchoolAdmins() Resource[models.SchoolAdmin] {
	return Resource[models.SchoolAdmin]{
		Name:     "school admin",
		Preloads: []string{"Admin.Info", "School", "Teachers.Info", "Students.Info"},
	}
}

func Classes() Resource[models.Class] {
	return Resource[models.Class]{
		Name:     "class",
		Preloads: []string{"Students.Info"},
		Cascades: []Cascade{
			{Model: &models.Student{}, Column: "class_id", Nullify: true},
			{
				Model:  &models.Session{},
				Column: "class_id",
				Then:   []Cascade{sessionAttendance},
			},
		},
	}
}

func Sessions() Resource[models.Session] {
	return Resource[models.Session]{
		Name:     "session",
		Preloads: []string{"Teacher.Info", "Class", "Subject", "Period", "Day"},
		Cascades: []Cascade{sessionAttendance},
	}
}

func Subjects() Resource[models.Subject] {
	return Resource[models.Subject]{Name: "subject"}
}

func Periods() Resource[models.Period] {
	return Resource[models.Period]{Name: "period"}
}

func Days() Resource[models.Day] {
	return Resource[models.Day]{Name: "day"}
}

func Statuses() Resource[models.Status] {
	return Resource[models.Status]{Name: "status"}
}

func Infos() Resource[models.Info] {
	return Resource[models.Info]{Name: "info"}
}

func Attendance() Resource[models.Attendance] {
	return Resource[models.Attendance]{
		Name:     "attendance",
		Preloads: []string{"Student.Info", "Session.Class", "Session.Subject", "Status"},
	}
}
