package handlers

import (
	"fmt"
	"net/http"

	"github.com/hugh/schoolhub/internal/api/respond"
	"github.com/hugh/schoolhub/internal/database/models"
	"github.com/hugh/schoolhub/internal/query"
	"github.com/hugh/schoolhub/internal/repository"
	"github.com/xuri/excelize/v2"
)

const (
	exportSheet    = "Attendance"
	exportFilename = "attendance.xlsx"
	xlsxType       = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var exportHeaders = []interface{}{"Date", "Student", "Class", "Subject", "Status"}

type AttendanceHandler struct {
	repo repository.Repository[models.Attendance]
}

// NewAttendanceHandler serves attendance reports. repo must preload the
// student info, the session class and subject, and the status.
func NewAttendanceHandler(repo repository.Repository[models.Attendance]) *AttendanceHandler {
	return &AttendanceHandler{repo: repo}
}

// Export writes the attendance list, filtered and sorted like GET
// /attendance, as a spreadsheet.
func (h *AttendanceHandler) Export(w http.ResponseWriter, r *http.Request) {
	features, err := query.Parse(r.URL.Query())
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	records, err := h.repo.List(r.Context(), nil, features)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	f, err := buildAttendanceSheet(records)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", xlsxType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFilename))
	w.WriteHeader(http.StatusOK)
	_ = f.Write(w)
}

func buildAttendanceSheet(records []models.Attendance) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		f.Close()
		return nil, fmt.Errorf("removing default sheet: %w", err)
	}

	if err := f.SetSheetRow(exportSheet, "A1", &exportHeaders); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing headers: %w", err)
	}

	for i := range records {
		row := attendanceRow(&records[i])
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			f.Close()
			return nil, fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}

	return f, nil
}

func attendanceRow(a *models.Attendance) []interface{} {
	var student, class, subject, status string
	if a.Student != nil && a.Student.Info != nil {
		student = a.Student.Info.FullName()
	}
	if a.Session != nil {
		if a.Session.Class != nil {
			class = a.Session.Class.ClassName
		}
		if a.Session.Subject != nil {
			subject = a.Session.Subject.Name
		}
	}
	if a.Status != nil {
		status = string(a.Status.Status)
	}
	return []interface{}{a.Date.String(), student, class, subject, status}
}
