package handlers

import (
	"context"
	"errors"

	"github.com/hugh/schoolhub/internal/api/middleware"
	"github.com/hugh/schoolhub/internal/database/models"
	"gorm.io/gorm"
)

// LinkSchoolToCaller makes the calling admin a principal of a school they
// just created. It runs inside the create transaction, so a failed link
// leaves no school behind.
func LinkSchoolToCaller(ctx context.Context, tx *gorm.DB, school *models.School) error {
	user := middleware.Principal(ctx)
	if user == nil {
		return nil
	}

	var admin models.Admin
	err := tx.Where("user_id = ?", user.ID).Take(&admin).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	return tx.Create(&models.SchoolAdmin{
		AdminID:  admin.ID,
		SchoolID: school.ID,
		Role:     "Principal",
	}).Error
}
