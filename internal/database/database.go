package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hugh/schoolhub/internal/database/models"
	"github.com/hugh/schoolhub/pkg/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

func Connect(cfg *config.DatabaseConfig, log *slog.Logger) (*gorm.DB, error) {
	gormLogger := logger.Default.LogMode(logger.Warn)
	if cfg.SSLMode == "disable" {
		gormLogger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying db: %w", err)
	}

	// Connection pool settings
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)

	log.Info("connected to database", "host", cfg.Host, "database", cfg.Name)

	return db, nil
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(models.All()...)
}

// Seed inserts the reference rows every school needs: the days of the week
// and the attendance statuses. Existing rows are left alone, so it is safe
// to run on every start.
func Seed(ctx context.Context, db *gorm.DB) error {
	days := make([]models.Day, 0, len(models.Weekdays))
	for _, d := range models.Weekdays {
		days = append(days, models.Day{Day: d})
	}
	if err := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "day"}}, DoNothing: true}).
		Create(&days).Error; err != nil {
		return fmt.Errorf("seeding days: %w", err)
	}

	statuses := make([]models.Status, 0, len(models.AttendanceStatuses))
	for _, s := range models.AttendanceStatuses {
		statuses = append(statuses, models.Status{Status: s})
	}
	if err := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "status"}}, DoNothing: true}).
		Create(&statuses).Error; err != nil {
		return fmt.Errorf("seeding statuses: %w", err)
	}

	return nil
}
