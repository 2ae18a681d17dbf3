package database

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"home-services-server/config"
	"home-services-server/models"
)

// Initialize opens the postgres connection, tunes the pool and runs migrations.
func Initialize(cfg config.DatabaseConfig, production bool, log *zap.Logger) (*gorm.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("DB_URL is required. Set DB_URL to a valid Postgres URL")
	}

	level := logger.Warn
	if !production {
		level = logger.Info
	}
	gormLogger := logger.New(
		zap.NewStdLog(log.Named("gorm")),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(cfg.URL), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying SQL database: %w", err)
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	log.Info("connected to database")

	if err := runMigrations(db, log); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database migrations completed")

	return db, nil
}

// runMigrations creates or updates database tables
func runMigrations(db *gorm.DB, log *zap.Logger) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Service{},
		&models.Booking{},
		&models.Invoice{},
		&models.Message{},
		&models.Review{},
		&models.ProviderProfile{},
		&models.ProviderApplication{},
	); err != nil {
		return err
	}

	if err := backfillBookingVersions(db, log); err != nil {
		return err
	}
	return normalizeUserEmails(db, log)
}

// backfillBookingVersions gives rows created before version tracking a starting version.
func backfillBookingVersions(db *gorm.DB, log *zap.Logger) error {
	res := db.Exec("UPDATE bookings SET version = 1 WHERE version IS NULL OR version = 0")
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		log.Info("backfilled booking versions", zap.Int64("rows", res.RowsAffected))
	}
	return nil
}

// normalizeUserEmails lower-cases stored emails so login lookups match. Rows that
// would collide with an existing lower-case address are left alone and reported.
func normalizeUserEmails(db *gorm.DB, log *zap.Logger) error {
	res := db.Exec(`UPDATE users u SET email = LOWER(TRIM(u.email))
		WHERE u.email <> LOWER(TRIM(u.email))
		AND NOT EXISTS (SELECT 1 FROM users o WHERE o.id <> u.id AND o.email = LOWER(TRIM(u.email)))`)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		log.Info("normalized user emails", zap.Int64("rows", res.RowsAffected))
	}

	var clashes int64
	if err := db.Model(&models.User{}).Where("email <> LOWER(TRIM(email))").Count(&clashes).Error; err != nil {
		return err
	}
	if clashes > 0 {
		log.Warn("users with mixed-case emails clash with existing accounts", zap.Int64("count", clashes))
	}
	return nil
}
