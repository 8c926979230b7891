package store

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/seqops/tatoor/pkg/config"
)

// Store provides persistence for API users and the report index.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	// Users.
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	SeedUsers(ctx context.Context, users []config.BasicAuthUser) error

	// Report index.
	ListReports(ctx context.Context) ([]Report, error)
	GetReport(ctx context.Context, reportID string) (*Report, error)
	ListDirNames(ctx context.Context) ([]string, error)
	UpsertReport(ctx context.Context, report *Report, summaries []AssaySummary) error
	ListSummaries(ctx context.Context, reportID string) ([]AssaySummary, error)
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.APIDatabaseConfig
	db  *gorm.DB
}

// NewStore creates a new Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.APIDatabaseConfig,
) Store {
	return &store{
		log: log.WithField("component", "store"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var (
		dialector gorm.Dialector
		err       error
	)

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	s.db, err = gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	if err := s.db.WithContext(ctx).AutoMigrate(
		&User{},
		&Report{},
		&AssaySummary{},
	); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).Info("Database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// --- Users ---

func (s *store) GetUserByUsername(
	ctx context.Context, username string,
) (*User, error) {
	var user User
	if err := s.db.WithContext(ctx).
		Where("username = ?", username).
		First(&user).Error; err != nil {
		return nil, fmt.Errorf("getting user by username: %w", err)
	}

	return &user, nil
}

// SeedUsers upserts config-sourced users. Only users with source="config"
// are updated.
func (s *store) SeedUsers(
	ctx context.Context, users []config.BasicAuthUser,
) error {
	for _, u := range users {
		hash, err := bcrypt.GenerateFromPassword(
			[]byte(u.Password), bcrypt.DefaultCost,
		)
		if err != nil {
			return fmt.Errorf("hashing password for %q: %w", u.Username, err)
		}

		var existing User

		result := s.db.WithContext(ctx).
			Where("username = ? AND source = ?", u.Username, SourceConfig).
			First(&existing)

		if result.Error == nil {
			existing.PasswordHash = string(hash)

			if err := s.db.WithContext(ctx).Save(&existing).Error; err != nil {
				return fmt.Errorf("updating config user %q: %w", u.Username, err)
			}
		} else {
			newUser := User{
				Username:     u.Username,
				PasswordHash: string(hash),
				Source:       SourceConfig,
			}

			if err := s.db.WithContext(ctx).
				Where("username = ?", u.Username).
				FirstOrCreate(&newUser).Error; err != nil {
				return fmt.Errorf("seeding config user %q: %w", u.Username, err)
			}
		}
	}

	s.log.WithField("count", len(users)).
		Info("Seeded users from config")

	return nil
}

// --- Report index ---

func (s *store) ListReports(ctx context.Context) ([]Report, error) {
	var reports []Report
	if err := s.db.WithContext(ctx).
		Order("generated_at DESC").
		Find(&reports).Error; err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}

	return reports, nil
}

func (s *store) GetReport(
	ctx context.Context, reportID string,
) (*Report, error) {
	var report Report
	if err := s.db.WithContext(ctx).
		Where("report_id = ?", reportID).
		First(&report).Error; err != nil {
		return nil, fmt.Errorf("getting report: %w", err)
	}

	return &report, nil
}

func (s *store) ListDirNames(ctx context.Context) ([]string, error) {
	var names []string
	if err := s.db.WithContext(ctx).
		Model(&Report{}).
		Pluck("dir_name", &names).Error; err != nil {
		return nil, fmt.Errorf("listing indexed dir names: %w", err)
	}

	return names, nil
}

// UpsertReport writes a report and its assay summaries in one
// transaction. Existing summaries for the report are replaced.
func (s *store) UpsertReport(
	ctx context.Context, report *Report, summaries []AssaySummary,
) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Report

		result := tx.Where("report_id = ?", report.ReportID).First(&existing)
		if result.Error == nil {
			report.ID = existing.ID
			report.IndexedAt = existing.IndexedAt

			now := time.Now().UTC()
			report.ReindexedAt = &now

			if err := tx.Save(report).Error; err != nil {
				return fmt.Errorf("updating report: %w", err)
			}
		} else {
			if err := tx.Create(report).Error; err != nil {
				return fmt.Errorf("creating report: %w", err)
			}
		}

		if err := tx.Where("report_id = ?", report.ReportID).
			Delete(&AssaySummary{}).Error; err != nil {
			return fmt.Errorf("deleting old summaries: %w", err)
		}

		for i := range summaries {
			summaries[i].ID = 0
			summaries[i].ReportID = report.ReportID
		}

		if len(summaries) > 0 {
			if err := tx.Create(&summaries).Error; err != nil {
				return fmt.Errorf("creating summaries: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("upserting report %s: %w", report.ReportID, err)
	}

	return nil
}

func (s *store) ListSummaries(
	ctx context.Context, reportID string,
) ([]AssaySummary, error) {
	var summaries []AssaySummary
	if err := s.db.WithContext(ctx).
		Where("report_id = ?", reportID).
		Order("id ASC").
		Find(&summaries).Error; err != nil {
		return nil, fmt.Errorf("listing summaries: %w", err)
	}

	return summaries, nil
}
