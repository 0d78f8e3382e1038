package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

type userRow struct {
	DeviceID   string `gorm:"primaryKey;size:128"`
	CreatedAt  time.Time
	IsPro      bool   `gorm:"not null;default:false"`
	LicenseKey string `gorm:"size:64"`
}

func (userRow) TableName() string { return "users" }

type usageRow struct {
	DeviceID string          `gorm:"primaryKey;size:128"`
	Day      string          `gorm:"primaryKey;size:10"`
	Minutes  decimal.Decimal `gorm:"type:numeric(14,4);not null"`
}

func (usageRow) TableName() string { return "usage_records" }

type licenseRow struct {
	Key      string `gorm:"column:license_key;primaryKey;size:64"`
	DeviceID string `gorm:"uniqueIndex;size:128;not null"`
	BoundAt  time.Time
}

func (licenseRow) TableName() string { return "licenses" }

type SQLOptions struct {
	Dialect string
	DSN     string
}

// SQLStore keeps users, usage and licenses in relational tables. Usage is
// incremented with a single upsert per call and license keys are unique,
// so concurrent writers on different identities never block each other.
type SQLStore struct {
	db  *gorm.DB
	now func() time.Time
}

func OpenSQL(ctx context.Context, opts SQLOptions) (*SQLStore, error) {
	var dialector gorm.Dialector
	switch opts.Dialect {
	case DialectSQLite, "":
		dialector = sqlite.Open(opts.DSN)
	case DialectPostgres:
		dialector = postgres.Open(opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported sql dialect %q", opts.Dialect)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get underlying sql.DB: %w", err)
	}
	if opts.Dialect != DialectPostgres {
		// sqlite allows one writer at a time.
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := db.WithContext(ctx).AutoMigrate(&userRow{}, &usageRow{}, &licenseRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &SQLStore{db: db, now: time.Now}, nil
}

func (s *SQLStore) Touch(ctx context.Context, identity string) error {
	return s.touch(s.db.WithContext(ctx), identity)
}

func (s *SQLStore) touch(tx *gorm.DB, identity string) error {
	err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&userRow{DeviceID: identity, CreatedAt: s.now().UTC()}).Error
	if err != nil {
		return fmt.Errorf("create user %s: %w", identity, err)
	}
	return nil
}

func (s *SQLStore) AddUsage(ctx context.Context, identity, day string, minutes decimal.Decimal) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.touch(tx, identity); err != nil {
			return err
		}

		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "device_id"}, {Name: "day"}},
			DoUpdates: clause.Assignments(map[string]any{"minutes": gorm.Expr("usage_records.minutes + ?", minutes)}),
		}).Create(&usageRow{DeviceID: identity, Day: day, Minutes: minutes}).Error
		if err != nil {
			return fmt.Errorf("add usage: %w", err)
		}

		var row usageRow
		if err := tx.Where("device_id = ? AND day = ?", identity, day).Take(&row).Error; err != nil {
			return fmt.Errorf("read usage: %w", err)
		}
		total = row.Minutes
		return nil
	})
	return total, err
}

func (s *SQLStore) Usage(ctx context.Context, identity, day string) (decimal.Decimal, error) {
	var row usageRow
	err := s.db.WithContext(ctx).Where("device_id = ? AND day = ?", identity, day).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("read usage: %w", err)
	}
	return row.Minutes, nil
}

func (s *SQLStore) BindLicense(ctx context.Context, identity, key string) (bool, error) {
	created := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing licenseRow
		err := tx.Where("license_key = ?", key).Take(&existing).Error
		switch {
		case err == nil:
			if existing.DeviceID != identity {
				return ErrAlreadyBound
			}
			return nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("read license: %w", err)
		}

		if err := s.touch(tx, identity); err != nil {
			return err
		}
		if err := tx.Where("device_id = ?", identity).Delete(&licenseRow{}).Error; err != nil {
			return fmt.Errorf("release previous license: %w", err)
		}

		result := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&licenseRow{Key: key, DeviceID: identity, BoundAt: s.now().UTC()})
		if result.Error != nil {
			return fmt.Errorf("bind license: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrAlreadyBound
		}

		err = tx.Model(&userRow{}).Where("device_id = ?", identity).
			Updates(map[string]any{"is_pro": true, "license_key": key}).Error
		if err != nil {
			return fmt.Errorf("mark user pro: %w", err)
		}
		created = true
		return nil
	})
	return created, err
}

func (s *SQLStore) LicenseFor(ctx context.Context, identity string) (string, error) {
	var row licenseRow
	err := s.db.WithContext(ctx).Where("device_id = ?", identity).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read license: %w", err)
	}
	return row.Key, nil
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}
