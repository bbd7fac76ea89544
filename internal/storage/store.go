// Package storage implements the persistence collaborator, backed by GORM
// over SQLite (pure Go driver). Only the product catalog and the runtime
// settings are persisted; the alert log and session registry are ephemeral
// runtime state by design and never touch this package.
//
// Error semantics: load failures at startup fall back to empty state (the
// caller logs and continues); save failures are best-effort and surfaced to
// the caller for logging, never fatal.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dilduck/fallcentalert/internal/domain"
)

// settingsRowID is the primary key of the single settings row.
const settingsRowID = 1

// settingsRecord is the single-row table holding the serialized runtime
// settings as a JSON column.
type settingsRecord struct {
	ID        int            `gorm:"primaryKey"`
	Data      datatypes.JSON `gorm:"not null"`
	UpdatedAt time.Time
}

// TableName returns the database table name for settingsRecord.
func (settingsRecord) TableName() string { return "settings" }

// Store is the SQLite-backed persistence layer.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the SQLite database at path, applies PRAGMAs, and
// migrates the schema.
func Open(path string) (*Store, error) {
	// Fail early if the parent directory does not exist (instead of a cryptic
	// sqlite "out of memory (14)" on some platforms).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// PRAGMAs
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA busy_timeout=5000;")

	// Pool
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := db.AutoMigrate(&domain.Product{}, &settingsRecord{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// LoadProducts returns the persisted catalog in ingestion order, oldest
// first. An empty database yields an empty slice.
func (s *Store) LoadProducts(ctx context.Context) ([]domain.Product, error) {
	var out []domain.Product
	err := s.db.WithContext(ctx).
		Order("timestamp asc").
		Find(&out).Error
	return out, err
}

// SaveProducts replaces the persisted catalog with products, atomically.
func (s *Store) SaveProducts(ctx context.Context, products []domain.Product) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&domain.Product{}).Error; err != nil {
			return err
		}
		if len(products) == 0 {
			return nil
		}
		return tx.CreateInBatches(products, 200).Error
	})
}

// LoadSettings returns the persisted settings, or (nil, nil) when nothing has
// been saved yet. A corrupt row is reported as an error so the caller can
// fall back to defaults.
func (s *Store) LoadSettings(ctx context.Context) (*domain.Settings, error) {
	var rec settingsRecord
	err := s.db.WithContext(ctx).First(&rec, settingsRowID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var settings domain.Settings
	if err := json.Unmarshal(rec.Data, &settings); err != nil {
		return nil, fmt.Errorf("decode settings row: %w", err)
	}
	return &settings, nil
}

// SaveSettings upserts the single settings row.
func (s *Store) SaveSettings(ctx context.Context, settings domain.Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	rec := settingsRecord{ID: settingsRowID, Data: datatypes.JSON(data), UpdatedAt: time.Now().UTC()}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
		}).
		Create(&rec).Error
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
