package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Record is one row of the kv_records table.
type Record struct {
	Key       string `gorm:"column:record_key;primaryKey;size:255"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (Record) TableName() string { return "kv_records" }

type gormStore struct {
	db *gorm.DB
}

// NewGormStore expects the kv_records table to exist; see Migrate.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Record{})
}

func (s *gormStore) Get(ctx context.Context, key string) ([]byte, error) {
	var rec Record
	err := s.db.WithContext(ctx).Where("record_key = ?", key).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("unable to load %s: %w", key, err)
	}
	return []byte(rec.Value), nil
}

func (s *gormStore) Put(ctx context.Context, key string, value []byte) error {
	return upsert(s.db.WithContext(ctx), key, value)
}

func (s *gormStore) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where("record_key = ?", key).Delete(&Record{}).Error
}

// Update locks the row for the length of the transaction. A key that does not
// exist yet is not locked; concurrent first writers resolve through the upsert.
func (s *gormStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec Record
		var current []byte
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("record_key = ?", key).First(&rec).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			return fmt.Errorf("unable to lock %s: %w", key, err)
		default:
			current = []byte(rec.Value)
		}

		next, err := fn(current)
		if err != nil {
			return err
		}
		if next == nil {
			return tx.Where("record_key = ?", key).Delete(&Record{}).Error
		}
		return upsert(tx, key, next)
	})
}

func upsert(db *gorm.DB, key string, value []byte) error {
	rec := Record{Key: key, Value: string(value), UpdatedAt: time.Now()}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "record_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("unable to save %s: %w", key, err)
	}
	return nil
}
