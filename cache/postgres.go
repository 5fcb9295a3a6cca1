package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type cacheRecord struct {
	Key       string `gorm:"primaryKey;size:128"`
	Value     []byte
	UpdatedAt time.Time `gorm:"index"`
}

func (cacheRecord) TableName() string {
	return "feed_cache"
}

// PostgresStore keeps cache entries in a postgres table
type PostgresStore struct {
	db *gorm.DB
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&cacheRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate cache table: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var rec cacheRecord
	err := p.db.WithContext(ctx).Where("key = ?", key).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}
	return rec.Value, true, nil
}

func (p *PostgresStore) Set(ctx context.Context, key string, value []byte) error {
	rec := cacheRecord{Key: key, Value: value, UpdatedAt: time.Now()}
	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

func (p *PostgresStore) Remove(ctx context.Context, key string) error {
	if err := p.db.WithContext(ctx).Where("key = ?", key).Delete(&cacheRecord{}).Error; err != nil {
		return fmt.Errorf("failed to remove cache entry: %w", err)
	}
	return nil
}

func (p *PostgresStore) Clear(ctx context.Context) error {
	if err := p.db.WithContext(ctx).Where("1 = 1").Delete(&cacheRecord{}).Error; err != nil {
		return fmt.Errorf("failed to clear feed cache: %w", err)
	}
	return nil
}

func (p *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	var stats Stats

	var count int64
	if err := p.db.WithContext(ctx).Model(&cacheRecord{}).Count(&count).Error; err != nil {
		return stats, err
	}
	stats.Entries = int(count)

	var oldest sql.NullTime
	row := p.db.WithContext(ctx).Model(&cacheRecord{}).Select("MIN(updated_at)").Row()
	if err := row.Scan(&oldest); err != nil {
		return stats, err
	}
	if oldest.Valid {
		stats.OldestEntry = oldest.Time
	}
	return stats, nil
}

func (p *PostgresStore) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
