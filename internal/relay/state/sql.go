package state

import (
	"context"
	"fmt"

	"channel_relay/internal/relay/models"

	"gorm.io/gorm"
)

// SQLStore 基于 gorm 的去重状态存储（forward_records 表）
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore 创建 SQL 状态存储并迁移表结构
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&models.ForwardRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate forward_records: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Load implements Store.
func (s *SQLStore) Load(ctx context.Context) (Records, error) {
	var rows []models.ForwardRecord
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load forward state: %w", err)
	}
	return fromForwardRecords(rows), nil
}

// Save implements Store. The table is replaced inside one transaction.
func (s *SQLStore) Save(ctx context.Context, records Records) error {
	rows := toForwardRecords(records)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.ForwardRecord{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, 500).Error
	})
	if err != nil {
		return fmt.Errorf("failed to save forward state: %w", err)
	}
	return nil
}
