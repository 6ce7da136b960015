// Package gormstorage implements storage.AmbientStore on top of any GORM
// dialect. Each key is one row of the ambient_slots table; a write is an
// upsert that fully replaces the stored document.
package gormstorage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pokemap/maptracker/internal/storage"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Slot is one ambient key and its serialized value.
type Slot struct {
	Key       string         `gorm:"column:slot_key;primaryKey;size:128"`
	Value     datatypes.JSON `gorm:"not null"`
	UpdatedAt time.Time
}

// TableName pins the table name independent of GORM's naming strategy.
func (Slot) TableName() string {
	return "ambient_slots"
}

// Backend reads and writes slots through a *gorm.DB.
type Backend struct {
	db *gorm.DB
}

// New creates a backend over db. Init migrates the slot table.
func New(db *gorm.DB) *Backend {
	return &Backend{db: db}
}

// Init migrates the slot table.
func (b *Backend) Init() error {
	if b.db == nil {
		return fmt.Errorf("%w: no database", storage.ErrUnavailable)
	}
	if err := b.db.AutoMigrate(&Slot{}); err != nil {
		return fmt.Errorf("failed to migrate ambient_slots: %w", err)
	}
	return nil
}

// Close is a no-op; the owner of the *gorm.DB closes it.
func (b *Backend) Close() error {
	return nil
}

// Describe names the backend for logs.
func (b *Backend) Describe() string {
	if b.db == nil {
		return "gorm"
	}
	return "gorm:" + b.db.Dialector.Name()
}

// Read returns the stored value for key.
func (b *Backend) Read(ctx context.Context, key string) ([]byte, error) {
	if b.db == nil {
		return nil, fmt.Errorf("%w: no database", storage.ErrUnavailable)
	}
	var slot Slot
	err := b.db.WithContext(ctx).Where("slot_key = ?", key).Take(&slot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read slot %s: %w", key, err)
	}
	return []byte(slot.Value), nil
}

// Write upserts key with data.
func (b *Backend) Write(ctx context.Context, key string, data []byte) error {
	if b.db == nil {
		return fmt.Errorf("%w: no database", storage.ErrUnavailable)
	}
	slot := Slot{
		Key:       key,
		Value:     datatypes.JSON(data),
		UpdatedAt: time.Now().UTC(),
	}
	err := b.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slot_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&slot).Error
	if err != nil {
		return fmt.Errorf("%w: write slot %s: %v", storage.ErrUnavailable, key, err)
	}
	return nil
}
