package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pagevoice/pagevoice/internal/ocr/engine"
)

// record is the persisted row shape. Lines and boxes are serialized
// as JSON columns so the schema survives decode changes.
type record struct {
	Hash      string    `gorm:"primaryKey;size:64"`
	Version   string    `gorm:"size:32;index"`
	Timestamp time.Time
	TouchedAt time.Time `gorm:"index"`
	Lines     []byte
	Boxes     []byte
}

func (record) TableName() string { return "ocr_cache" }

// GormStore persists entries in a sqlite database. Bounded the same
// way as MemoryStore: past maxEntries, the least recently touched
// tenth is pruned.
type GormStore struct {
	db         *gorm.DB
	maxEntries int
}

// NewGormStore opens or creates the cache database at path. Zero
// maxEntries means unbounded.
func NewGormStore(path string, maxEntries int) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	if err := db.AutoMigrate(&record{}); err != nil {
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}
	return &GormStore{db: db, maxEntries: maxEntries}, nil
}

// Get implements Store and refreshes the entry's touch time.
func (s *GormStore) Get(ctx context.Context, hash string) (Entry, bool, error) {
	var r record
	err := s.db.WithContext(ctx).Where("hash = ?", hash).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("cache get: %w", err)
	}

	entry, err := decodeRecord(r)
	if err != nil {
		return Entry{}, false, err
	}

	now := time.Now()
	s.db.WithContext(ctx).Model(&record{}).
		Where("hash = ?", hash).
		Update("touched_at", now)
	entry.TouchedAt = now
	return entry, true, nil
}

// Put implements Store, upserting by hash and pruning past the bound.
func (s *GormStore) Put(ctx context.Context, entry Entry) error {
	lines, err := json.Marshal(entry.Lines)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	boxes, err := json.Marshal(entry.Boxes)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	touched := entry.TouchedAt
	if touched.IsZero() {
		touched = time.Now()
	}

	r := record{
		Hash:      entry.Hash,
		Version:   entry.Version,
		Timestamp: entry.Timestamp,
		TouchedAt: touched,
		Lines:     lines,
		Boxes:     boxes,
	}
	if err := s.db.WithContext(ctx).Save(&r).Error; err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return s.prune(ctx)
}

func (s *GormStore) prune(ctx context.Context) error {
	if s.maxEntries <= 0 {
		return nil
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&record{}).Count(&count).Error; err != nil {
		return fmt.Errorf("cache prune: %w", err)
	}
	if count <= int64(s.maxEntries) {
		return nil
	}

	drop := int(count) / 10
	if drop < 1 {
		drop = 1
	}
	var stale []record
	err := s.db.WithContext(ctx).
		Select("hash").
		Order("touched_at asc").
		Limit(drop).
		Find(&stale).Error
	if err != nil {
		return fmt.Errorf("cache prune: %w", err)
	}
	hashes := make([]string, 0, len(stale))
	for _, r := range stale {
		hashes = append(hashes, r.Hash)
	}
	if err := s.db.WithContext(ctx).Where("hash IN ?", hashes).Delete(&record{}).Error; err != nil {
		return fmt.Errorf("cache prune: %w", err)
	}
	return nil
}

func decodeRecord(r record) (Entry, error) {
	entry := Entry{
		Hash:      r.Hash,
		Version:   r.Version,
		Timestamp: r.Timestamp,
		TouchedAt: r.TouchedAt,
	}
	if len(r.Lines) > 0 {
		if err := json.Unmarshal(r.Lines, &entry.Lines); err != nil {
			return Entry{}, fmt.Errorf("cache decode lines: %w", err)
		}
	}
	if len(r.Boxes) > 0 {
		var boxes []engine.BoundingBox
		if err := json.Unmarshal(r.Boxes, &boxes); err != nil {
			return Entry{}, fmt.Errorf("cache decode boxes: %w", err)
		}
		entry.Boxes = boxes
	}
	return entry, nil
}

// Close implements Store.
func (s *GormStore) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
