package repository

import (
	"errors"
	"fmt"
	"reposync/internal/model"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EntryRepository is the local key/value store. Writes are serialized so
// readers never observe a half-applied pull.
type EntryRepository struct {
	mu       sync.RWMutex
	db       *gorm.DB
	onChange func(key string)
}

func NewEntryRepository(db *gorm.DB) *EntryRepository {
	return &EntryRepository{db: db}
}

// OnChange registers fn to be called after every write or delete.
func (r *EntryRepository) OnChange(fn func(key string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

func (r *EntryRepository) notify(key string) {
	r.mu.RLock()
	fn := r.onChange
	r.mu.RUnlock()

	if fn != nil {
		fn(key)
	}
}

func (r *EntryRepository) Get(key string) (string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.get(key)
}

func (r *EntryRepository) get(key string) (string, bool, error) {
	var entry model.Entry
	err := r.db.Where("name = ?", key).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}

	return entry.Value, true, nil
}

func (r *EntryRepository) Set(key, value string) error {
	if err := r.set(key, value); err != nil {
		return err
	}

	r.notify(key)
	return nil
}

func (r *EntryRepository) set(key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := model.Entry{Name: key, Value: value, UpdatedAt: time.Now()}
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}

	return nil
}

func (r *EntryRepository) Delete(key string) error {
	r.mu.Lock()
	err := r.db.Where("name = ?", key).Delete(&model.Entry{}).Error
	r.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}

	r.notify(key)
	return nil
}

// Snapshot reads several keys under one lock. Missing keys are omitted.
func (r *EntryRepository) Snapshot(keys []string) (map[string]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(keys))
	for _, k := range keys {
		v, ok, err := r.get(k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[k] = v
		}
	}

	return out, nil
}
