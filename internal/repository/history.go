package repository

import (
	"errors"
	"fmt"
	"reposync/internal/model"
	"time"

	"gorm.io/gorm"
)

type HistoryRepository struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) Save(history model.History) error {
	if history.SyncedAt.IsZero() {
		history.SyncedAt = time.Now()
	}

	return r.db.Create(&history).Error
}

// LastFingerprints returns, per module, the fingerprint of the latest
// successful sync against remote.
func (r *HistoryRepository) LastFingerprints(remote string, modules []string) (map[string]string, error) {
	out := make(map[string]string, len(modules))
	for _, m := range modules {
		var h model.History
		err := r.db.
			Where("remote = ? AND module = ? AND status = ?", remote, m, model.StatusSuccess).
			Order("synced_at desc").
			Order("id desc").
			Take(&h).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read history of %s: %w", m, err)
		}

		out[m] = h.Fingerprint
	}

	return out, nil
}

type Stats struct {
	Total   int64 `json:"total"`
	Success int64 `json:"success"`
	Failed  int64 `json:"failed"`
}

func (r *HistoryRepository) GetStats() (Stats, error) {
	var stats Stats
	if err := r.db.Model(&model.History{}).Count(&stats.Total).Error; err != nil {
		return stats, err
	}

	if err := r.db.Model(&model.History{}).
		Where("status = ?", model.StatusSuccess).
		Count(&stats.Success).Error; err != nil {
		return stats, err
	}

	stats.Failed = stats.Total - stats.Success
	return stats, nil
}

func (r *HistoryRepository) GetRecent(limit int) ([]model.History, error) {
	var histories []model.History
	result := r.db.
		Order("synced_at desc").
		Order("id desc").
		Limit(limit).
		Find(&histories)

	return histories, result.Error
}

func (r *HistoryRepository) GetFailed(limit int) ([]model.History, error) {
	var histories []model.History
	result := r.db.
		Where("status = ?", model.StatusFailed).
		Order("synced_at desc").
		Order("id desc").
		Limit(limit).
		Find(&histories)

	return histories, result.Error
}
