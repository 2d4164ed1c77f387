package model

import "time"

// Entry is one key of the local store. Module data is kept in its native JSON.
type Entry struct {
	Name      string `gorm:"primaryKey"`
	Value     string `gorm:"not null"`
	UpdatedAt time.Time
}
