package model

import (
	"time"

	"gorm.io/gorm"
)

type HistoryStatus string

const (
	StatusSuccess HistoryStatus = "SUCCESS"
	StatusFailed  HistoryStatus = "FAILED"
)

type Direction string

const (
	DirectionPush Direction = "push"
	DirectionPull Direction = "pull"
)

type History struct {
	gorm.Model
	RunID       string        `gorm:"index"`
	Remote      string        `gorm:"index"`
	Module      string        `gorm:"not null"`
	Direction   Direction     `gorm:"not null"`
	Status      HistoryStatus `gorm:"not null"`
	Fingerprint string
	ErrMsg      string
	SyncedAt    time.Time `gorm:"not null"`
}
