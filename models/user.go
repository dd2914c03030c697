package models

import (
	"time"
)

// User is the local account record. Profile management lives in the web
// layer; the orchestration core only needs identity and the admin flag.
type User struct {
	ID      string `json:"id" gorm:"primaryKey"`
	Name    string `json:"name" gorm:"index;not null"`
	IsAdmin bool   `json:"is_admin" gorm:"default:false"`

	Timestamps
}

// Timestamps adds GORM auto-times. Entities in this service are append-only,
// so there is no soft-delete column.
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime;index"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
