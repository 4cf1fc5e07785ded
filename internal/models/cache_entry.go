package models

import (
	"time"
)

// CacheEntry is a TTL'd counter row backing the SQL rate limit store.
type CacheEntry struct {
	Key       string `gorm:"primaryKey;size:256"`
	Value     []byte
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
