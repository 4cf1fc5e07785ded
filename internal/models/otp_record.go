package models

import "time"

// OTPRecord stores one issued code. Only the sha256 of the code is persisted.
type OTPRecord struct {
	BaseModel

	Phone     string     `gorm:"size:20;not null;index:idx_otp_records_phone_expiry,priority:1" json:"phone"`
	CodeHash  string     `gorm:"size:64;not null" json:"-"`
	IssuedAt  time.Time  `gorm:"not null" json:"issued_at"`
	ExpiresAt time.Time  `gorm:"not null;index;index:idx_otp_records_phone_expiry,priority:2" json:"expires_at"`
	IsUsed    bool       `gorm:"not null;default:false" json:"is_used"`
	UsedAt    *time.Time `json:"used_at"`
}

// Expired reports whether the code can no longer be verified at now.
func (r *OTPRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
