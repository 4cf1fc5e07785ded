package models

import (
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrInvalidPartnerStatus rejects partner rows carrying an unknown lifecycle state.
var ErrInvalidPartnerStatus = errors.New("models: invalid partner status")

// PartnerStatus is the lifecycle state of a partner profile.
type PartnerStatus string

const (
	PartnerStatusPending   PartnerStatus = "pending"
	PartnerStatusActive    PartnerStatus = "active"
	PartnerStatusSuspended PartnerStatus = "suspended"
)

// Valid reports whether s is a known status.
func (s PartnerStatus) Valid() bool {
	switch s {
	case PartnerStatusPending, PartnerStatusActive, PartnerStatusSuspended:
		return true
	}
	return false
}

// ServicePartner is a business profile owned by at most one user. UserID is
// nil only for legacy orphans awaiting adoption.
type ServicePartner struct {
	BaseModel

	UserID       *string `gorm:"size:36;uniqueIndex:idx_service_partners_user_id" json:"user_id"`
	User         *User   `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	BusinessName string  `gorm:"size:255" json:"business_name"`
	PhoneNumber  string  `gorm:"size:20;not null;index" json:"phone_number"`

	Categories            datatypes.JSONSlice[string] `json:"categories"`
	VerificationDocuments datatypes.JSONSlice[string] `json:"verification_documents"`

	IsVerified  bool          `gorm:"default:false" json:"is_verified"`
	IsAvailable bool          `gorm:"default:false" json:"is_available"`
	Status      PartnerStatus `gorm:"size:16;not null;default:pending" json:"status"`
}

// LinkedTo reports whether the partner belongs to userID.
func (p *ServicePartner) LinkedTo(userID string) bool {
	return p.UserID != nil && *p.UserID == userID
}

// BeforeCreate defaults an empty status to pending and refuses unknown values.
func (p *ServicePartner) BeforeCreate(tx *gorm.DB) error {
	if p.Status == "" {
		p.Status = PartnerStatusPending
	}
	if !p.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPartnerStatus, p.Status)
	}
	return p.BaseModel.BeforeCreate(tx)
}
