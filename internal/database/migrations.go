package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/superapp/partnerauth/internal/models"
)

// UserPhoneIndex is the unique index guaranteeing one user per phone.
const UserPhoneIndex = "idx_users_phone"

// DuplicatePhone describes a phone number held by more than one user row.
type DuplicatePhone struct {
	Phone   string
	Count   int64
	UserIDs []string `gorm:"-"`
}

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.ServicePartner{},
		&models.OTPRecord{},
		&models.CacheEntry{},
	)
}

// EnsureUserPhoneIndex creates the unique phone index when the data allows it.
// Existing duplicates are returned untouched; reconciling them is an operator decision.
func EnsureUserPhoneIndex(ctx context.Context, db *gorm.DB) ([]DuplicatePhone, error) {
	db = db.WithContext(ctx)

	if db.Migrator().HasIndex(&models.User{}, UserPhoneIndex) {
		return nil, nil
	}

	dups, err := FindDuplicatePhones(ctx, db)
	if err != nil {
		return nil, err
	}
	if len(dups) > 0 {
		return dups, nil
	}

	if err := db.Exec(fmt.Sprintf("CREATE UNIQUE INDEX %s ON users (phone)", UserPhoneIndex)).Error; err != nil {
		return nil, fmt.Errorf("create %s: %w", UserPhoneIndex, err)
	}
	return nil, nil
}

// FindDuplicatePhones lists phone numbers shared by several users, with their ids.
func FindDuplicatePhones(ctx context.Context, db *gorm.DB) ([]DuplicatePhone, error) {
	db = db.WithContext(ctx)

	var dups []DuplicatePhone
	err := db.Model(&models.User{}).
		Select("phone, COUNT(*) AS count").
		Group("phone").
		Having("COUNT(*) > ?", 1).
		Order("phone").
		Scan(&dups).Error
	if err != nil {
		return nil, fmt.Errorf("find duplicate phones: %w", err)
	}

	for i := range dups {
		if err := db.Model(&models.User{}).
			Where("phone = ?", dups[i].Phone).
			Order("created_at").
			Pluck("id", &dups[i].UserIDs).Error; err != nil {
			return nil, fmt.Errorf("list users for duplicate phone: %w", err)
		}
	}
	return dups, nil
}
