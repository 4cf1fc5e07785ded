package models

// User is the identity anchor for a phone number. The unique index on phone
// is created by the migration guard so legacy duplicates can be reported
// instead of failing the migration.
type User struct {
	BaseModel

	Phone string `gorm:"size:20;not null" json:"phone"`
	Name  string `gorm:"size:255" json:"name"`
	Email string `gorm:"size:255" json:"email"`
}
