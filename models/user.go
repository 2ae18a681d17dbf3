package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

type UserRole string

const (
	RoleUser     UserRole = "user"
	RoleProvider UserRole = "provider"
	RoleAdmin    UserRole = "admin"
)

type ProviderStatus string

const (
	ProviderStatusNone     ProviderStatus = "none"
	ProviderStatusPending  ProviderStatus = "pending"
	ProviderStatusApproved ProviderStatus = "approved"
	ProviderStatusRejected ProviderStatus = "rejected"
)

type User struct {
	ID             uint           `json:"id" gorm:"primaryKey"`
	Name           string         `json:"name" gorm:"size:120;not null"`
	Email          string         `json:"email" gorm:"size:255;uniqueIndex;not null"`
	PasswordHash   string         `json:"-" gorm:"size:255;not null"` // Hidden from JSON
	Role           UserRole       `json:"role" gorm:"type:varchar(20);not null;default:'user';check:role IN ('user','provider','admin')"`
	ProviderStatus ProviderStatus `json:"providerStatus" gorm:"type:varchar(20);not null;default:'none'"`
	IsActive       bool           `json:"isActive" gorm:"default:true"`
	CreatedAt      time.Time      `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt      time.Time      `json:"updatedAt" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "users"
}

// BeforeCreate is a GORM hook that runs before creating a user
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.Role == "" {
		u.Role = RoleUser
	}
	if u.ProviderStatus == "" {
		u.ProviderStatus = ProviderStatusNone
	}
	u.Email = NormalizeEmail(u.Email)
	return nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsValidRole checks if the role is one of the known roles
func IsValidRole(role UserRole) bool {
	switch role {
	case RoleUser, RoleProvider, RoleAdmin:
		return true
	default:
		return false
	}
}

func (u *User) IsProvider() bool {
	return u.Role == RoleProvider
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
