package models

import (
	"time"

	"github.com/lib/pq"
)

// ProviderProfile is the public face of a user with role=provider.
type ProviderProfile struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	UserID       uint           `json:"userId" gorm:"uniqueIndex;not null"`
	DisplayName  string         `json:"displayName" gorm:"size:120"`
	Phone        string         `json:"phone" gorm:"size:40"`
	Bio          string         `json:"bio" gorm:"size:2000"`
	Skills       pq.StringArray `json:"skills" gorm:"type:text[]"`
	Categories   pq.StringArray `json:"categories" gorm:"type:text[]"`
	ServiceAreas pq.StringArray `json:"serviceAreas" gorm:"type:text[]"`
	HourlyRate   float64        `json:"hourlyRate" gorm:"type:decimal(10,2);not null;default:0"`
	MinFee       float64        `json:"minFee" gorm:"type:decimal(10,2);not null;default:0"`
	IsVerified   bool           `json:"isVerified" gorm:"not null;default:false;index"`
	VerifiedAt   *time.Time     `json:"verifiedAt"`
	RatingAvg    float64        `json:"ratingAvg" gorm:"type:decimal(3,2);not null;default:0"`
	RatingCount  int64          `json:"ratingCount" gorm:"not null;default:0"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`

	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

func (ProviderProfile) TableName() string {
	return "provider_profiles"
}

type ApplicationStatus string

const (
	ApplicationStatusPending  ApplicationStatus = "pending"
	ApplicationStatusApproved ApplicationStatus = "approved"
	ApplicationStatusRejected ApplicationStatus = "rejected"
)

func ParseApplicationStatus(s string) (ApplicationStatus, bool) {
	switch ApplicationStatus(s) {
	case ApplicationStatusPending, ApplicationStatusApproved, ApplicationStatusRejected:
		return ApplicationStatus(s), true
	}
	return "", false
}

// ProviderApplication is a user's request to become a provider, decided by an admin.
type ProviderApplication struct {
	ID              uint              `json:"id" gorm:"primaryKey"`
	UserID          uint              `json:"userId" gorm:"not null;index"`
	Phone           string            `json:"phone" gorm:"size:40"`
	City            string            `json:"city" gorm:"size:120"`
	Skills          pq.StringArray    `json:"skills" gorm:"type:text[]"`
	Experience      string            `json:"experience" gorm:"size:1000"`
	Bio             string            `json:"bio" gorm:"size:2000"`
	Status          ApplicationStatus `json:"status" gorm:"type:varchar(10);not null;default:'pending';index"`
	ReviewedBy      *uint             `json:"reviewedBy"`
	ReviewedAt      *time.Time        `json:"reviewedAt"`
	RejectionReason string            `json:"rejectionReason" gorm:"size:500"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`

	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

func (ProviderApplication) TableName() string {
	return "provider_applications"
}
