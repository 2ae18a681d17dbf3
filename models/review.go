package models

import "time"

type ReviewStatus string

const (
	ReviewStatusPending  ReviewStatus = "pending"
	ReviewStatusApproved ReviewStatus = "approved"
	ReviewStatusRejected ReviewStatus = "rejected"
)

func ParseReviewStatus(s string) (ReviewStatus, bool) {
	switch ReviewStatus(s) {
	case ReviewStatusPending, ReviewStatusApproved, ReviewStatusRejected:
		return ReviewStatus(s), true
	}
	return "", false
}

// Review is unique per (user, service).
type Review struct {
	ID        uint         `json:"id" gorm:"primaryKey"`
	UserID    uint         `json:"userId" gorm:"not null;uniqueIndex:idx_reviews_user_service,priority:1"`
	ServiceID uint         `json:"serviceId" gorm:"not null;uniqueIndex:idx_reviews_user_service,priority:2;index"`
	BookingID *uint        `json:"bookingId"`
	Rating    int          `json:"rating" gorm:"not null;check:rating >= 1 AND rating <= 5"`
	Comment   string       `json:"comment" gorm:"size:2000"`
	Status    ReviewStatus `json:"status" gorm:"type:varchar(10);not null;default:'pending';index"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`

	User    *User    `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Service *Service `json:"service,omitempty" gorm:"foreignKey:ServiceID"`
}

func (Review) TableName() string {
	return "reviews"
}

// RatingStats is an aggregate over approved reviews.
type RatingStats struct {
	Avg   float64 `json:"avg"`
	Count int64   `json:"count"`
}
