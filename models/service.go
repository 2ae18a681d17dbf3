package models

import (
	"time"
)

// Service is a catalog entry customers can book.
type Service struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name" gorm:"type:varchar(200);not null"`
	Description string    `json:"description" gorm:"type:text"`
	Price       float64   `json:"price" gorm:"type:decimal(10,2);not null;default:0;check:price >= 0"`
	Category    string    `json:"category" gorm:"type:varchar(100);index"`
	ImageURL    string    `json:"imageUrl" gorm:"type:varchar(500)"`
	Active      bool      `json:"active" gorm:"not null;default:true;index"`
	ProviderID  *uint     `json:"providerId" gorm:"index"`
	Provider    *User     `json:"provider,omitempty" gorm:"foreignKey:ProviderID"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TableName specifies the table name for the Service model
func (Service) TableName() string {
	return "services"
}

// OwnedBy reports whether the service belongs to the given provider.
func (s *Service) OwnedBy(userID uint) bool {
	return s.ProviderID != nil && *s.ProviderID == userID
}
