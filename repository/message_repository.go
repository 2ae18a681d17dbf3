package repository

import (
	"context"

	"gorm.io/gorm"

	"home-services-server/models"
)

type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	ListByBooking(ctx context.Context, bookingID uint) ([]models.Message, error)
}

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *messageRepository) ListByBooking(ctx context.Context, bookingID uint) ([]models.Message, error) {
	var messages []models.Message
	err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&messages).Error
	return messages, err
}
