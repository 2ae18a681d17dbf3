package models

import "time"

type Message struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	BookingID  uint      `json:"bookingId" gorm:"not null;index:idx_messages_booking_created,priority:1"`
	SenderID   uint      `json:"senderId" gorm:"not null"`
	ReceiverID uint      `json:"receiverId" gorm:"not null"`
	Content    string    `json:"content" gorm:"size:2000;not null"`
	CreatedAt  time.Time `json:"createdAt" gorm:"autoCreateTime;index:idx_messages_booking_created,priority:2"`
}

func (Message) TableName() string {
	return "messages"
}
