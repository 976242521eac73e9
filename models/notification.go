// models/notification.go
package models

import "time"

// Notification is a one-way user feedback message. Writers never block on
// delivery; the SSE stream picks rows up by created_at cursor.
type Notification struct {
	ID            string    `gorm:"primaryKey;type:uuid" json:"id"`
	WalletAddress string    `gorm:"index;not null" json:"wallet_address"`
	Message       string    `gorm:"not null" json:"message"`
	Level         string    `gorm:"type:varchar(16);not null;default:'info'" json:"level"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
}
