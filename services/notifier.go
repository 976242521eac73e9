// services/notifier.go
package services

import (
	"log"

	"presale-referral-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Notifier is a one-way feedback sink. Callers fire and forget — delivery
// failures are logged, never propagated back into ledger operations.
type Notifier struct {
	DB *gorm.DB
}

func NewNotifier(db *gorm.DB) *Notifier {
	return &Notifier{DB: db}
}

// Notify appends a notification row from a goroutine so the calling
// operation never blocks on it. The SSE stream delivers it to the client.
func (n *Notifier) Notify(walletAddress, message, level string) {
	if n == nil || n.DB == nil {
		return
	}
	note := models.Notification{
		ID:            uuid.NewString(),
		WalletAddress: walletAddress,
		Message:       message,
		Level:         level,
	}
	go func() {
		if err := n.DB.Create(&note).Error; err != nil {
			log.Printf("⚠️ Failed to record notification for %s: %v", walletAddress, err)
		}
	}()
}
