package model

import (
	"time"

	"github.com/goblin987/ultramaxgoodbot/internal/domain/enums"
)

type ProductMedia struct {
	ID             int64           `json:"id"`
	ProductID      int64           `json:"product_id"`
	Kind           enums.MediaKind `json:"kind"`
	S3Key          string          `json:"s3_key"`
	TelegramFileID string          `json:"telegram_file_id"`
	CreatedAt      time.Time       `json:"created_at"`
}
