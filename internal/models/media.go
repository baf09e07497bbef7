package models

import (
	"time"

	"github.com/google/uuid"
)

// MediaFile описывает загруженный файл.
type MediaFile struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	UserID    *uuid.UUID `db:"user_id" json:"user_id,omitempty"`
	FilePath  string     `db:"file_path" json:"file_path"`
	FileType  string     `db:"file_type" json:"file_type"`
	FileSize  int64      `db:"file_size" json:"file_size"`
	IsPublic  bool       `db:"is_public" json:"is_public"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// Notification — персистентное уведомление пользователя.
type Notification struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Payload   []byte    `db:"payload" json:"payload"`
	IsRead    bool      `db:"is_read" json:"is_read"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
