// Пакет model — доменные модели FlashFiles.
// FileRecord — единая структура метаданных загруженного файла,
// соответствует строке таблицы files в PostgreSQL.
package model

import (
	"time"
)

// FileRecord — метаданные одного загруженного файла.
// Владелец (OwnerID) неизменяем: только владелец может скачивать файл.
// ExpiresAt устанавливается ровно один раз при создании (CreatedAt + TTL)
// и никогда не продлевается.
type FileRecord struct {
	// FileID — уникальный идентификатор файла (UUID v4)
	FileID string `json:"id"`

	// OwnerID — идентификатор владельца (sub из JWT)
	OwnerID string `json:"owner"`

	// Filename — оригинальное имя файла при загрузке
	Filename string `json:"filename"`

	// Size — размер файла в байтах
	Size int64 `json:"size"`

	// StoragePath — имя файла на диске (относительно FF_DATA_DIR).
	// Не возвращается в API, используется только внутри сервиса.
	StoragePath string `json:"path"`

	// ContentType — MIME-тип файла
	ContentType string `json:"content_type"`

	// Title — заголовок для наложения текста и уведомления (опционально)
	Title string `json:"title,omitempty"`

	// Description — описание для наложения текста и уведомления (опционально)
	Description string `json:"description,omitempty"`

	// CreatedAt — дата и время загрузки (UTC)
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt — дата истечения (CreatedAt + TTL)
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired проверяет, истёк ли срок хранения файла.
func (f *FileRecord) IsExpired(now time.Time) bool {
	return now.After(f.ExpiresAt)
}
