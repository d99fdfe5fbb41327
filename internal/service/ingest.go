// Пакет service — бизнес-логика FlashFiles.
// ingest.go — конвейер приёма файла: запись байтов на диск,
// best-effort наложение текста на изображение, вычисление срока
// хранения, сохранение метаданных и уведомление живых сессий владельца.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	apierrors "github.com/UtviklerenSiteAS/FlashFiles/internal/api/errors"
	"github.com/UtviklerenSiteAS/FlashFiles/internal/config"
	"github.com/UtviklerenSiteAS/FlashFiles/internal/domain/model"
	"github.com/UtviklerenSiteAS/FlashFiles/internal/repository"
	"github.com/UtviklerenSiteAS/FlashFiles/internal/storage/filestore"
)

// EventFileReceived — имя события уведомления о новом файле.
const EventFileReceived = "file_received"

// Notifier — подмножество реестра подключений, используемое конвейером.
type Notifier interface {
	Notify(principalID, event string, payload any) bool
}

// FileReceivedPayload — полезная нагрузка события file_received.
type FileReceivedPayload struct {
	FileID      string `json:"fileId"`
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// IngestParams — параметры приёма файла.
type IngestParams struct {
	// Reader — поток данных файла
	Reader io.Reader
	// Filename — оригинальное имя файла
	Filename string
	// ContentType — MIME-тип файла
	ContentType string
	// Size — заявленный размер файла в байтах
	Size int64
	// OwnerID — идентификатор владельца (аутентифицированный principal)
	OwnerID string
	// Title — заголовок для наложения и уведомления (опционально)
	Title string
	// Description — описание для наложения и уведомления (опционально)
	Description string
}

// IngestError — ошибка приёма с HTTP-кодом.
type IngestError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IngestService — конвейер приёма файлов.
type IngestService struct {
	cfg    *config.Config
	store  *filestore.FileStore
	repo   repository.FileRepository
	hub    Notifier
	logger *slog.Logger

	// now подменяется в тестах
	now func() time.Time
}

// NewIngestService создаёт конвейер приёма файлов.
func NewIngestService(
	cfg *config.Config,
	store *filestore.FileStore,
	repo repository.FileRepository,
	hub Notifier,
	logger *slog.Logger,
) *IngestService {
	return &IngestService{
		cfg:    cfg,
		store:  store,
		repo:   repo,
		hub:    hub,
		logger: logger.With(slog.String("component", "ingest_service")),
		now:    time.Now,
	}
}

// Ingest принимает файл от аутентифицированного владельца.
//
// Поток:
//  1. Проверка наличия principal (его отсутствие — ошибка конфигурации выше по стеку)
//  2. Проверка размера
//  3. Запись байтов на диск (streaming + SHA-256)
//  4. Best-effort наложение текста на изображение (ошибка не прерывает приём)
//  5. expires_at = now + TTL, устанавливается ровно один раз
//  6. Сохранение метаданных (ошибка — откат байтов, приём прерван)
//  7. Уведомление живых сессий владельца (результат доставки — только информационный)
func (s *IngestService) Ingest(ctx context.Context, params IngestParams) (*model.FileRecord, *IngestError) {
	// 1. Отсутствие principal здесь означает, что запрос прошёл мимо
	// аутентификации — отвечаем как на отказ авторизации.
	if params.OwnerID == "" {
		return nil, &IngestError{
			StatusCode: 401,
			Code:       apierrors.CodeUnauthorized,
			Message:    "Запрос без аутентифицированного пользователя",
		}
	}

	// 2. Проверяем размер файла
	if params.Size > s.cfg.MaxFileSize {
		return nil, &IngestError{
			StatusCode: 413,
			Code:       apierrors.CodeFileTooLarge,
			Message:    fmt.Sprintf("Размер файла %d байт превышает максимум %d байт", params.Size, s.cfg.MaxFileSize),
		}
	}

	// 3. Записываем байты на диск
	saved, err := s.store.SaveFile(params.Reader, params.Filename, params.OwnerID)
	if err != nil {
		s.logger.Error("Ошибка сохранения файла",
			slog.String("filename", params.Filename),
			slog.String("error", err.Error()),
		)
		return nil, &IngestError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Ошибка сохранения файла на диск",
		}
	}

	size := saved.Size

	// 4. Best-effort наложение текста: только для изображений при наличии
	// title/description. Ошибка логируется и НЕ прерывает приём —
	// файл сохраняется без наложения.
	if (params.Title != "" || params.Description != "") && strings.HasPrefix(params.ContentType, "image/") {
		if overlayErr := applyTextOverlay(saved.FullPath, params.ContentType, params.Title, params.Description, s.now()); overlayErr != nil {
			s.logger.Warn("Наложение текста не удалось, файл сохранён без изменений",
				slog.String("filename", params.Filename),
				slog.String("error", overlayErr.Error()),
			)
		} else if stat, statErr := os.Stat(saved.FullPath); statErr == nil {
			// Перекодирование меняет размер файла
			size = stat.Size()
		}
	}

	// 5. Срок хранения: устанавливается ровно один раз, не продлевается
	now := s.now().UTC()
	record := &model.FileRecord{
		FileID:      uuid.New().String(),
		OwnerID:     params.OwnerID,
		Filename:    params.Filename,
		Size:        size,
		StoragePath: saved.StoragePath,
		ContentType: params.ContentType,
		Title:       params.Title,
		Description: params.Description,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.cfg.FileTTL),
	}

	// 6. Сохраняем метаданные. Ошибка прерывает приём: байты удаляются,
	// уведомление не отправляется.
	if err := s.repo.Insert(ctx, record); err != nil {
		if _, delErr := s.store.DeleteFile(saved.StoragePath); delErr != nil {
			s.logger.Error("Ошибка отката файла после сбоя записи метаданных",
				slog.String("storage_path", saved.StoragePath),
				slog.String("error", delErr.Error()),
			)
		}
		s.logger.Error("Ошибка сохранения метаданных",
			slog.String("file_id", record.FileID),
			slog.String("error", err.Error()),
		)
		return nil, &IngestError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Ошибка сохранения метаданных файла",
		}
	}

	// 7. Уведомляем живые сессии владельца. Метаданные уже долговечны:
	// результат доставки не влияет на успех приёма.
	delivered := s.hub.Notify(record.OwnerID, EventFileReceived, FileReceivedPayload{
		FileID:      record.FileID,
		Filename:    record.Filename,
		Size:        record.Size,
		Title:       record.Title,
		Description: record.Description,
	})

	s.logger.Info("Файл принят",
		slog.String("file_id", record.FileID),
		slog.String("owner", record.OwnerID),
		slog.String("filename", record.Filename),
		slog.Int64("size", record.Size),
		slog.Time("expires_at", record.ExpiresAt),
		slog.Bool("notified", delivered),
	)

	return record, nil
}
