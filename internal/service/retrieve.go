// retrieve.go — выдача файла владельцу.
// Проверки в строгом порядке, каждая со своим исходом:
// запись существует → запрашивает владелец → срок не истёк → байты на месте.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	apierrors "github.com/UtviklerenSiteAS/FlashFiles/internal/api/errors"
	"github.com/UtviklerenSiteAS/FlashFiles/internal/domain/model"
	"github.com/UtviklerenSiteAS/FlashFiles/internal/repository"
	"github.com/UtviklerenSiteAS/FlashFiles/internal/storage/filestore"
)

// RetrieveError — ошибка выдачи с HTTP-кодом.
type RetrieveError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *RetrieveError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// RetrieveService — сервис выдачи файлов владельцу.
type RetrieveService struct {
	repo   repository.FileRepository
	store  *filestore.FileStore
	logger *slog.Logger

	// now подменяется в тестах
	now func() time.Time
}

// NewRetrieveService создаёт сервис выдачи файлов.
func NewRetrieveService(
	repo repository.FileRepository,
	store *filestore.FileStore,
	logger *slog.Logger,
) *RetrieveService {
	return &RetrieveService{
		repo:   repo,
		store:  store,
		logger: logger.With(slog.String("component", "retrieve_service")),
		now:    time.Now,
	}
}

// Authorize выполняет проверки доступа и возвращает запись о файле.
// Порядок проверок фиксирован, каждая — отдельный исход:
//   - запись не найдена → 404 NOT_FOUND
//   - запрашивает не владелец → 403 FORBIDDEN
//   - срок хранения истёк → 410 FILE_EXPIRED
func (s *RetrieveService) Authorize(ctx context.Context, principalID, fileID string) (*model.FileRecord, *RetrieveError) {
	rec, err := s.repo.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &RetrieveError{
				StatusCode: 404,
				Code:       apierrors.CodeNotFound,
				Message:    fmt.Sprintf("Файл %s не найден", fileID),
			}
		}
		s.logger.Error("Ошибка чтения метаданных",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
		return nil, &RetrieveError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Ошибка чтения метаданных файла",
		}
	}

	// Владение неизменяемо: файл доступен только владельцу
	if rec.OwnerID != principalID {
		return nil, &RetrieveError{
			StatusCode: 403,
			Code:       apierrors.CodeForbidden,
			Message:    "Нет доступа к этому файлу",
		}
	}

	if rec.IsExpired(s.now()) {
		return nil, &RetrieveError{
			StatusCode: 410,
			Code:       apierrors.CodeFileExpired,
			Message:    "Срок хранения файла истёк",
		}
	}

	return rec, nil
}

// Serve отдаёт файл владельцу через http.ServeContent с оригинальным
// именем в Content-Disposition. Ошибка стриминга после начала передачи
// не откатывает и не удаляет запись.
func (s *RetrieveService) Serve(w http.ResponseWriter, r *http.Request, principalID, fileID string) *RetrieveError {
	rec, authErr := s.Authorize(r.Context(), principalID, fileID)
	if authErr != nil {
		return authErr
	}

	file, err := s.store.ReadFile(rec.StoragePath)
	if err != nil {
		// Метаданные есть, байтов нет — рассинхронизация хранилища,
		// эксплуатационная аномалия. Запись не удаляется.
		s.logger.Error("Файл отсутствует на диске при живых метаданных",
			slog.String("file_id", rec.FileID),
			slog.String("storage_path", rec.StoragePath),
			slog.String("error", err.Error()),
		)
		return &RetrieveError{
			StatusCode: 404,
			Code:       apierrors.CodeFileMissing,
			Message:    "Файл отсутствует на сервере",
		}
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		s.logger.Error("Ошибка получения stat файла",
			slog.String("file_id", rec.FileID),
			slog.String("error", err.Error()),
		)
		return &RetrieveError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Ошибка чтения файла",
		}
	}

	w.Header().Set("Content-Type", rec.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.Filename))

	// http.ServeContent обрабатывает Range, If-Modified-Since и Content-Length
	http.ServeContent(w, r, rec.Filename, stat.ModTime(), file)

	s.logger.Debug("Файл выдан",
		slog.String("file_id", rec.FileID),
		slog.String("owner", rec.OwnerID),
		slog.Int64("size", rec.Size),
	)

	return nil
}
