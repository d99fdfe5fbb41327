// files.go — HTTP handlers файловых операций: приём и выдача.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/UtviklerenSiteAS/FlashFiles/internal/api/errors"
	"github.com/UtviklerenSiteAS/FlashFiles/internal/api/middleware"
	"github.com/UtviklerenSiteAS/FlashFiles/internal/service"
)

// multipartMemoryLimit — буфер парсинга multipart form в памяти,
// остальное уходит во временные файлы.
const multipartMemoryLimit = 32 << 20 // 32 MB

// multipartOverhead — запас сверх лимита файла на границы multipart,
// заголовки частей и текстовые поля title/description.
const multipartOverhead = 1 << 20 // 1 MB

// UploadResponse — ответ на успешный приём файла.
type UploadResponse struct {
	FileID    string    `json:"fileId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// FilesHandler — обработчик файловых endpoints.
type FilesHandler struct {
	ingestSvc   *service.IngestService
	retrieveSvc *service.RetrieveService
	maxFileSize int64
}

// NewFilesHandler создаёт обработчик файловых endpoints.
func NewFilesHandler(ingestSvc *service.IngestService, retrieveSvc *service.RetrieveService, maxFileSize int64) *FilesHandler {
	return &FilesHandler{
		ingestSvc:   ingestSvc,
		retrieveSvc: retrieveSvc,
		maxFileSize: maxFileSize,
	}
}

// Upload обрабатывает POST /upload.
// Multipart form: file (обязательно), title и description (опционально).
func (h *FilesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	principalID, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		apierrors.Unauthorized(w, "Authentication required")
		return
	}

	// Обрезаем тело запроса до лимита ещё при чтении: без этого
	// клиент мог бы залить гигабайты во временные файлы до проверки размера.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize+multipartOverhead)

	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			apierrors.FileTooLarge(w, fmt.Sprintf("Файл превышает лимит %d байт", h.maxFileSize))
			return
		}
		apierrors.ValidationError(w, fmt.Sprintf("Ошибка парсинга multipart: %s", err.Error()))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, "Поле 'file' обязательно")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	rec, ingestErr := h.ingestSvc.Ingest(r.Context(), service.IngestParams{
		Reader:      file,
		Filename:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		OwnerID:     principalID,
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
	})
	if ingestErr != nil {
		apierrors.WriteError(w, ingestErr.StatusCode, ingestErr.Code, ingestErr.Message)
		return
	}

	resp := UploadResponse{
		FileID:    rec.FileID,
		ExpiresAt: rec.ExpiresAt,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(resp)
}

// Download обрабатывает GET /download/{fileId}.
// Проверки доступа и отдача байтов — в RetrieveService.
func (h *FilesHandler) Download(w http.ResponseWriter, r *http.Request) {
	principalID, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		apierrors.Unauthorized(w, "Authentication required")
		return
	}

	fileID := chi.URLParam(r, "fileId")
	if fileID == "" {
		apierrors.ValidationError(w, "Идентификатор файла обязателен")
		return
	}

	if retrieveErr := h.retrieveSvc.Serve(w, r, principalID, fileID); retrieveErr != nil {
		apierrors.WriteError(w, retrieveErr.StatusCode, retrieveErr.Code, retrieveErr.Message)
	}
}
