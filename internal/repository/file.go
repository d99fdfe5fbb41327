// file.go — репозиторий таблицы files.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/UtviklerenSiteAS/FlashFiles/internal/domain/model"
)

// fileColumns — список столбцов таблицы files для SELECT-запросов.
// DRY: одно место для всех SELECT'ов.
const fileColumns = `file_id, owner_id, filename, size, storage_path,
	content_type, title, description, created_at, expires_at`

// FileRepository — интерфейс доступа к метаданным файлов.
// Ingestion создаёт записи, Retrieval читает, Sweeper сканирует и удаляет.
type FileRepository interface {
	// Insert сохраняет новую запись о файле.
	Insert(ctx context.Context, rec *model.FileRecord) error
	// GetByID возвращает запись по UUID или ErrNotFound.
	GetByID(ctx context.Context, fileID string) (*model.FileRecord, error)
	// ListExpired возвращает записи, чей expires_at строго раньше before.
	ListExpired(ctx context.Context, before time.Time) ([]*model.FileRecord, error)
	// Delete удаляет запись. Отсутствующая запись не считается ошибкой
	// (идемпотентность повторной очистки).
	Delete(ctx context.Context, fileID string) error
}

// fileRepo — реализация FileRepository через pgx.
type fileRepo struct {
	db DBTX
}

// NewFileRepository создаёт репозиторий файлов.
func NewFileRepository(db DBTX) FileRepository {
	return &fileRepo{db: db}
}

// Insert сохраняет новую запись о файле.
func (r *fileRepo) Insert(ctx context.Context, rec *model.FileRecord) error {
	query := `INSERT INTO files (file_id, owner_id, filename, size, storage_path,
		content_type, title, description, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.Exec(ctx, query,
		rec.FileID, rec.OwnerID, rec.Filename, rec.Size, rec.StoragePath,
		rec.ContentType, rec.Title, rec.Description, rec.CreatedAt, rec.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("ошибка сохранения записи о файле: %w", err)
	}
	return nil
}

// GetByID возвращает запись по UUID или ErrNotFound.
func (r *fileRepo) GetByID(ctx context.Context, fileID string) (*model.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM files WHERE file_id = $1`, fileColumns)

	rec := &model.FileRecord{}
	err := r.db.QueryRow(ctx, query, fileID).Scan(
		&rec.FileID, &rec.OwnerID, &rec.Filename, &rec.Size, &rec.StoragePath,
		&rec.ContentType, &rec.Title, &rec.Description, &rec.CreatedAt, &rec.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи о файле: %w", err)
	}
	return rec, nil
}

// ListExpired возвращает записи, чей expires_at строго раньше before.
func (r *fileRepo) ListExpired(ctx context.Context, before time.Time) ([]*model.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM files WHERE expires_at < $1 ORDER BY expires_at`, fileColumns)

	rows, err := r.db.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска истёкших файлов: %w", err)
	}
	defer rows.Close()

	var records []*model.FileRecord
	for rows.Next() {
		rec := &model.FileRecord{}
		if err := rows.Scan(
			&rec.FileID, &rec.OwnerID, &rec.Filename, &rec.Size, &rec.StoragePath,
			&rec.ContentType, &rec.Title, &rec.Description, &rec.CreatedAt, &rec.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка чтения строки files: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка курсора files: %w", err)
	}

	return records, nil
}

// Delete удаляет запись о файле. Идемпотентна.
func (r *fileRepo) Delete(ctx context.Context, fileID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM files WHERE file_id = $1`, fileID)
	if err != nil {
		return fmt.Errorf("ошибка удаления записи о файле: %w", err)
	}
	return nil
}
