package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/UtviklerenSiteAS/FlashFiles/internal/domain/model"
	"github.com/UtviklerenSiteAS/FlashFiles/internal/storage/filestore"
)

func setupRetrieveEnv(t *testing.T) (*RetrieveService, *fakeFileRepo, *filestore.FileStore) {
	t.Helper()

	store, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatalf("Ошибка создания FileStore: %v", err)
	}

	repo := newFakeFileRepo()
	svc := NewRetrieveService(repo, store, testLogger())

	return svc, repo, store
}

// seedFile кладёт запись в репозиторий и байты на диск.
func seedFile(t *testing.T, repo *fakeFileRepo, store *filestore.FileStore, fileID, ownerID string, expiresAt time.Time) *model.FileRecord {
	t.Helper()

	rec := &model.FileRecord{
		FileID:      fileID,
		OwnerID:     ownerID,
		Filename:    "report.txt",
		Size:        9,
		StoragePath: fileID + ".bin",
		ContentType: "text/plain",
		CreatedAt:   expiresAt.Add(-time.Hour),
		ExpiresAt:   expiresAt,
	}
	repo.records[fileID] = rec

	path := filepath.Join(store.DataDir(), rec.StoragePath)
	if err := os.WriteFile(path, []byte("test data"), 0o640); err != nil {
		t.Fatalf("Ошибка создания тестового файла: %v", err)
	}

	return rec
}

func TestAuthorize_UnknownFile(t *testing.T) {
	svc, _, _ := setupRetrieveEnv(t)

	_, retErr := svc.Authorize(context.Background(), "user-1", "no-such-file")
	if retErr == nil {
		t.Fatal("Authorize неизвестного файла должен вернуть ошибку")
	}
	if retErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode: хотели 404, получили %d", retErr.StatusCode)
	}
}

func TestAuthorize_ForeignOwnerForbidden(t *testing.T) {
	svc, repo, store := setupRetrieveEnv(t)
	seedFile(t, repo, store, "file-1", "user-1", time.Now().UTC().Add(time.Hour))

	_, retErr := svc.Authorize(context.Background(), "user-2", "file-1")
	if retErr == nil {
		t.Fatal("Authorize чужого файла должен вернуть ошибку")
	}
	if retErr.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode: хотели 403, получили %d", retErr.StatusCode)
	}
}

func TestAuthorize_ExpiredFileGone(t *testing.T) {
	svc, repo, store := setupRetrieveEnv(t)
	seedFile(t, repo, store, "file-1", "user-1", time.Now().UTC().Add(-time.Minute))

	_, retErr := svc.Authorize(context.Background(), "user-1", "file-1")
	if retErr == nil {
		t.Fatal("Authorize истёкшего файла должен вернуть ошибку")
	}
	if retErr.StatusCode != http.StatusGone {
		t.Errorf("StatusCode: хотели 410, получили %d", retErr.StatusCode)
	}
}

// Порядок проверок фиксирован: чужой истёкший файл даёт 403, не 410.
func TestAuthorize_OwnershipCheckedBeforeExpiry(t *testing.T) {
	svc, repo, store := setupRetrieveEnv(t)
	seedFile(t, repo, store, "file-1", "user-1", time.Now().UTC().Add(-time.Minute))

	_, retErr := svc.Authorize(context.Background(), "user-2", "file-1")
	if retErr == nil {
		t.Fatal("Authorize должен вернуть ошибку")
	}
	if retErr.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode: хотели 403, получили %d", retErr.StatusCode)
	}
}

func TestServe_Success(t *testing.T) {
	svc, repo, store := setupRetrieveEnv(t)
	seedFile(t, repo, store, "file-1", "user-1", time.Now().UTC().Add(time.Hour))

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/download/file-1", nil)

	if retErr := svc.Serve(w, r, "user-1", "file-1"); retErr != nil {
		t.Fatalf("Serve вернул ошибку: %v", retErr)
	}

	resp := w.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode: хотели 200, получили %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/plain" {
		t.Errorf("Content-Type: хотели text/plain, получили %s", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); cd != `attachment; filename="report.txt"` {
		t.Errorf("Content-Disposition: получили %s", cd)
	}

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "test data" {
		t.Errorf("Тело ответа: хотели %q, получили %q", "test data", string(body))
	}
}

func TestServe_MissingBytesKeepsMetadata(t *testing.T) {
	svc, repo, store := setupRetrieveEnv(t)
	rec := seedFile(t, repo, store, "file-1", "user-1", time.Now().UTC().Add(time.Hour))

	// Байты пропали с диска, метаданные живы
	if err := os.Remove(filepath.Join(store.DataDir(), rec.StoragePath)); err != nil {
		t.Fatalf("Ошибка удаления тестового файла: %v", err)
	}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/download/file-1", nil)

	retErr := svc.Serve(w, r, "user-1", "file-1")
	if retErr == nil {
		t.Fatal("Serve при отсутствии байтов должен вернуть ошибку")
	}
	if retErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode: хотели 404, получили %d", retErr.StatusCode)
	}

	// Запись не удаляется: рассинхронизация — эксплуатационная аномалия
	if _, ok := repo.records["file-1"]; !ok {
		t.Error("Метаданные удалены при отсутствии байтов")
	}
}
