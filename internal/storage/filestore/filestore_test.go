package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()

	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Ошибка создания FileStore: %v", err)
	}
	return store
}

func TestSaveFile(t *testing.T) {
	store := newTestStore(t)

	content := "содержимое тестового файла"
	result, err := store.SaveFile(strings.NewReader(content), "report.txt", "user-1")
	if err != nil {
		t.Fatalf("SaveFile вернул ошибку: %v", err)
	}

	if result.Size != int64(len(content)) {
		t.Errorf("Size: хотели %d, получили %d", len(content), result.Size)
	}

	// Checksum совпадает с SHA-256 содержимого
	sum := sha256.Sum256([]byte(content))
	if result.Checksum != hex.EncodeToString(sum[:]) {
		t.Errorf("Checksum: хотели %s, получили %s", hex.EncodeToString(sum[:]), result.Checksum)
	}

	// Расширение сохранено
	if !strings.HasSuffix(result.StoragePath, ".txt") {
		t.Errorf("StoragePath без расширения: %s", result.StoragePath)
	}

	// Временных файлов не осталось
	entries, _ := os.ReadDir(store.DataDir())
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("Остался временный файл: %s", e.Name())
		}
	}

	// Содержимое читается обратно
	f, err := store.ReadFile(result.StoragePath)
	if err != nil {
		t.Fatalf("ReadFile вернул ошибку: %v", err)
	}
	defer f.Close()

	data, _ := io.ReadAll(f)
	if string(data) != content {
		t.Errorf("Содержимое: хотели %q, получили %q", content, string(data))
	}
}

func TestSaveFile_SanitizesFilename(t *testing.T) {
	store := newTestStore(t)

	result, err := store.SaveFile(strings.NewReader("data"), "../../etc/passwd", "user/1")
	if err != nil {
		t.Fatalf("SaveFile вернул ошибку: %v", err)
	}

	if strings.Contains(result.StoragePath, "/") || strings.Contains(result.StoragePath, "..") {
		t.Errorf("StoragePath содержит небезопасные символы: %s", result.StoragePath)
	}
	if !store.FileExists(result.StoragePath) {
		t.Error("Файл не найден внутри dataDir")
	}
}

func TestDeleteFile_Idempotent(t *testing.T) {
	store := newTestStore(t)

	result, err := store.SaveFile(strings.NewReader("data"), "doc.txt", "user-1")
	if err != nil {
		t.Fatalf("SaveFile вернул ошибку: %v", err)
	}

	existed, err := store.DeleteFile(result.StoragePath)
	if err != nil {
		t.Fatalf("DeleteFile вернул ошибку: %v", err)
	}
	if !existed {
		t.Error("existed: хотели true при первом удалении")
	}

	// Повторное удаление: файла уже нет, это не ошибка
	existed, err = store.DeleteFile(result.StoragePath)
	if err != nil {
		t.Fatalf("Повторный DeleteFile вернул ошибку: %v", err)
	}
	if existed {
		t.Error("existed: хотели false при повторном удалении")
	}
}

func TestReadFile_NotFound(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.ReadFile("no-such-file.bin"); err == nil {
		t.Fatal("ReadFile несуществующего файла должен вернуть ошибку")
	}
}

func TestGenerateStorageName_Unique(t *testing.T) {
	a := generateStorageName("photo.jpg", "user-1")
	b := generateStorageName("photo.jpg", "user-1")

	if a == b {
		t.Errorf("Имена совпали: %s", a)
	}
	if !strings.HasSuffix(a, ".jpg") {
		t.Errorf("Расширение потеряно: %s", a)
	}
}
