package service

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeTestPNG создаёт одноцветный PNG заданного размера.
func writeTestPNG(t *testing.T, path string, w, h int) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 30, G: 30, B: 30, A: 255})
		}
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Ошибка создания файла: %v", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		t.Fatalf("Ошибка кодирования PNG: %v", err)
	}
}

func TestApplyTextOverlay_PNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.png")
	writeTestPNG(t, path, 200, 100)

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	if err := applyTextOverlay(path, "image/png", "Заголовок", "Описание", now); err != nil {
		t.Fatalf("applyTextOverlay вернул ошибку: %v", err)
	}

	// Результат остаётся валидным PNG тех же размеров
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Ошибка открытия результата: %v", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("Результат не декодируется как PNG: %v", err)
	}
	if img.Bounds().Dx() != 200 || img.Bounds().Dy() != 100 {
		t.Errorf("Размеры: хотели 200x100, получили %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestApplyTextOverlay_UnsupportedType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4"), 0o640); err != nil {
		t.Fatalf("Ошибка создания файла: %v", err)
	}

	if err := applyTextOverlay(path, "application/pdf", "Заголовок", "", time.Now()); err == nil {
		t.Fatal("Ожидали ошибку для неподдерживаемого типа")
	}
}

func TestApplyTextOverlay_CorruptImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.png")
	original := []byte("это не PNG")
	if err := os.WriteFile(path, original, 0o640); err != nil {
		t.Fatalf("Ошибка создания файла: %v", err)
	}

	if err := applyTextOverlay(path, "image/png", "Заголовок", "", time.Now()); err == nil {
		t.Fatal("Ожидали ошибку декодирования")
	}

	// Исходный файл не повреждён
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Ошибка чтения файла: %v", err)
	}
	if string(data) != string(original) {
		t.Error("Исходный файл изменён при ошибке наложения")
	}
}
