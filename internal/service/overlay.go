// overlay.go — нанесение текстовых подписей на изображения.
//
// На JPEG/PNG при наличии заголовка или описания наносится белый текст:
// описание и заголовок в левом нижнем углу, дата — в правом нижнем.
// Перекодирование атомарное: временный файл рядом, затем rename.
package service

import (
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	overlayMargin     = 10
	overlayLineHeight = 16
)

// applyTextOverlay декодирует изображение по пути path, наносит подписи
// и перезаписывает файл в том же формате. Поддерживаются image/jpeg и
// image/png; остальные типы возвращают ошибку (вызывающий трактует её
// как best-effort и продолжает без наложения).
func applyTextOverlay(path, contentType, title, description string, now time.Time) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("открытие изображения: %w", err)
	}

	var img image.Image
	switch contentType {
	case "image/jpeg":
		img, err = jpeg.Decode(src)
	case "image/png":
		img, err = png.Decode(src)
	default:
		src.Close()
		return fmt.Errorf("неподдерживаемый тип изображения: %s", contentType)
	}
	src.Close()
	if err != nil {
		return fmt.Errorf("декодирование изображения: %w", err)
	}

	bounds := img.Bounds()
	canvas := image.NewRGBA(bounds)
	draw.Draw(canvas, bounds, img, bounds.Min, draw.Src)

	face := basicfont.Face7x13
	white := image.White

	// Описание — самая нижняя строка слева, заголовок над ним
	y := bounds.Max.Y - overlayMargin
	if description != "" {
		drawText(canvas, face, white, overlayMargin, y, description)
		y -= overlayLineHeight
	}
	if title != "" {
		drawText(canvas, face, white, overlayMargin, y, title)
	}

	// Дата — правый нижний угол
	dateLine := now.Format("02.01.2006")
	dateWidth := font.MeasureString(face, dateLine).Ceil()
	drawText(canvas, face, white, bounds.Max.X-dateWidth-overlayMargin, bounds.Max.Y-overlayMargin, dateLine)

	// Атомарная перезапись: временный файл в том же каталоге + rename
	tmp, err := os.CreateTemp(filepath.Dir(path), ".overlay-*")
	if err != nil {
		return fmt.Errorf("создание временного файла: %w", err)
	}
	tmpPath := tmp.Name()

	switch contentType {
	case "image/jpeg":
		err = jpeg.Encode(tmp, canvas, &jpeg.Options{Quality: 90})
	case "image/png":
		err = png.Encode(tmp, canvas)
	}
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("кодирование изображения: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("синхронизация временного файла: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("закрытие временного файла: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("замена изображения: %w", err)
	}

	return nil
}

// drawText рисует одну строку текста с базовой линией в точке (x, y).
func drawText(dst draw.Image, face font.Face, src image.Image, x, y int, text string) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  src,
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
