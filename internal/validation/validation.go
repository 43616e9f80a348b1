// validation — проверка загружаемых снимков до записи на диск:
// whitelist расширений, предел размера и сигнатура формата (magic bytes).
// Расхождение расширения и сигнатуры — отказ: переименованный файл
// не должен проходить как снимок.
package validation

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	// ErrExtensionNotAllowed — расширение вне whitelist'а.
	ErrExtensionNotAllowed = errors.New("extension not allowed")
	// ErrFileTooLarge — файл больше настроенного предела.
	ErrFileTooLarge = errors.New("file too large")
	// ErrEmptyFile — пустое содержимое.
	ErrEmptyFile = errors.New("empty file")
	// ErrSignatureMismatch — содержимое не похоже на заявленный формат.
	ErrSignatureMismatch = errors.New("signature mismatch")
)

// Сигнатуры поддерживаемых форматов снимков.
var signatures = map[string][][]byte{
	".jpg":  {{0xFF, 0xD8, 0xFF}},
	".jpeg": {{0xFF, 0xD8, 0xFF}},
	".png":  {{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}},
	// TIFF: little-endian и big-endian варианты.
	".tif":  {{0x49, 0x49, 0x2A, 0x00}, {0x4D, 0x4D, 0x00, 0x2A}},
	".tiff": {{0x49, 0x49, 0x2A, 0x00}, {0x4D, 0x4D, 0x00, 0x2A}},
}

// Validator проверяет загружаемые файлы.
type Validator struct {
	allowed map[string]struct{}
	maxSize int64
}

// New создаёт Validator. Расширения передаются без точки ("jpg", "png").
func New(allowedExtensions []string, maxSize int64) *Validator {
	allowed := make(map[string]struct{}, len(allowedExtensions))
	for _, ext := range allowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = struct{}{}
	}

	return &Validator{allowed: allowed, maxSize: maxSize}
}

// CheckFile валидирует имя файла и его содержимое.
func (v *Validator) CheckFile(filename string, data []byte) error {
	const op = "validation.CheckFile"

	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := v.allowed[ext]; !ok {
		return fmt.Errorf("%s: %w", op, ErrExtensionNotAllowed)
	}

	if len(data) == 0 {
		return fmt.Errorf("%s: %w", op, ErrEmptyFile)
	}

	if v.maxSize > 0 && int64(len(data)) > v.maxSize {
		return fmt.Errorf("%s: %w", op, ErrFileTooLarge)
	}

	sigs, ok := signatures[ext]
	if !ok {
		// Расширение разрешено конфигурацией, но формат нам не известен —
		// пропускаем без проверки сигнатуры.
		return nil
	}

	for _, sig := range sigs {
		if bytes.HasPrefix(data, sig) {
			return nil
		}
	}

	return fmt.Errorf("%s: %w", op, ErrSignatureMismatch)
}
