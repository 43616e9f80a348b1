package validation

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func testValidator() *Validator {
	return New([]string{"jpg", "jpeg", "png", "tif", "tiff"}, 1<<20)
}

func jpegData() []byte {
	return append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, bytes.Repeat([]byte{0x01}, 64)...)
}

func pngData() []byte {
	return append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, bytes.Repeat([]byte{0x01}, 64)...)
}

func TestCheckFile_OK(t *testing.T) {
	t.Parallel()

	v := testValidator()

	require.NoError(t, v.CheckFile("orchard.jpg", jpegData()))
	require.NoError(t, v.CheckFile("ORCHARD.JPG", jpegData()))
	require.NoError(t, v.CheckFile("field.png", pngData()))

	// TIFF: оба порядка байтов.
	require.NoError(t, v.CheckFile("a.tif", append([]byte{0x49, 0x49, 0x2A, 0x00}, 0x01)))
	require.NoError(t, v.CheckFile("b.tiff", append([]byte{0x4D, 0x4D, 0x00, 0x2A}, 0x01)))
}

func TestCheckFile_ExtensionNotAllowed(t *testing.T) {
	t.Parallel()

	v := testValidator()

	require.ErrorIs(t, v.CheckFile("notes.txt", []byte("hello")), ErrExtensionNotAllowed)
	require.ErrorIs(t, v.CheckFile("archive.zip", jpegData()), ErrExtensionNotAllowed)
	require.ErrorIs(t, v.CheckFile("noext", jpegData()), ErrExtensionNotAllowed)
}

func TestCheckFile_SignatureMismatch(t *testing.T) {
	t.Parallel()

	v := testValidator()

	// Переименованный файл не проходит как снимок.
	require.ErrorIs(t, v.CheckFile("malware.jpg", []byte("MZ\x90\x00 definitely not a jpeg")), ErrSignatureMismatch)
	require.ErrorIs(t, v.CheckFile("fake.png", jpegData()), ErrSignatureMismatch)
}

func TestCheckFile_SizeLimits(t *testing.T) {
	t.Parallel()

	v := New([]string{"jpg"}, 16)

	require.ErrorIs(t, v.CheckFile("empty.jpg", nil), ErrEmptyFile)
	require.ErrorIs(t, v.CheckFile("big.jpg", jpegData()), ErrFileTooLarge)
}

func TestNew_NormalizesExtensions(t *testing.T) {
	t.Parallel()

	// Расширения принимаются и с точкой, и без, в любом регистре.
	v := New([]string{".JPG", " png "}, 1<<20)

	require.NoError(t, v.CheckFile("a.jpg", jpegData()))
	require.NoError(t, v.CheckFile("b.png", pngData()))
}
