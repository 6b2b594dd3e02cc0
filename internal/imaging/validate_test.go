package imaging

import (
	"strings"
	"testing"
)

var (
	pngBytes  = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)
	jpegBytes = append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, make([]byte, 64)...)
	webpBytes = append([]byte("RIFF\x00\x00\x00\x00WEBPVP8 "), make([]byte, 64)...)
	gifBytes  = append([]byte("GIF89a"), make([]byte, 64)...)
)

func TestEnsureAllowedImageAccepted(t *testing.T) {
	v := NewMimeValidator()
	for name, data := range map[string][]byte{
		"png":  pngBytes,
		"jpeg": jpegBytes,
		"webp": webpBytes,
	} {
		if err := v.EnsureAllowedImage(data); err != nil {
			t.Errorf("%s: expected accepted, got %v", name, err)
		}
	}
}

func TestEnsureAllowedImageRejected(t *testing.T) {
	v := NewMimeValidator()
	for name, data := range map[string][]byte{
		"empty":     nil,
		"garbage":   []byte("this is definitely not an image"),
		"gif":       gifBytes,
		"truncated": {0x00, 0x01},
	} {
		if err := v.EnsureAllowedImage(data); err == nil {
			t.Errorf("%s: expected rejection", name)
		}
	}
}

func TestEnsureAllowedImageErrorNamesFormat(t *testing.T) {
	err := NewMimeValidator().EnsureAllowedImage(gifBytes)
	if err == nil || !strings.Contains(err.Error(), "image/gif") {
		t.Errorf("expected the detected format in the error, got %v", err)
	}
}

func TestExtensionForMime(t *testing.T) {
	cases := map[string]string{
		"image/png":        ".png",
		"image/jpeg":       ".jpg",
		"image/webp":       ".webp",
		"application/junk": ".png",
	}
	for mime, want := range cases {
		if got := ExtensionForMime(mime); got != want {
			t.Errorf("%s: expected %s, got %s", mime, want, got)
		}
	}
}
