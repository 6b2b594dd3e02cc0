package imaging

import (
	"fmt"

	"github.com/gabriel-vasile/mimetype"
)

// allowedFormats maps accepted mime types to their output file extension.
var allowedFormats = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// Validator checks that an uploaded payload is a decodable, supported image.
type Validator interface {
	EnsureAllowedImage(data []byte) error
}

// MimeValidator sniffs the actual bytes rather than trusting the declared
// Content-Type header.
type MimeValidator struct{}

func NewMimeValidator() MimeValidator { return MimeValidator{} }

func (MimeValidator) EnsureAllowedImage(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty image payload")
	}
	detected := mimetype.Detect(data).String()
	if _, ok := allowedFormats[detected]; !ok {
		return fmt.Errorf("unsupported image format: %s (allowed: JPEG, PNG, WEBP)", detected)
	}
	return nil
}

// ExtensionForMime returns the file extension for a provider-returned mime
// type, defaulting to .png.
func ExtensionForMime(mime string) string {
	if ext, ok := allowedFormats[mime]; ok {
		return ext
	}
	return ".png"
}
