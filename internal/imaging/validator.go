package imaging

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	apperrors "github.com/luna-health/triage-go/internal/errors"
)

// allowedMimeTypes is the upload allow-list. Anything else is rejected
// before decoding.
var allowedMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// Validator checks uploaded bytes before any pixel work happens.
type Validator struct {
	maxBytes int64
}

// NewValidator creates a validator with the given payload size ceiling.
func NewValidator(maxBytes int64) *Validator {
	return &Validator{maxBytes: maxBytes}
}

// Validate decodes an upload into an image. The size ceiling is enforced
// before decoding so oversized payloads never reach the decoder.
func (v *Validator) Validate(data []byte, mimeType string) (image.Image, error) {
	if len(data) == 0 {
		return nil, apperrors.NewInputError("empty image payload", nil)
	}
	if int64(len(data)) > v.maxBytes {
		return nil, apperrors.NewInputError("image payload exceeds size limit", nil)
	}
	if !allowedMimeTypes[mimeType] {
		return nil, apperrors.NewInputError("unsupported image type: "+mimeType, nil)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.NewInputError("invalid or corrupt image data", err)
	}
	return img, nil
}

// ValidateAge checks the optional user-supplied age.
func ValidateAge(age *int) error {
	if age == nil {
		return nil
	}
	if *age < 0 || *age > 120 {
		return apperrors.NewInputError("age must be between 0 and 120", nil)
	}
	return nil
}
