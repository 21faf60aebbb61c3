package upload

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
)

// DefaultMaxBytes is the largest image the analysis endpoint accepts.
const DefaultMaxBytes = 10 << 20

// DefaultAllowedTypes are the image formats the analysis endpoint accepts.
var DefaultAllowedTypes = []string{"image/jpeg", "image/png", "image/webp"}

var (
	ErrEmpty       = errors.New("empty image")
	ErrTooLarge    = errors.New("image too large")
	ErrUnsupported = errors.New("unsupported image type")
)

// ValidationError carries the reason a file was rejected before upload.
type ValidationError struct {
	Err     error
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return e.Err }

// Options bound what Submit accepts.
type Options struct {
	MaxBytes     int64
	AllowedTypes []string
}

func (o Options) withDefaults() Options {
	if o.MaxBytes <= 0 {
		o.MaxBytes = DefaultMaxBytes
	}
	if len(o.AllowedTypes) == 0 {
		o.AllowedTypes = DefaultAllowedTypes
	}
	return o
}

// Validate checks size and sniffed content type and returns the MIME type
// to send with the upload. The declared file name is not trusted.
func Validate(data []byte, opts Options) (string, error) {
	opts = opts.withDefaults()

	if len(data) == 0 {
		return "", &ValidationError{Err: ErrEmpty, Message: "Please choose an image"}
	}
	if int64(len(data)) > opts.MaxBytes {
		return "", &ValidationError{
			Err: ErrTooLarge,
			Message: fmt.Sprintf("File is too large (%s), the limit is %s",
				humanize.IBytes(uint64(len(data))), humanize.IBytes(uint64(opts.MaxBytes))),
		}
	}

	mtype := mimetype.Detect(data)
	if !mimetype.EqualsAny(mtype.String(), opts.AllowedTypes...) {
		return "", &ValidationError{
			Err:     ErrUnsupported,
			Message: fmt.Sprintf("Unsupported file type %s, use JPG, PNG or WEBP", mtype.String()),
		}
	}
	return mtype.String(), nil
}
