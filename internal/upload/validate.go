package upload

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"

	"nyaymitra/client/internal/fault"
	"nyaymitra/client/internal/remote"
)

// DefaultMaxBytes is the client-side ceiling shown to users. The backend has
// its own limits; this only saves a pointless upload.
const DefaultMaxBytes = 10 << 20

// allowedTypes maps each accepted extension to the content it must sniff as.
// The backend picks the MIME type it forwards from the extension, so the two
// have to agree.
var allowedTypes = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

// Validate checks the extension, size and magic bytes of file and returns it
// with ContentType set to the sniffed MIME type.
func Validate(file remote.File, maxBytes int64) (remote.File, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	ext := strings.ToLower(filepath.Ext(file.Name))
	wantMIME, ok := allowedTypes[ext]
	if !ok {
		return file, fmt.Errorf("%w: unsupported extension %q", fault.ErrInvalidFile, ext)
	}
	if len(file.Data) == 0 {
		return file, fmt.Errorf("%w: empty file", fault.ErrInvalidFile)
	}
	if int64(len(file.Data)) > maxBytes {
		return file, fmt.Errorf("%w: %d bytes exceeds %d", fault.ErrInvalidFile, len(file.Data), maxBytes)
	}

	kind, err := filetype.Match(file.Data)
	if err != nil || kind == filetype.Unknown {
		return file, fmt.Errorf("%w: unrecognised content", fault.ErrInvalidFile)
	}
	if kind.MIME.Value != wantMIME {
		return file, fmt.Errorf("%w: %s file contains %s", fault.ErrInvalidFile, ext, kind.MIME.Value)
	}

	file.ContentType = kind.MIME.Value
	return file, nil
}
