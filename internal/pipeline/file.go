package pipeline

import (
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/kamilpajak/labsight/internal/core"
)

// DefaultMaxFileBytes bounds uploads when no limit is configured.
const DefaultMaxFileBytes = 20 << 20

// Accepted MIME types for lab report uploads.
const (
	MimePDF  = "application/pdf"
	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"
)

// File is an uploaded lab report.
type File struct {
	Data     []byte
	Filename string
	MimeType string
}

// NormalizeFile checks f and fills in a missing MIME type from the filename
// extension or the content.
func NormalizeFile(f File, maxBytes int64) (File, error) {
	if len(f.Data) == 0 {
		return f, core.ErrValidation(core.CodeInvalidFile, "file is empty")
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileBytes
	}
	if int64(len(f.Data)) > maxBytes {
		return f, core.ErrValidation(core.CodeInvalidFile,
			fmt.Sprintf("file exceeds the %d MiB limit", maxBytes>>20))
	}

	mt := canonicalMime(f.MimeType)
	if mt == "" || mt == "application/octet-stream" {
		mt = canonicalMime(mime.TypeByExtension(strings.ToLower(filepath.Ext(f.Filename))))
	}
	if mt == "" || mt == "application/octet-stream" {
		mt = canonicalMime(http.DetectContentType(f.Data))
	}

	switch mt {
	case MimePDF, MimeJPEG, MimePNG:
	default:
		return f, core.ErrValidation(core.CodeInvalidFile,
			fmt.Sprintf("unsupported file type %q: upload a PDF, JPEG or PNG", mt))
	}

	f.MimeType = mt
	if f.Filename == "" {
		f.Filename = "lab-report" + extensionFor(mt)
	}
	return f, nil
}

func canonicalMime(s string) string {
	if s == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(s)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(s))
	}
	if mt == "image/jpg" {
		return MimeJPEG
	}
	return mt
}

func extensionFor(mt string) string {
	switch mt {
	case MimePDF:
		return ".pdf"
	case MimePNG:
		return ".png"
	default:
		return ".jpg"
	}
}
