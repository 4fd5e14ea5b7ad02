package storage

import (
	"bytes"
	"fmt"
	"image"
	"net/http"
	"strings"

	// Registered for image.DecodeConfig.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// Mime allowlists for plain file fields and image fields.
var (
	FileMimes = []string{
		"application/pdf",
		"application/zip",
		"text/plain; charset=utf-8",
		"image/png",
		"image/jpeg",
	}

	ImageMimes = []string{
		"image/png",
		"image/jpeg",
		"image/gif",
		"image/svg+xml",
	}
)

// DetectMime sniffs the content type from the blob's leading bytes. SVG is
// detected separately since net/http reports it as plain text or XML.
func DetectMime(data []byte) string {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}

	if looksLikeSVG(head) {
		return "image/svg+xml"
	}

	return http.DetectContentType(head)
}

func looksLikeSVG(head []byte) bool {
	trimmed := bytes.TrimSpace(head)

	return bytes.HasPrefix(trimmed, []byte("<svg")) || bytes.Contains(trimmed, []byte("<svg "))
}

// ImageSize returns the pixel dimensions of a raster image. SVG has no
// intrinsic raster size and reports an error.
func ImageSize(data []byte) (int, int, error) {
	config, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to decode image: %w", err)
	}

	if format == "" {
		return 0, 0, fmt.Errorf("unknown image format")
	}

	return config.Width, config.Height, nil
}

// MimeAllowed reports whether the sniffed mime is in the allowlist. Entries
// compare on the media type alone, parameters are ignored.
func MimeAllowed(allowed []string, mime string) bool {
	normalize := func(s string) string {
		base, _, _ := strings.Cut(s, ";")

		return strings.TrimSpace(base)
	}

	for _, candidate := range allowed {
		if normalize(candidate) == normalize(mime) {
			return true
		}
	}

	return false
}
