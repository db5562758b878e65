package store

import (
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	// DefaultContentType is reported when neither the name nor the content
	// identify the asset.
	DefaultContentType = "application/octet-stream"

	// DefaultPreviewBytes is how much of a text asset a preview covers.
	DefaultPreviewBytes = 4096

	previewTextType = "text/plain; charset=utf-8"
)

// ContentType derives an asset's content type.
//
// The extension of name wins. When it is unknown and head (the first bytes
// of content, may be nil) is available, the type is sniffed from the
// content.
func ContentType(name string, head []byte) string {
	if ext := path.Ext(name); ext != "" {
		if ct := mime.TypeByExtension(strings.ToLower(ext)); ct != "" {
			return ct
		}
	}
	if len(head) > 0 {
		return mimetype.Detect(head).String()
	}
	return DefaultContentType
}

// Rendition is a derived view of an asset's content.
type Rendition int

const (
	RenditionThumbnail Rendition = iota
	RenditionPreview
)

func (r Rendition) String() string {
	if r == RenditionThumbnail {
		return "thumbnail"
	}
	return "preview"
}

// RenditionFor decides how a backend serves a rendition of asset.
//
// It returns the content type of the rendition and how many leading content
// bytes it covers (-1 means the whole content). Images are served verbatim
// for both renditions; text-like assets get a truncated plain-text preview.
// Anything else has no rendition and yields ErrNotSupported.
//
// previewBytes <= 0 selects DefaultPreviewBytes.
func RenditionFor(kind Rendition, asset *Info, previewBytes int) (string, int64, error) {
	base := asset.ContentType
	if i := strings.IndexByte(base, ';'); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}

	if strings.HasPrefix(base, "image/") {
		return asset.ContentType, -1, nil
	}

	if kind == RenditionPreview && isTextual(base) {
		if previewBytes <= 0 {
			previewBytes = DefaultPreviewBytes
		}
		return previewTextType, int64(previewBytes), nil
	}

	return "", 0, fmt.Errorf("%s of %s (%s): %w", kind, asset.Path, asset.ContentType, ErrNotSupported)
}

func isTextual(contentType string) bool {
	if strings.HasPrefix(contentType, "text/") {
		return true
	}
	switch contentType {
	case "application/json", "application/xml", "application/javascript", "application/x-yaml", "application/yaml":
		return true
	}
	return strings.HasSuffix(contentType, "+json") || strings.HasSuffix(contentType, "+xml")
}
