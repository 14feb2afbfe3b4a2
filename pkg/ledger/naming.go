package ledger

import (
	"mime"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// allowedExtensions is the set of image file extensions we will write.
var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
	".tiff": true,
	".tif":  true,
}

var (
	unsafeChars    = regexp.MustCompile(`[^\w.\-]+`)
	nonSlugChars   = regexp.MustCompile(`[^\w\s-]`)
	slugSeparators = regexp.MustCompile(`[\s-]+`)
)

// SanitizeFilename collapses disallowed filename characters so downloads are
// filesystem safe.
func SanitizeFilename(candidate string) string {
	collapsed := unsafeChars.ReplaceAllString(strings.TrimSpace(candidate), "_")
	if collapsed == "" {
		return "image"
	}
	if len(collapsed) > 255 {
		collapsed = collapsed[:255]
	}
	return collapsed
}

// Slugify returns a directory-friendly slug derived from a search query.
func Slugify(value string) string {
	cleaned := nonSlugChars.ReplaceAllString(strings.ToLower(value), "")
	cleaned = strings.Trim(slugSeparators.ReplaceAllString(cleaned, "-"), "-")
	if cleaned == "" {
		return "query"
	}
	return cleaned
}

// contentTypeExtensions maps image media types to a preferred extension.
var contentTypeExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/bmp":  ".bmp",
	"image/webp": ".webp",
	"image/tiff": ".tiff",
}

// BestExtension chooses an image file extension from several hints: the
// suggested filename, the source URL path, and the response content type.
// Falls back to ".jpg" when nothing usable is found.
func BestExtension(originalName, fallbackURL, contentType string) string {
	var candidates []string

	for _, source := range []string{originalName, fallbackURL} {
		if source == "" {
			continue
		}
		if ext := extFromPath(source); ext != "" {
			candidates = append(candidates, ext)
		}
	}

	if contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err == nil {
			if ext, ok := contentTypeExtensions[mediaType]; ok {
				candidates = append(candidates, ext)
			}
		}
	}

	for _, ext := range candidates {
		if ext == ".jpe" {
			ext = ".jpg"
		}
		if allowedExtensions[ext] {
			return ext
		}
	}

	return ".jpg"
}

// extFromPath extracts a lowercase extension from a URL or bare filename.
func extFromPath(source string) string {
	p := source
	if u, err := url.Parse(source); err == nil && u.Path != "" {
		p = u.Path
	}
	return strings.ToLower(path.Ext(p))
}
