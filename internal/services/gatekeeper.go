package services

import (
	"path/filepath"
	"strings"

	"github.com/coursehub/asset-service/internal/models"
	"github.com/coursehub/asset-service/internal/sniff"
)

// allowedCategories is the compatibility matrix between asset purposes
// and sniffed content categories. Kept as an explicit table rather than
// nested conditionals so the allowlist stays auditable.
var allowedCategories = map[models.AssetPurpose][]models.ContentCategory{
	models.PurposeCourseCover:      {models.CategoryImage},
	models.PurposeCourseIntroVideo: {models.CategoryVideo},
	models.PurposeLessonVideo:      {models.CategoryVideo},
	models.PurposeLessonMaterial:   {models.CategoryDocument},
}

// safeTextExtensions is the narrow carve-out for document-ish uploads
// with no reliable byte signature (plain text). It applies only to
// purposes that accept the Document category and must never be widened
// without review; in particular it never applies to image or video
// purposes, whose formats always carry detectable signatures.
var safeTextExtensions = map[string]string{
	".txt": "text/plain",
	".md":  "text/markdown",
}

// blockedExtensions are extensions that are never plausible for any
// accepted category, regardless of what the bytes sniffed as.
var blockedExtensions = map[string]bool{
	".exe": true,
	".dll": true,
	".msi": true,
	".bat": true,
	".cmd": true,
	".com": true,
	".scr": true,
	".sh":  true,
	".js":  true,
	".jar": true,
}

// validateUpload applies the gatekeeper decision table: the sniffed
// category must be allowed for the purpose, and the declared filename
// extension must not be a known-dangerous one. Unknown content is
// accepted only for Document purposes with a safe-text extension.
//
// Returns the canonical content type and extension to store under, or
// ErrInvalidFileType. It has no side effects; no bytes are persisted
// here.
func validateUpload(purpose models.AssetPurpose, filename string, res sniff.Result) (contentType, ext string, err error) {
	if res.Category == models.CategoryDisallowed {
		return "", "", ErrInvalidFileType
	}

	declaredExt := strings.ToLower(filepath.Ext(filename))
	if blockedExtensions[declaredExt] {
		return "", "", ErrInvalidFileType
	}

	if res.Category == models.CategoryUnknown {
		if !categoryAllowed(purpose, models.CategoryDocument) {
			return "", "", ErrInvalidFileType
		}
		mime, ok := safeTextExtensions[declaredExt]
		if !ok {
			return "", "", ErrInvalidFileType
		}
		return mime, declaredExt, nil
	}

	if !categoryAllowed(purpose, res.Category) {
		return "", "", ErrInvalidFileType
	}

	// The stored extension comes from the sniffed signature, not from
	// the client filename, so an extension/content mismatch never
	// reaches disk.
	return res.MIME, res.Ext, nil
}

func categoryAllowed(purpose models.AssetPurpose, category models.ContentCategory) bool {
	for _, c := range allowedCategories[purpose] {
		if c == category {
			return true
		}
	}
	return false
}
