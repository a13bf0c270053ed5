// Package sniff classifies uploaded byte streams by their leading bytes.
// Classification never trusts the client-declared filename or MIME type.
package sniff

import (
	"github.com/coursehub/asset-service/internal/models"
)

// HeaderSize is the number of leading bytes needed to match every
// signature in the table. Callers should read at most this many bytes.
const HeaderSize = 32

// Result describes the outcome of sniffing a byte prefix.
// MIME and Ext are the canonical content type and file extension for the
// matched signature; both are empty when the content is Unknown or
// Disallowed.
type Result struct {
	Category models.ContentCategory
	MIME     string
	Ext      string
}

// part is a byte pattern expected at a fixed offset within the header.
type part struct {
	offset  int
	pattern []byte
}

// signature is a file-format signature. All parts must match.
type signature struct {
	parts    []part
	category models.ContentCategory
	mime     string
	ext      string
}

// signatures is ordered: more specific signatures come before shorter or
// overlapping ones, so the first match wins.
var signatures = []signature{
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	{
		parts:    []part{{0, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}}},
		category: models.CategoryImage,
		mime:     "image/png",
		ext:      ".png",
	},
	// WebP: RIFF container with WEBP fourcc
	{
		parts:    []part{{0, []byte("RIFF")}, {8, []byte("WEBP")}},
		category: models.CategoryImage,
		mime:     "image/webp",
		ext:      ".webp",
	},
	// GIF87a / GIF89a
	{
		parts:    []part{{0, []byte("GIF87a")}},
		category: models.CategoryImage,
		mime:     "image/gif",
		ext:      ".gif",
	},
	{
		parts:    []part{{0, []byte("GIF89a")}},
		category: models.CategoryImage,
		mime:     "image/gif",
		ext:      ".gif",
	},
	// JPEG: FF D8 FF
	{
		parts:    []part{{0, []byte{0xFF, 0xD8, 0xFF}}},
		category: models.CategoryImage,
		mime:     "image/jpeg",
		ext:      ".jpg",
	},
	// ISO-BMFF (MP4 family): box size followed by "ftyp"
	{
		parts:    []part{{4, []byte("ftyp")}},
		category: models.CategoryVideo,
		mime:     "video/mp4",
		ext:      ".mp4",
	},
	// WebM / Matroska: EBML header
	{
		parts:    []part{{0, []byte{0x1A, 0x45, 0xDF, 0xA3}}},
		category: models.CategoryVideo,
		mime:     "video/webm",
		ext:      ".webm",
	},
	// PDF: %PDF
	{
		parts:    []part{{0, []byte{0x25, 0x50, 0x44, 0x46}}},
		category: models.CategoryDocument,
		mime:     "application/pdf",
		ext:      ".pdf",
	},
	// ELF executable: 7F 45 4C 46
	{
		parts:    []part{{0, []byte{0x7F, 0x45, 0x4C, 0x46}}},
		category: models.CategoryDisallowed,
	},
	// Windows PE executable: MZ
	{
		parts:    []part{{0, []byte{0x4D, 0x5A}}},
		category: models.CategoryDisallowed,
	},
}

// Detect classifies a byte prefix against the signature table.
// The prefix may be shorter than HeaderSize; signatures that do not fit
// simply cannot match. No match yields CategoryUnknown, which is not an
// automatic rejection: the gatekeeper decides what Unknown means for a
// given purpose.
func Detect(prefix []byte) Result {
	for _, sig := range signatures {
		if sig.matches(prefix) {
			return Result{Category: sig.category, MIME: sig.mime, Ext: sig.ext}
		}
	}
	return Result{Category: models.CategoryUnknown}
}

func (s signature) matches(data []byte) bool {
	for _, p := range s.parts {
		end := p.offset + len(p.pattern)
		if len(data) < end {
			return false
		}
		for i, b := range p.pattern {
			if data[p.offset+i] != b {
				return false
			}
		}
	}
	return true
}
