package catalog

import (
	"strings"
)

// Entry is one downloadable item from the scraped listing.
type Entry struct {
	// Title as it appears in the listing, usually with a .zip extension.
	Title string
	// SourceURL is the absolute download URL.
	SourceURL string
	// DeclaredSize in bytes as advertised by the listing, 0 when unknown.
	DeclaredSize int64
}

// CleanTitle returns the title without the archive extension.
func (e Entry) CleanTitle() string {
	return strings.TrimSuffix(e.Title, ".zip")
}

// OutputISOName derives the decrypted output filename as
// <region>-<name>.iso from the cleaned title.
func (e Entry) OutputISOName() string {
	clean := e.CleanTitle()

	// The leading region code ends at the first space or dash.
	var region, rest string
	if idx := strings.IndexAny(clean, " -"); idx >= 0 {
		region, rest = clean[:idx], clean[idx+1:]
	}

	// Main name runs up to the first parenthesised tag.
	name, _, _ := strings.Cut(rest, "(")
	name = sanitizeName(name)
	region = sanitizeName(region)

	if region == "" || name == "" {
		return sanitizeName(clean) + ".iso"
	}

	return region + "-" + name + ".iso"
}

func sanitizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	var b strings.Builder

	lastUnderscore := false

	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)

			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
			}

			lastUnderscore = true
		}
	}

	return strings.Trim(b.String(), "_")
}
