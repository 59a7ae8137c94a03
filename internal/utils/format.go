package utils

import (
	"fmt"
	"mime"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const maxURLLength = 2048

// FormatBytes renders a byte count as a short human-readable size.
func FormatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

// FormatSpeed renders a transfer rate.
func FormatSpeed(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return "0 B/s"
	}
	return humanize.IBytes(uint64(bytesPerSec)) + "/s"
}

// FormatDuration renders a duration the way chat messages show it (1h 02m).
func FormatDuration(d time.Duration) string {
	secs := int64(d.Seconds())
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm %02ds", secs/60, secs%60)
	default:
		return fmt.Sprintf("%dh %02dm", secs/3600, (secs%3600)/60)
	}
}

// ValidateURL checks the invariants a source URL must satisfy before it is
// handed to the resolver: absolute http/https, no control or markup
// characters, bounded length.
func ValidateURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("empty URL")
	}
	if len(raw) > maxURLLength {
		return fmt.Errorf("URL longer than %d characters", maxURLLength)
	}
	for _, c := range raw {
		if c < 0x20 || c == 0x7f {
			return fmt.Errorf("URL contains control characters")
		}
	}
	if strings.ContainsAny(raw, `<>"'`) {
		return fmt.Errorf("URL contains unsafe characters")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL has no host")
	}
	return nil
}

// SanitizeFileName makes a name safe for the staging directory and the
// hosting backend: unsafe and control characters replaced, reserved names
// prefixed, length capped, never empty.
func SanitizeFileName(name string) string {
	var b strings.Builder
	for _, c := range name {
		switch {
		case c < 0x20 || c == 0x7f:
			// drop control characters
		case strings.ContainsRune(`<>:"/\|?*`, c):
			b.WriteByte('_')
		default:
			b.WriteRune(c)
		}
	}
	name = strings.Trim(b.String(), " .")

	lower := strings.ToLower(name)
	if lower == "con" || lower == "prn" || lower == "aux" || lower == "nul" ||
		strings.HasPrefix(lower, "com") || strings.HasPrefix(lower, "lpt") {
		name = "file_" + name
	}

	if len(name) > 240 {
		ext := filepath.Ext(name)
		name = name[:240-len(ext)] + ext
	}
	if name == "" {
		name = fmt.Sprintf("file_%d", time.Now().Unix())
	}
	return name
}

// FileNameFromURL pulls a usable filename out of a URL path, generating a
// timestamped fallback when the path has none.
func FileNameFromURL(raw string) string {
	if u, err := url.Parse(raw); err == nil {
		base := path.Base(u.Path)
		if base != "" && base != "/" && base != "." && strings.Contains(base, ".") {
			return SanitizeFileName(base)
		}
	}
	return fmt.Sprintf("download_%d", time.Now().Unix())
}

// FileNameFromDisposition parses a Content-Disposition header, falling back
// to the URL when the header is absent or unusable.
func FileNameFromDisposition(disposition, rawURL string) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			if name := params["filename"]; name != "" {
				return SanitizeFileName(name)
			}
		}
	}
	return FileNameFromURL(rawURL)
}
