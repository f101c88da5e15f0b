package pipeline

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxSlugLen = 48

// NewRunID returns a collision-free identifier that also reads well as a
// filename: UTC timestamp, title slug and a random suffix.
func NewRunID(now time.Time, title string) string {
	return now.UTC().Format("20060102-150405") + "_" + Slug(title) + "_" + uuid.NewString()[:8]
}

// Slug reduces title to lowercase ASCII letters, digits and single dashes.
func Slug(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
		if b.Len() >= maxSlugLen {
			break
		}
	}
	s := strings.Trim(b.String(), "-")
	if s == "" {
		return "video"
	}
	return s
}
