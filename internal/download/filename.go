package download

import (
	"path/filepath"
	"strings"
	"unicode"
)

const (
	maxStemRunes = 64
	fallbackStem = "track"
)

// SafeName reduces a user query to a file name stem containing only letters,
// digits, single spaces, dashes and underscores.
func SafeName(query string) string {
	var b strings.Builder
	pendingSpace := false
	n := 0
	for _, r := range query {
		if n >= maxStemRunes {
			break
		}
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_':
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
				n++
			}
			pendingSpace = false
			b.WriteRune(r)
			n++
		case unicode.IsSpace(r) || r == '.' || r == ',' || r == '/' || r == '\\':
			pendingSpace = true
		}
	}
	name := strings.TrimSpace(b.String())
	if name == "" {
		return fallbackStem
	}
	return name
}

// jobStem makes the on-disk stem unique per job.
func jobStem(query, jobID string) string {
	short := jobID
	if len(short) > 8 {
		short = short[:8]
	}
	return SafeName(query) + "-" + short
}

func replaceExt(path, ext string) string {
	if path == "" {
		return ""
	}
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

var partialExts = map[string]struct{}{
	".part": {},
	".ytdl": {},
	".temp": {},
	".tmp":  {},
}

func isPartial(path string) bool {
	_, ok := partialExts[strings.ToLower(filepath.Ext(path))]
	return ok
}
