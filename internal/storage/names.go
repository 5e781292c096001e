package storage

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// SanitizeName turns a client-supplied file name into a safe ASCII base name.
// Accented letters are folded to their base letter, path components are
// dropped and anything outside [A-Za-z0-9._-] becomes an underscore.
// The result is "file" when nothing usable remains.
func SanitizeName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = filepath.Base(name)
	name = norm.NFKD.String(name)

	var b strings.Builder
	lastUnderscore := false
	for _, r := range name {
		switch {
		case r > 0x7f:
			// combining marks left over from NFKD
			continue
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}

	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "file"
	}
	return out
}

// ReplaceExt returns name with its extension replaced by ext (including the dot).
func ReplaceExt(name, ext string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + ext
}
