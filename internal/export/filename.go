package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// DefaultBase is used when nothing usable is left of a requested name.
const DefaultBase = "transcript"

// SanitizeBase reduces a user supplied name to a safe file stem.
func SanitizeBase(name string) string {
	name = norm.NFC.String(strings.TrimSpace(name))
	if ext := filepath.Ext(name); ext != "" {
		if _, err := ParseFormat(ext); err == nil {
			name = strings.TrimSuffix(name, ext)
		}
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == 0:
			b.WriteRune('_')
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
		}
	}

	out := b.String()
	for strings.Contains(out, "..") {
		out = strings.ReplaceAll(out, "..", ".")
	}
	out = strings.Trim(out, ". _")
	if out == "" {
		return DefaultBase
	}
	return out
}

// BaseFilename derives the output stem from the uploaded file names: the
// stem of a single upload, or combined_<a>_<b>... for several.
func BaseFilename(names []string) string {
	stems := make([]string, 0, len(names))
	for _, n := range names {
		stem := strings.TrimSuffix(filepath.Base(n), filepath.Ext(n))
		if stem == "" || stem == "." {
			continue
		}
		stems = append(stems, stem)
	}
	switch len(stems) {
	case 0:
		return DefaultBase
	case 1:
		return SanitizeBase(stems[0])
	}
	return SanitizeBase("combined_" + strings.Join(stems, "_"))
}

// UniqueFilename returns base.ext, or base_1.ext, base_2.ext... if taken.
func UniqueFilename(dir, base string, format Format) string {
	base = SanitizeBase(base)
	name := base + format.Ext()
	for i := 1; exists(filepath.Join(dir, name)); i++ {
		name = fmt.Sprintf("%s_%d%s", base, i, format.Ext())
	}
	return name
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
