package file

import (
	"fmt"
	"path/filepath"
	"strings"
)

func ReplaceExt(path, ext string) string {
	if path == "" {
		return path
	}

	dir := filepath.Dir(path)
	filename := filepath.Base(path)

	lastDot := strings.LastIndex(filename, ".")

	if lastDot <= 0 {
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		return filepath.Join(dir, filename+ext)
	}

	nameWithoutExt := filename[:lastDot]

	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	return filepath.Join(dir, nameWithoutExt+ext)
}

// BaseName returns the file name without directory and extension.
// e.g. "/data/captions.xlsx" -> "captions"
func BaseName(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// OutputPath derives the translated-output path for an input file,
// inserting the lowercased language code before the extension.
// e.g. ("captions.xlsx", "EN") -> "captions.en.xlsx"
func OutputPath(inputPath, langCode string) string {
	ext := filepath.Ext(inputPath)
	base := strings.TrimSuffix(inputPath, ext)
	return fmt.Sprintf("%s.%s%s", base, strings.ToLower(langCode), ext)
}

// IsOutputFor reports whether candidate is the derived output of inputPath
// for the given language code.
func IsOutputFor(candidate, inputPath, langCode string) bool {
	return filepath.Clean(candidate) == filepath.Clean(OutputPath(inputPath, langCode))
}
