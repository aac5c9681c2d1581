package process

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// BatchAll is the sentinel selecting every image in the input directory.
const BatchAll = "all"

var imageExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".webp": {},
}

// IsImageFile reports whether name carries a recognized image extension.
func IsImageFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	_, ok := imageExtensions[ext]
	return ok
}

// ResolveBatch expands a batch request into an ordered list of filenames.
// "all" lists the input directory filtered to recognized image extensions;
// a missing input directory is an empty batch, not an error. Any other
// value names a single file verbatim.
func ResolveBatch(inputDir, fileName string) ([]string, error) {
	name := strings.TrimSpace(fileName)
	if name == "" {
		return nil, fmt.Errorf("filename is required")
	}
	if name != BatchAll {
		return []string{name}, nil
	}

	entries, err := os.ReadDir(inputDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list input directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if IsImageFile(entry.Name()) {
			files = append(files, entry.Name())
		}
	}

	sort.Strings(files)
	return files, nil
}
