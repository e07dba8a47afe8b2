package engine

import (
	"os"
	"path/filepath"
)

func joinPath(cwd, relativePath string) string {
	if filepath.IsAbs(relativePath) {
		return relativePath
	}
	return filepath.Join(cwd, relativePath)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
