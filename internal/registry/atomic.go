package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// writeFileAtomic writes data to path via a temp file in the same directory
// followed by a rename, creating parent directories as needed.  Readers never
// observe a partially written file.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating parent directory for %s: %w", path, err)
	}
	return renameio.WriteFile(path, data, 0600)
}

// writeJSONAtomic marshals v with indentation and writes it atomically
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling %s: %w", path, err)
	}
	return writeFileAtomic(path, data)
}
