package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"

	"github.com/fumetsu/hibiki/internal/domain"
	"github.com/fumetsu/hibiki/internal/log"
)

// AuthRecord is the persisted credential for one catalog api
type AuthRecord struct {
	UserProfile *domain.UserProfile `json:"user_profile,omitempty"`
	Token       string              `json:"token"`
	ExpiresAt   int64               `json:"expires_at,omitempty"`
}

// AuthStore persists catalog credentials as one JSON file per api under the
// auth directory.  Writes are atomic.  Tokens never appear in logs.
type AuthStore struct {
	dir string
}

// NewAuthStore creates a store rooted at dir
func NewAuthStore(dir string) *AuthStore {
	return &AuthStore{dir: dir}
}

func (s *AuthStore) path(api string) string {
	return filepath.Join(s.dir, api+".json")
}

// Load returns the stored record for an api, or nil when absent
func (s *AuthStore) Load(api string) *AuthRecord {
	data, err := os.ReadFile(s.path(api))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		log.Error("Failed to read auth record", "api", api, "error", err)
		return nil
	}

	record := &AuthRecord{}
	if err := json.Unmarshal(data, record); err != nil {
		log.Error("Failed to parse auth record", "api", api, "error", err)
		return nil
	}
	return record
}

// Save persists a record atomically
func (s *AuthStore) Save(api string, record *AuthRecord) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("creating auth directory: %w", err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling auth record: %w", err)
	}
	return renameio.WriteFile(s.path(api), data, 0600)
}

// Clear removes any stored credential for an api
func (s *AuthStore) Clear(api string) {
	if err := os.Remove(s.path(api)); err != nil && !os.IsNotExist(err) {
		log.Error("Failed to clear auth record", "api", api, "error", err)
	}
}
