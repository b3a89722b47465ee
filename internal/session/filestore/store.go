package filestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	cerrors "companion/internal/errors"
	"companion/internal/logging"
	"companion/internal/session"
)

// Store keeps one JSON document per session in a directory.
type Store struct {
	baseDir string
	logger  logging.Logger
}

// New returns a store rooted at baseDir, creating it if needed. A leading
// "~/" is expanded to the user's home directory.
func New(baseDir string) (*Store, error) {
	if strings.HasPrefix(baseDir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, cerrors.Persistence("resolve home", err)
		}
		baseDir = filepath.Join(home, baseDir[2:])
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, cerrors.Persistence("create sessions dir", err)
	}
	return &Store{
		baseDir: baseDir,
		logger:  logging.NewComponentLogger("SessionFileStore"),
	}, nil
}

func (s *Store) Dir() string { return s.baseDir }

func (s *Store) path(id string) string {
	return filepath.Join(s.baseDir, fmt.Sprintf("%s.json", id))
}

// Save writes the session atomically: a partially written file is never
// left under the final name.
func (s *Store) Save(p session.Persisted) error {
	if p.ID == "" {
		return cerrors.Persistence("save session", fmt.Errorf("missing session id"))
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return cerrors.Persistence("encode session "+p.ID, err)
	}

	tmp, err := os.CreateTemp(s.baseDir, "."+p.ID+".*.tmp")
	if err != nil {
		return cerrors.Persistence("save session "+p.ID, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return cerrors.Persistence("write session "+p.ID, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return cerrors.Persistence("write session "+p.ID, err)
	}
	if err := os.Rename(tmpName, s.path(p.ID)); err != nil {
		_ = os.Remove(tmpName)
		return cerrors.Persistence("save session "+p.ID, err)
	}
	return nil
}

// Load reads a single session.
func (s *Store) Load(id string) (session.Persisted, error) {
	var p session.Persisted
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return p, cerrors.Persistence("load session "+id, err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, cerrors.Persistence("decode session "+id, err)
	}
	return p, nil
}

// LoadAll returns every readable session ordered by creation time. Files
// that cannot be read or decoded are logged and skipped.
func (s *Store) LoadAll() ([]session.Persisted, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, cerrors.Persistence("list sessions", err)
	}

	var out []session.Persisted
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		full := filepath.Join(s.baseDir, name)
		data, readErr := os.ReadFile(full)
		if readErr != nil {
			s.logger.Error("Failed to read session file %s: %v", name, readErr)
			continue
		}
		var p session.Persisted
		if jsonErr := json.Unmarshal(data, &p); jsonErr != nil {
			s.logger.Error("Failed to decode session file %s: %v. Preview: %s", name, jsonErr, previewJSON(data))
			continue
		}
		if p.ID == "" {
			p.ID = strings.TrimSuffix(name, ".json")
		}
		out = append(out, p)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Delete removes the session file. A missing file is not an error.
func (s *Store) Delete(id string) error {
	err := os.Remove(s.path(id))
	if err != nil && !os.IsNotExist(err) {
		return cerrors.Persistence("delete session "+id, err)
	}
	return nil
}

func previewJSON(data []byte) string {
	const maxPreview = 200
	preview := strings.TrimSpace(string(data))
	preview = strings.ReplaceAll(preview, "\n", " ")
	preview = strings.ReplaceAll(preview, "\t", " ")
	if len(preview) > maxPreview {
		preview = preview[:maxPreview] + "... (truncated)"
	}
	return preview
}
