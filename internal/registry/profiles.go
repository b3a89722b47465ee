package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	cerrors "companion/internal/errors"
	"companion/internal/logging"
)

// Profile is a named set of environment variables applied to a spawned
// agent. The name is the file stem of envs/<name>.json.
type Profile struct {
	Name        string
	Description string
	Vars        map[string]string
}

type profileFile struct {
	Description string            `json:"description"`
	Vars        map[string]string `json:"vars"`
}

// LoadProfiles reads every *.json file in dir. A missing directory yields no
// profiles; files that fail to parse are logged and skipped.
func LoadProfiles(dir string, logger logging.Logger) ([]Profile, error) {
	logger = logging.OrNop(logger)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, cerrors.Persistence("list env profiles", err)
	}

	var profiles []Profile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logger.Warn("Failed to read env profile %s: %v", name, err)
			continue
		}
		var file profileFile
		if err := json.Unmarshal(data, &file); err != nil {
			logger.Warn("Failed to parse env profile %s: %v", name, err)
			continue
		}
		if file.Vars == nil {
			file.Vars = map[string]string{}
		}
		profiles = append(profiles, Profile{
			Name:        strings.TrimSuffix(name, ".json"),
			Description: file.Description,
			Vars:        file.Vars,
		})
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })
	return profiles, nil
}

func (r *Registry) Profiles() []Profile { return r.profiles }

func (r *Registry) SetProfiles(profiles []Profile) { r.profiles = profiles }

// Profile looks up a profile by name.
func (r *Registry) Profile(name string) (Profile, bool) {
	for _, p := range r.profiles {
		if p.Name == name {
			return p, true
		}
	}
	return Profile{}, false
}

// ProfileVars returns the variables of a profile, or nil for an unknown or
// empty name.
func (r *Registry) ProfileVars(name string) map[string]string {
	if name == "" {
		return nil
	}
	p, ok := r.Profile(name)
	if !ok {
		return nil
	}
	return p.Vars
}
