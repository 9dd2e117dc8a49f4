package profiles

import (
	"fmt"

	"github.com/season179/elastic-tools/internal/core"
)

// LoadFile registers the profiles defined in a YAML file alongside the
// built-in ones. A name clash with an existing profile is an error.
func LoadFile(path string) (int, error) {
	if path == "" {
		return 0, nil
	}

	defs, err := core.LoadProfilesFile(path)
	if err != nil {
		return 0, err
	}

	for _, p := range defs {
		if err := core.RegisterProfile(p); err != nil {
			return 0, fmt.Errorf("register %s from %s: %w", p.Name, path, err)
		}
	}
	return len(defs), nil
}
