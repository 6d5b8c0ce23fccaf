package deps

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ralt/publishkit/internal/models"
	"gopkg.in/yaml.v3"
)

// File is the on-disk dependency list handed over by the build
type File struct {
	Dependencies []Entry `yaml:"dependencies"`
}

// Entry is one resolved dependency in a dependency list file
type Entry struct {
	Group    string   `yaml:"group"`
	Name     string   `yaml:"name"`
	Version  string   `yaml:"version"`
	Path     string   `yaml:"path"`
	Licenses []string `yaml:"licenses"`
}

// Load reads a dependency list. Relative artifact paths are resolved against
// the directory containing the list.
func Load(path string) ([]models.DependencyArtifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dependency list: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, models.NewError(models.ErrInvalidConfig, path, "parsing dependency list: %w", err)
	}

	base := filepath.Dir(path)
	result := make([]models.DependencyArtifact, 0, len(f.Dependencies))
	for i, e := range f.Dependencies {
		if strings.TrimSpace(e.Group) == "" || strings.TrimSpace(e.Name) == "" || strings.TrimSpace(e.Version) == "" {
			return nil, models.NewError(models.ErrInvalidConfig, path,
				"dependency %d needs group, name and version", i+1)
		}

		p := e.Path
		if p != "" && !filepath.IsAbs(p) {
			p = filepath.Join(base, p)
		}

		result = append(result, models.DependencyArtifact{
			Coordinates: models.Coordinates{
				Group:   strings.TrimSpace(e.Group),
				Name:    strings.TrimSpace(e.Name),
				Version: strings.TrimSpace(e.Version),
			},
			Path:     p,
			Licenses: e.Licenses,
		})
	}

	return result, nil
}
