// Package projects loads monitoring project descriptors from a YAML file
// with environment overrides.
package projects

import (
	"context"
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/crowdsense/streamd/internal/domain"
)

// envPrefix scopes the environment overrides, e.g.
// STREAMD_PROJECTS_FILE_DISABLED=true.
const envPrefix = "STREAMD_"

// FileSource reads project descriptors from a YAML file. The file is
// re-read on every call so edits take effect without a restart.
type FileSource struct {
	path string
}

// NewFileSource creates a source over the given YAML file.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Projects loads and validates the current descriptor list.
func (s *FileSource) Projects(_ context.Context) ([]domain.ProjectDescriptor, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(s.path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load projects file %s: %w", s.path, err)
	}

	envProvider := env.Provider(envPrefix, ".", func(key string) string {
		return strings.ToLower(strings.TrimPrefix(key, envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}

	var out struct {
		Projects []domain.ProjectDescriptor `koanf:"projects"`
	}
	if err := k.UnmarshalWithConf("", &out, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to parse projects file %s: %w", s.path, err)
	}

	seen := map[string]bool{}
	for i := range out.Projects {
		p := &out.Projects[i]
		if p.Slug == "" {
			return nil, fmt.Errorf("project %d has no slug", i)
		}
		if seen[p.Slug] {
			return nil, fmt.Errorf("duplicate project slug %q", p.Slug)
		}
		seen[p.Slug] = true
		if p.IndexName == "" {
			p.IndexName = "project_" + p.Slug
		}
	}
	return out.Projects, nil
}
