package permission

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/storeguard/internal/core/domain"
)

type matrixFile struct {
	Version int                            `yaml:"version"`
	Roles   map[string]map[string][]string `yaml:"roles"`
}

// LoadMatrix reads a versioned YAML matrix:
//
//	version: 2
//	roles:
//	  user:
//	    ratings: [create, read, update]
func LoadMatrix(path string) (*Matrix, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read permission matrix: %w", err)
	}
	return ParseMatrix(data)
}

// ParseMatrix parses the YAML form of a matrix.
func ParseMatrix(data []byte) (*Matrix, error) {
	var f matrixFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse permission matrix: %w", err)
	}
	if f.Version <= 0 {
		return nil, fmt.Errorf("permission matrix: version must be positive, got %d", f.Version)
	}
	if len(f.Roles) == 0 {
		return nil, fmt.Errorf("permission matrix: no roles defined")
	}

	grants := make(Grants, len(f.Roles))
	for role, resources := range f.Roles {
		byResource := make(map[domain.Resource][]domain.Action, len(resources))
		for resource, actions := range resources {
			list := make([]domain.Action, len(actions))
			for i, a := range actions {
				list[i] = domain.Action(a)
			}
			byResource[domain.Resource(resource)] = list
		}
		grants[domain.Role(role)] = byResource
	}
	return NewMatrix(f.Version, grants)
}
