// Package scan builds target matrices and runs concurrent scan passes.
package scan

import (
	"slices"
	"strings"

	"github.com/yairfalse/kartta/pkg/resource"
)

// Selector narrows a matrix. Empty fields match everything.
type Selector struct {
	Region string
	Kind   resource.Kind
}

// IsEmpty returns true if the selector matches the full matrix.
func (s Selector) IsEmpty() bool {
	return s.Region == "" && s.Kind == ""
}

// Matches reports whether t is selected.
func (s Selector) Matches(t resource.Target) bool {
	return (s.Region == "" || s.Region == t.Region) && (s.Kind == "" || s.Kind == t.Kind)
}

func (s Selector) String() string {
	region, kind := s.Region, string(s.Kind)
	if region == "" {
		region = "*"
	}
	if kind == "" {
		kind = "*"
	}
	return region + "/" + kind
}

// BuildMatrix returns the deduplicated cross product of regions and kinds,
// narrowed by sel and sorted by (region, kind).
func BuildMatrix(regions []string, kinds []resource.Kind, sel Selector) ([]resource.Target, error) {
	if len(regions) == 0 {
		return nil, resource.Configurationf("matrix: at least one region required")
	}
	if len(kinds) == 0 {
		return nil, resource.Configurationf("matrix: at least one service required")
	}

	seen := make(map[resource.Target]struct{}, len(regions)*len(kinds))
	targets := make([]resource.Target, 0, len(regions)*len(kinds))
	for _, region := range regions {
		if strings.TrimSpace(region) == "" {
			return nil, resource.Configurationf("matrix: empty region")
		}
		for _, kind := range kinds {
			if kind == "" {
				return nil, resource.Configurationf("matrix: empty service")
			}
			t := resource.Target{Region: region, Kind: kind}
			if !sel.Matches(t) {
				continue
			}
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			targets = append(targets, t)
		}
	}

	if len(targets) == 0 {
		return nil, resource.Configurationf("matrix: selector %s matches no configured target", sel)
	}

	slices.SortFunc(targets, func(a, b resource.Target) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		default:
			return 0
		}
	})
	return targets, nil
}
