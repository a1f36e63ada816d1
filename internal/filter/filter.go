// Package filter provides service and tag filtering for Kartta.
package filter

import (
	"github.com/yairfalse/kartta/pkg/resource"
)

// Filter controls which service kinds to scan and which records to include.
// A nil *Filter includes everything.
type Filter struct {
	excludeKinds map[resource.Kind]bool
	includeTags  map[string]string
	excludeTags  map[string]string
}

// New creates a new Filter from the provided configuration.
func New(excludeKinds []resource.Kind, includeTags, excludeTags map[string]string) *Filter {
	excludeMap := make(map[resource.Kind]bool)
	for _, k := range excludeKinds {
		excludeMap[k] = true
	}

	return &Filter{
		excludeKinds: excludeMap,
		includeTags:  includeTags,
		excludeTags:  excludeTags,
	}
}

// ShouldScanKind returns true if the given kind should be scanned.
func (f *Filter) ShouldScanKind(kind resource.Kind) bool {
	if f == nil {
		return true
	}
	return !f.excludeKinds[kind]
}

// Kinds returns kinds minus the excluded ones, preserving order.
func (f *Filter) Kinds(kinds []resource.Kind) []resource.Kind {
	out := make([]resource.Kind, 0, len(kinds))
	for _, k := range kinds {
		if f.ShouldScanKind(k) {
			out = append(out, k)
		}
	}
	return out
}

// ShouldIncludeRecord returns true if the record passes tag filters.
func (f *Filter) ShouldIncludeRecord(r resource.Record) bool {
	if f == nil {
		return true
	}

	// ALL include tags must match
	for k, v := range f.includeTags {
		if r.Labels == nil || r.Labels[k] != v {
			return false
		}
	}

	// ANY exclude tag excludes
	for k, v := range f.excludeTags {
		if r.Labels != nil && r.Labels[k] == v {
			return false
		}
	}

	return true
}

// HasTagFilters returns true if any include or exclude tag is set.
func (f *Filter) HasTagFilters() bool {
	return f != nil && (len(f.includeTags) > 0 || len(f.excludeTags) > 0)
}
