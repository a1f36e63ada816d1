package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yairfalse/kartta/pkg/resource"
)

func TestShouldScanKind_NoExclusions(t *testing.T) {
	f := New(nil, nil, nil)
	assert.True(t, f.ShouldScanKind(resource.KindEC2))
	assert.True(t, f.ShouldScanKind(resource.KindRDS))
}

func TestShouldScanKind_WithExclusions(t *testing.T) {
	f := New([]resource.Kind{resource.KindKMS, resource.KindCloudWatchLogs}, nil, nil)
	assert.True(t, f.ShouldScanKind(resource.KindEC2))
	assert.False(t, f.ShouldScanKind(resource.KindKMS))
	assert.False(t, f.ShouldScanKind(resource.KindCloudWatchLogs))
}

func TestKinds(t *testing.T) {
	f := New([]resource.Kind{resource.KindS3}, nil, nil)
	got := f.Kinds([]resource.Kind{resource.KindEC2, resource.KindS3, resource.KindRDS})
	assert.Equal(t, []resource.Kind{resource.KindEC2, resource.KindRDS}, got)
}

func TestNilFilter(t *testing.T) {
	var f *Filter
	assert.True(t, f.ShouldScanKind(resource.KindEC2))
	assert.True(t, f.ShouldIncludeRecord(resource.Record{ID: "x"}))
	assert.False(t, f.HasTagFilters())
	assert.Len(t, f.Kinds([]resource.Kind{resource.KindEC2}), 1)
}

func TestShouldIncludeRecord(t *testing.T) {
	tests := []struct {
		name    string
		include map[string]string
		exclude map[string]string
		labels  map[string]string
		want    bool
	}{
		{"no filters", nil, nil, map[string]string{"env": "prod"}, true},
		{"include match", map[string]string{"env": "prod"}, nil, map[string]string{"env": "prod", "team": "platform"}, true},
		{"include mismatch", map[string]string{"env": "prod"}, nil, map[string]string{"env": "staging"}, false},
		{"include all required", map[string]string{"env": "prod", "team": "platform"}, nil, map[string]string{"env": "prod"}, false},
		{"exclude match", nil, map[string]string{"do-not-scan": "true"}, map[string]string{"do-not-scan": "true"}, false},
		{"exclude no match", nil, map[string]string{"do-not-scan": "true"}, map[string]string{"env": "prod"}, true},
		{"exclude any", nil, map[string]string{"skip": "true", "ignore": "yes"}, map[string]string{"ignore": "yes"}, false},
		{"include and exclude", map[string]string{"env": "prod"}, map[string]string{"skip": "true"}, map[string]string{"env": "prod", "skip": "true"}, false},
		{"empty labels", map[string]string{"env": "prod"}, nil, map[string]string{}, false},
		{"nil labels", map[string]string{"env": "prod"}, nil, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(nil, tt.include, tt.exclude)
			r := resource.Record{ID: "i-123", Kind: resource.KindEC2, Labels: tt.labels}
			assert.Equal(t, tt.want, f.ShouldIncludeRecord(r))
		})
	}
}
