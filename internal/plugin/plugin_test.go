package plugin

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/kartta/pkg/resource"
)

// mockAdapter implements Adapter for testing.
type mockAdapter struct {
	kind    resource.Kind
	records []resource.Record
	err     error
}

func (m *mockAdapter) Kind() resource.Kind {
	return m.kind
}

func (m *mockAdapter) List(_ context.Context, _ string) iter.Seq2[resource.Record, error] {
	return Slice(m.records, m.err)
}

func TestRegister(t *testing.T) {
	r := NewRegistry()
	r.Register(&mockAdapter{kind: resource.KindEC2})

	got, ok := r.Get(resource.KindEC2)
	require.True(t, ok)
	assert.Equal(t, resource.KindEC2, got.Kind())
}

func TestRegister_Replaces(t *testing.T) {
	first := &mockAdapter{kind: resource.KindS3}
	second := &mockAdapter{kind: resource.KindS3}
	r := NewRegistry(first, second)

	got, ok := r.Get(resource.KindS3)
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Equal(t, 1, r.Len())
}

func TestGet_NotFound(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Get(resource.KindRDS)
	assert.False(t, ok)
}

func TestAll_Sorted(t *testing.T) {
	r := NewRegistry(&mockAdapter{kind: resource.KindS3}, &mockAdapter{kind: resource.KindEC2})

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, resource.KindEC2, all[0].Kind())
	assert.Equal(t, resource.KindS3, all[1].Kind())
}

func TestKinds(t *testing.T) {
	r := NewRegistry(&mockAdapter{kind: resource.KindRDS}, &mockAdapter{kind: resource.KindEC2})
	assert.Equal(t, []resource.Kind{resource.KindEC2, resource.KindRDS}, r.Kinds())
}

func TestClear(t *testing.T) {
	r := NewRegistry(&mockAdapter{kind: resource.KindEC2})
	r.Clear()
	assert.Empty(t, r.Kinds())
}

func TestSlice_YieldsErrorLast(t *testing.T) {
	boom := errors.New("boom")
	seq := Slice([]resource.Record{{ID: "a"}, {ID: "b"}}, boom)

	var ids []string
	var gotErr error
	for rec, err := range seq {
		if err != nil {
			gotErr = err
			break
		}
		ids = append(ids, rec.ID)
	}

	assert.Equal(t, []string{"a", "b"}, ids)
	assert.ErrorIs(t, gotErr, boom)
}

func TestSlice_StopsEarly(t *testing.T) {
	seq := Slice([]resource.Record{{ID: "a"}, {ID: "b"}}, nil)
	count := 0
	for range seq {
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestFunc(t *testing.T) {
	f := Func{K: resource.KindSQS, Fn: func(_ context.Context, region string) iter.Seq2[resource.Record, error] {
		return Slice([]resource.Record{{ID: "q", Region: region}}, nil)
	}}

	assert.Equal(t, resource.KindSQS, f.Kind())
	for rec, err := range f.List(context.Background(), "eu-north-1") {
		require.NoError(t, err)
		assert.Equal(t, "eu-north-1", rec.Region)
	}
}
