package resource

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"ec2", KindEC2, false},
		{" S3 ", KindS3, false},
		{"cloudwatch_logs", KindCloudWatchLogs, false},
		{"mainframe", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKind(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrConfiguration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseKinds_StopsOnUnknown(t *testing.T) {
	_, err := ParseKinds([]string{"ec2", "nope"})
	assert.ErrorIs(t, err, ErrConfiguration)

	kinds, err := ParseKinds([]string{"ec2", "rds"})
	require.NoError(t, err)
	assert.Equal(t, []Kind{KindEC2, KindRDS}, kinds)
}

func TestAllKinds_ReturnsCopy(t *testing.T) {
	kinds := AllKinds()
	kinds[0] = "mutated"
	assert.Equal(t, KindEC2, AllKinds()[0])
}

func TestTarget_String(t *testing.T) {
	assert.Equal(t, "us-east-1/ec2", Target{Region: "us-east-1", Kind: KindEC2}.String())
}

func TestRecord_Less(t *testing.T) {
	a := Record{Region: "eu-west-1", Kind: KindS3, ID: "z"}
	b := Record{Region: "us-east-1", Kind: KindEC2, ID: "a"}
	c := Record{Region: "us-east-1", Kind: KindEC2, ID: "b"}

	assert.True(t, a.Less(b))
	assert.True(t, b.Less(c))
	assert.False(t, c.Less(b))
	assert.False(t, b.Less(b))
}

func TestRecord_Clone(t *testing.T) {
	r := Record{
		ID:     "i-1",
		Labels: map[string]string{"env": "prod"},
		Attrs:  map[string]string{"az": "us-east-1a"},
	}
	c := r.Clone()
	c.Labels["env"] = "dev"
	c.Attrs["az"] = "us-east-1b"

	assert.Equal(t, "prod", r.Labels["env"])
	assert.Equal(t, "us-east-1a", r.Attrs["az"])
}

func TestRecord_CloneNilMaps(t *testing.T) {
	c := Record{ID: "x"}.Clone()
	assert.Nil(t, c.Labels)
	assert.Nil(t, c.Attrs)
}

// ═══════════════════════════════════════════════════════════════════════════
// Errors
// ═══════════════════════════════════════════════════════════════════════════

func TestError_IsMatchesKind(t *testing.T) {
	err := NewError(ErrKindThrottled, "describe instances", errors.New("slow down"))

	assert.ErrorIs(t, err, ErrThrottled)
	assert.NotErrorIs(t, err, ErrAuth)

	wrapped := fmt.Errorf("scan: %w", err)
	assert.ErrorIs(t, wrapped, ErrThrottled)
}

func TestError_Message(t *testing.T) {
	target := Target{Region: "us-east-1", Kind: KindEC2}
	err := NewError(ErrKindAuth, "describe instances", errors.New("denied")).WithTarget(target)

	assert.Equal(t, "describe instances: auth: denied", err.Message())
	assert.Equal(t, "us-east-1/ec2: describe instances: auth: denied", err.Error())
}

func TestError_UnwrapsCause(t *testing.T) {
	cause := errors.New("boom")
	err := NewError(ErrKindInternal, "", cause)
	assert.ErrorIs(t, err, cause)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, ErrKindAuth, KindOf(fmt.Errorf("x: %w", NewError(ErrKindAuth, "", nil))))
	assert.Equal(t, ErrKindTimeout, KindOf(context.DeadlineExceeded))
	assert.Equal(t, ErrKindThrottled, KindOf(fmt.Errorf("describe: %w", ErrThrottled)))
	assert.Equal(t, ErrKindRegionUnavailable, AsError(fmt.Errorf("x: %w", ErrRegionUnavailable)).Kind)
	assert.Equal(t, ErrKindInternal, KindOf(errors.New("mystery")))
}

func TestAsError_KeepsClassification(t *testing.T) {
	orig := NewError(ErrKindMalformedResponse, "decode", nil)
	assert.Same(t, orig, AsError(fmt.Errorf("wrap: %w", orig)))

	e := AsError(errors.New("mystery"))
	assert.Equal(t, ErrKindInternal, e.Kind)
}

func TestFailureOf(t *testing.T) {
	target := Target{Region: "ap-south-1", Kind: KindRDS}

	_, ok := FailureOf(Outcome{Target: target})
	assert.False(t, ok)

	f, ok := FailureOf(Outcome{Target: target, Err: NewError(ErrKindTimeout, "", errors.New("deadline"))})
	require.True(t, ok)
	assert.Equal(t, target, f.Target)
	assert.Equal(t, ErrKindTimeout, f.Kind)
	assert.Equal(t, "timeout: deadline", f.Message)
}

func TestIsConfiguration(t *testing.T) {
	assert.True(t, IsConfiguration(Configurationf("no regions")))
	assert.False(t, IsConfiguration(errors.New("no regions")))
}
