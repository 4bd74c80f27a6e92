package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutranks_EmptyCurrentAlwaysLoses(t *testing.T) {
	assert.True(t, outranks(ErrorKindUpstreamError, ErrorKindNone))
}

func TestOutranks_HigherPriorityWins(t *testing.T) {
	assert.True(t, outranks(ErrorKindAuthRequired, ErrorKindUpstreamError))
	assert.False(t, outranks(ErrorKindUpstreamError, ErrorKindAuthRequired))
}

func TestOutranks_SamePriorityDoesNotReplace(t *testing.T) {
	assert.False(t, outranks(ErrorKindUpstreamError, ErrorKindUpstreamError))
}

func TestIsAuthError(t *testing.T) {
	cases := []struct {
		msg  string
		want bool
	}{
		{"Waiting for auth token refresh", true},
		{"401 Unauthorized", true},
		{"precondition check failed: token expired", true},
		{"please sign in to continue", true},
		{"connection reset by peer", false},
		{"", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, isAuthError(tc.msg), "msg=%q", tc.msg)
	}
}

func TestIsTransientNoise(t *testing.T) {
	assert.True(t, isTransientNoise("Reconnecting... 2/5"))
	assert.True(t, isTransientNoise("  Reconnecting... 1/3  "))
	assert.False(t, isTransientNoise("Reconnecting forever"))
	assert.False(t, isTransientNoise("fatal: upstream closed"))
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(ErrorKindCommandNotFound))
	assert.False(t, IsRetryable(ErrorKindAuthRequired))
	assert.True(t, IsRetryable(ErrorKindTimeout))
	assert.True(t, IsRetryable(ErrorKindUpstreamError))
	assert.True(t, IsRetryable(ErrorKindEmptyResult))
}
