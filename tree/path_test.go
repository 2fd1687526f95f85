package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPath(t *testing.T) {
	tests := []struct {
		name  string
		parts []string
		want  string
	}{
		{"no parts", nil, "/"},
		{"empty part", []string{""}, "/"},
		{"relative and slashed", []string{"a", "/b/"}, "/a/b"},
		{"prebuilt path kept", []string{"/a/b", "c"}, "/a/b/c"},
		{"separators only collapse", []string{"a", "///", "b"}, "/a/b"},
		{"only separators", []string{"/", "//"}, "/"},
		{"trailing separators trimmed", []string{"/x//"}, "/x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildPath(tt.parts...))
		})
	}
}

func TestBuildPathIdempotent(t *testing.T) {
	inputs := [][]string{
		nil,
		{"a"},
		{"a", "/b/"},
		{"/a/b", "c"},
		{"a", "", "b"},
		{"services", "api", "leader"},
		{"x/", "y/"},
	}
	for _, parts := range inputs {
		once := BuildPath(parts...)
		assert.Equal(t, once, BuildPath(once), "parts %q", parts)
		require.NoError(t, ValidatePath(once), "parts %q", parts)
	}
}

func TestSplitPath(t *testing.T) {
	assert.Empty(t, SplitPath("/"))
	assert.Equal(t, []string{"a", "b", "c"}, SplitPath("/a/b/c"))
}

func TestValidatePath(t *testing.T) {
	valid := []string{"/", "/a", "/a/b-1/c.d", "/x/..y"}
	for _, p := range valid {
		assert.NoError(t, ValidatePath(p), p)
	}

	invalid := []string{"", "a/b", "/a/", "/a//b", "/a/./b", "/a/../b", "/a\x00b"}
	for _, p := range invalid {
		assert.ErrorIs(t, ValidatePath(p), ErrInvalidPath, "%q", p)
	}
}
