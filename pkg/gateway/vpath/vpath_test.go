package vpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gwerrors "github.com/gatefs/gatefs/pkg/gateway/errors"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", "/"},
		{"/", "/"},
		{"//", "/"},
		{"/docs", "/docs"},
		{"docs", "/docs"},
		{"/docs/", "/docs/"},
		{"//docs///a.txt", "/docs/a.txt"},
		{"/a/b/c/", "/a/b/c/"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Canonicalize(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCanonicalizeRejects(t *testing.T) {
	for _, input := range []string{"/../etc", "/a/../b", "/.", "/a/.", "/a\\b", "/a\x00b"} {
		t.Run(input, func(t *testing.T) {
			_, err := Canonicalize(input)
			assert.True(t, gwerrors.IsCode(err, gwerrors.ErrInvalidPath), "expected invalidPath for %q", input)
		})
	}
}

func TestParentBaseJoin(t *testing.T) {
	assert.Equal(t, "/", Parent("/"))
	assert.Equal(t, "/", Parent("/docs"))
	assert.Equal(t, "/", Parent("/docs/"))
	assert.Equal(t, "/docs/", Parent("/docs/a.txt"))
	assert.Equal(t, "/a/b/", Parent("/a/b/c/"))

	assert.Equal(t, "", Base("/"))
	assert.Equal(t, "docs", Base("/docs/"))
	assert.Equal(t, "a.txt", Base("/docs/a.txt"))

	assert.Equal(t, "/docs/a.txt", Join("/docs", "a.txt"))
	assert.Equal(t, "/docs/a.txt", Join("/docs/", "a.txt"))
}

func TestAncestors(t *testing.T) {
	assert.Equal(t, []string{"/"}, Ancestors("/"))
	assert.Equal(t, []string{"/"}, Ancestors("/a.txt"))
	assert.Equal(t, []string{"/", "/docs/"}, Ancestors("/docs/a.txt"))
	assert.Equal(t, []string{"/", "/a/", "/a/b/"}, Ancestors("/a/b/c/"))
}

func TestHasPrefix(t *testing.T) {
	assert.True(t, HasPrefix("/team-a/x", "/team-a"))
	assert.True(t, HasPrefix("/team-a", "/team-a"))
	assert.True(t, HasPrefix("/team-a/", "/team-a/"))
	assert.True(t, HasPrefix("/anything", "/"))
	assert.True(t, HasPrefix("/anything", ""))
	assert.False(t, HasPrefix("/team-ab", "/team-a"))
	assert.False(t, HasPrefix("/team-b/x", "/team-a"))
}
