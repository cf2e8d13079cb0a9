package jail

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDepth(t *testing.T) {
	cases := []struct {
		path string
		want int
	}{
		{"/", 0},
		{"/opt", 1},
		{"/opt/collaboraoffice24.04", 2},
		{"/usr/lib/libreoffice/program", 4},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, depth(c.path), c.path)
	}
}

func TestRelativeTarget(t *testing.T) {
	got := relativeTarget("/opt/collaboraoffice", "lo/program")
	assert.Equal(t, "../lo/program", got)
}

func TestEngineSymlinksSkipsUnresolvableRealpath(t *testing.T) {
	// EvalSymlinks on a non-existent path fails, so realpath resolution is
	// skipped and only the literal loTemplate entry is produced.
	links := engineSymlinks("/jail", "/opt/does-not-exist-xyz", "lo")
	assert.Len(t, links, 1)
	assert.Contains(t, links, "/opt/does-not-exist-xyz")
}
