package build

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	assert.Equal(t, "dev (commit unknown, built unknown)", String())
}

func TestIsRelease(t *testing.T) {
	orig := Version
	t.Cleanup(func() { Version = orig })

	for version, want := range map[string]bool{"dev": false, "unknown": false, "": false, "v1.2.0": true} {
		Version = version
		assert.Equal(t, want, IsRelease(), version)
	}
}
