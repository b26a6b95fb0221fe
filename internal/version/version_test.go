package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	old := [3]string{Version, GitCommit, BuildTime}
	t.Cleanup(func() { Version, GitCommit, BuildTime = old[0], old[1], old[2] })

	Version, GitCommit, BuildTime = "v1.2.0", "abc1234", "2026-01-02"
	assert.Equal(t, "v1.2.0 (commit abc1234, built 2026-01-02)", String())
}

func TestDefaults(t *testing.T) {
	assert.NotEmpty(t, Version)
	assert.NotEmpty(t, GitCommit)
	assert.NotEmpty(t, BuildTime)
}
