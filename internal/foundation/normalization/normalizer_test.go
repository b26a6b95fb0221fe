package normalization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outputMode string

const (
	outputFiles  outputMode = "files"
	outputBundle outputMode = "bundle"
)

func newOutputEnum() *Enum[outputMode] {
	return NewEnum(map[string]outputMode{
		"files":  outputFiles,
		"bundle": outputBundle,
		"concat": outputBundle,
	}, outputFiles)
}

func TestEnumParse(t *testing.T) {
	e := newOutputEnum()

	tests := []struct {
		input string
		want  outputMode
	}{
		{"", outputFiles},
		{"files", outputFiles},
		{"  BUNDLE ", outputBundle},
		{"concat", outputBundle},
	}
	for _, tt := range tests {
		got, err := e.Parse(tt.input)
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got, tt.input)
	}
}

func TestEnumRejectsUnknown(t *testing.T) {
	e := newOutputEnum()

	_, err := e.Parse("zip")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bundle, concat, files")
	assert.Equal(t, outputFiles, e.Normalize("zip"))
}
