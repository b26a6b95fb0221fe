package site

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategoryStepNames(t *testing.T) {
	for _, c := range []Category{CategoryStatic, CategoryMarkup, CategoryStyles, CategoryScript, CategoryIcons} {
		got, ok := CategoryForStep(c.Step())
		assert.True(t, ok, c)
		assert.Equal(t, c, got)
	}
	assert.Equal(t, "copy", CategoryStatic.Step())

	_, ok := CategoryForStep("fonts")
	assert.False(t, ok)
}

func TestCachedCategories(t *testing.T) {
	assert.True(t, CategoryStyles.Cached())
	assert.True(t, CategoryIcons.Cached())
	assert.False(t, CategoryMarkup.Cached())
	assert.False(t, CategoryStatic.Cached())
}
