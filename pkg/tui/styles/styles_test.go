package styles

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ThemeLight, Normalize(" Light "))
	assert.Equal(t, ThemeDark, Normalize("dark"))
	assert.Equal(t, ThemeDark, Normalize("solarized"))
	assert.Equal(t, ThemeDark, Normalize(""))
}

func TestByName(t *testing.T) {
	t.Parallel()

	dark := ByName("dark")
	light := ByName("LIGHT")

	assert.Equal(t, ThemeDark, dark.Name)
	assert.Equal(t, ThemeLight, light.Name)
	assert.NotEqual(t, dark.Palette, light.Palette)
	assert.Equal(t, "#7AA2F7", dark.Palette.Accent)
}
