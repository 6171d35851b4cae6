package preset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idphoto/internal/pipeline"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	all := c.All()
	require.Len(t, all, 6)
	assert.Equal(t, "us-passport", all[0].ID)

	want := map[string]pipeline.TargetSize{
		"us-passport":     {Width: 600, Height: 600},
		"schengen-visa":   {Width: 413, Height: 531},
		"uk-passport":     {Width: 600, Height: 750},
		"canada-passport": {Width: 591, Height: 827},
		"china-visa":      {Width: 390, Height: 567},
		"india-visa":      {Width: 600, Height: 600},
	}
	for id, size := range want {
		p, err := c.Lookup(id)
		require.NoError(t, err, id)
		assert.Equal(t, size, p.Size(), id)
		assert.NotEmpty(t, p.Label, id)
	}
}

func TestAllReturnsCopy(t *testing.T) {
	c := Default()
	all := c.All()
	all[0].Width = 1
	p, err := c.Lookup("us-passport")
	require.NoError(t, err)
	assert.Equal(t, 600, p.Width)
}

func TestLookup_CaseInsensitive(t *testing.T) {
	p, err := Default().Lookup(" UK-Passport ")
	require.NoError(t, err)
	assert.Equal(t, "uk-passport", p.ID)
}

func TestResolve(t *testing.T) {
	c := Default()

	size, err := c.Resolve("schengen-visa", "1", "1")
	require.NoError(t, err)
	assert.Equal(t, pipeline.TargetSize{Width: 413, Height: 531}, size)

	size, err = c.Resolve("custom", "800", "1000")
	require.NoError(t, err)
	assert.Equal(t, pipeline.TargetSize{Width: 800, Height: 1000}, size)

	size, err = c.Resolve("", "", "")
	require.NoError(t, err)
	assert.Equal(t, pipeline.TargetSize{Width: 600, Height: 600}, size)

	_, err = c.Resolve("mars-passport", "", "")
	require.ErrorIs(t, err, ErrUnknownPreset)
	assert.Equal(t, pipeline.KindInvalidOptions, pipeline.KindOf(err))
}

func TestParseCustom(t *testing.T) {
	cases := []struct {
		w, h string
		want pipeline.TargetSize
	}{
		{"413", "531", pipeline.TargetSize{Width: 413, Height: 531}},
		{"", "", pipeline.TargetSize{Width: 600, Height: 600}},
		{"abc", "12abc", pipeline.TargetSize{Width: 600, Height: 12}},
		{"0", "-5", pipeline.TargetSize{Width: 600, Height: 600}},
		{" 300px", "+400", pipeline.TargetSize{Width: 300, Height: 400}},
		{"3.9", "1e3", pipeline.TargetSize{Width: 3, Height: 1}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ParseCustom(tc.w, tc.h), "%q x %q", tc.w, tc.h)
	}
}

func TestParseCustom_HugeValueFailsValidation(t *testing.T) {
	size := ParseCustom("99999999999999999999999", "600")
	assert.ErrorIs(t, size.Validate(), pipeline.ErrInvalidTargetSize)
}

func TestParse_Errors(t *testing.T) {
	cases := map[string]string{
		"empty":     ``,
		"syntax":    `[[preset]`,
		"duplicate": "[[preset]]\nid='a'\nwidth=1\nheight=1\n[[preset]]\nid='A'\nwidth=2\nheight=2\n",
		"custom id": "[[preset]]\nid='custom'\nwidth=1\nheight=1\n",
		"no size":   "[[preset]]\nid='a'\n",
	}
	for name, data := range cases {
		_, err := Parse([]byte(data))
		assert.Error(t, err, name)
	}
}

func TestLoad(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Len(t, c.All(), 6)

	path := filepath.Join(t.TempDir(), "presets.toml")
	require.NoError(t, os.WriteFile(path, []byte("[[preset]]\nid = \"badge\"\nwidth = 300\nheight = 400\n"), 0o644))
	c, err = Load(path)
	require.NoError(t, err)
	p, err := c.Lookup("badge")
	require.NoError(t, err)
	assert.Equal(t, "badge", p.Label)
	assert.Equal(t, pipeline.TargetSize{Width: 300, Height: 400}, p.Size())

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
