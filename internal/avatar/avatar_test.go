package avatar

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitials(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Ada Lovelace", "AL"},
		{"grace brewster murray hopper", "GB"},
		{"  cher  ", "C"},
		{"émile zola", "ÉZ"},
		{"@@ !!", "?"},
		{"", "?"},
		{"_x y", "XY"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Initials(tt.in))
		})
	}
}

func TestInitialsURL(t *testing.T) {
	assert.Equal(t,
		"https://knot.example/api/avatars/initials?name=Ada+Lovelace",
		InitialsURL("https://knot.example/", " Ada Lovelace "))
}

func TestClampSize(t *testing.T) {
	assert.Equal(t, DefaultSize, ClampSize(0))
	assert.Equal(t, DefaultSize, ClampSize(-5))
	assert.Equal(t, 64, ClampSize(64))
	assert.Equal(t, MaxSize, ClampSize(5000))
}

func TestBackground_IsStable(t *testing.T) {
	assert.Equal(t, Background("Ada"), Background(" ada "))
}

func TestRender(t *testing.T) {
	out, err := Render("Ada Lovelace", 96, 64)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 96, 64), img.Bounds())

	// corners keep the background, the centre carries glyph pixels
	bg := Background("Ada Lovelace")
	r, g, b, _ := img.At(0, 0).RGBA()
	assert.Equal(t, uint32(bg.R)*0x101, r)
	assert.Equal(t, uint32(bg.G)*0x101, g)
	assert.Equal(t, uint32(bg.B)*0x101, b)

	differs := false
	for x := 20; x < 76 && !differs; x++ {
		for y := 16; y < 48; y++ {
			if pr, pg, pb, _ := img.At(x, y).RGBA(); pr != r || pg != g || pb != b {
				differs = true
				break
			}
		}
	}
	assert.True(t, differs, "expected glyph pixels in the centre")
}

func TestRender_DefaultSize(t *testing.T) {
	out, err := Render("", 0, 0)
	require.NoError(t, err)
	cfg, err := png.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, DefaultSize, cfg.Width)
	assert.Equal(t, DefaultSize, cfg.Height)
}
