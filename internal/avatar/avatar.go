// Package avatar draws initials avatars for accounts without a profile image.
package avatar

import (
	"bytes"
	"hash/fnv"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"net/url"
	"strings"
	"unicode"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	DefaultSize = 128
	MaxSize     = 1024
)

var palette = []color.RGBA{
	{R: 0x87, G: 0x7e, B: 0xff, A: 0xff},
	{R: 0xff, G: 0x5a, B: 0x5a, A: 0xff},
	{R: 0x2e, G: 0xb8, B: 0x72, A: 0xff},
	{R: 0xf5, G: 0xa6, B: 0x23, A: 0xff},
	{R: 0x1e, G: 0x90, B: 0xff, A: 0xff},
	{R: 0x8e, G: 0x44, B: 0xad, A: 0xff},
	{R: 0x16, G: 0xa0, B: 0x85, A: 0xff},
	{R: 0xe8, G: 0x43, B: 0x93, A: 0xff},
}

// InitialsURL returns the avatar endpoint URL for name.
func InitialsURL(baseURL, name string) string {
	return strings.TrimRight(baseURL, "/") + "/api/avatars/initials?name=" + url.QueryEscape(strings.TrimSpace(name))
}

// Initials takes the first letter of up to two words, uppercased.
func Initials(name string) string {
	var out []rune
	for _, word := range strings.Fields(name) {
		for _, r := range word {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				out = append(out, unicode.ToUpper(r))
				break
			}
		}
		if len(out) == 2 {
			break
		}
	}
	if len(out) == 0 {
		return "?"
	}
	return string(out)
}

// ClampSize maps a requested dimension onto [1, MaxSize], with 0 meaning the default.
func ClampSize(n int) int {
	switch {
	case n <= 0:
		return DefaultSize
	case n > MaxSize:
		return MaxSize
	default:
		return n
	}
}

// Background picks a stable colour for name.
func Background(name string) color.RGBA {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(strings.TrimSpace(name))))
	return palette[h.Sum32()%uint32(len(palette))]
}

// Render draws the initials of name on a coloured square and encodes it as PNG.
func Render(name string, width, height int) ([]byte, error) {
	width, height = ClampSize(width), ClampSize(height)

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: Background(name)}, image.Point{}, draw.Src)

	glyphs := renderText(Initials(name))
	gb := glyphs.Bounds()

	// fit the glyph strip into 60% of the smaller side
	box := min(width, height) * 3 / 5
	scale := float64(box) / float64(max(gb.Dx(), gb.Dy()))
	tw := max(1, int(float64(gb.Dx())*scale))
	th := max(1, int(float64(gb.Dy())*scale))
	target := image.Rect((width-tw)/2, (height-th)/2, (width-tw)/2+tw, (height-th)/2+th)
	xdraw.ApproxBiLinear.Scale(dst, target, glyphs, gb, xdraw.Over, nil)

	buf := bytes.NewBuffer(nil)
	if err := png.Encode(buf, dst); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderText(text string) *image.RGBA {
	face := basicfont.Face7x13
	d := &font.Drawer{Face: face, Src: image.White}
	w := d.MeasureString(text).Ceil() + 2
	h := face.Height + 2

	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	d.Dst = canvas
	d.Dot = fixed.P(1, face.Ascent+1)
	d.DrawString(text)
	return canvas
}
