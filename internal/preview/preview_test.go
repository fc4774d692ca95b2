package preview

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"knot/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// splitPNG builds a w x h PNG whose left half is red and right half blue.
func splitPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{R: 255, A: 255}
			if x >= w/2 {
				c = color.RGBA{B: 255, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	buf := bytes.NewBuffer(nil)
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

func decodeOut(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, _, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func TestOptions_Normalize(t *testing.T) {
	tests := []struct {
		name    string
		in      Options
		want    Options
		wantErr bool
	}{
		{"defaults", Options{}, Options{Gravity: "center", Quality: 90}, false},
		{"caps dimensions", Options{Width: 9000, Height: 5000}, Options{Width: 4000, Height: 4000, Gravity: "center", Quality: 90}, false},
		{"jpeg alias", Options{Output: "JPEG", Gravity: "Top"}, Options{Gravity: "top", Quality: 90, Output: "jpg"}, false},
		{"gif becomes png", Options{Output: "gif", Quality: 50}, Options{Gravity: "center", Quality: 50, Output: "png"}, false},
		{"negative width", Options{Width: -1}, Options{}, true},
		{"bad gravity", Options{Gravity: "north"}, Options{}, true},
		{"bad quality", Options{Quality: 101}, Options{}, true},
		{"bad output", Options{Output: "bmp"}, Options{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in
			err := got.Normalize()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOptions_Variant(t *testing.T) {
	o := Options{Width: 2000, Height: 2000, Gravity: "top", Quality: 100, Output: "jpg"}
	assert.Equal(t, "2000x2000-top-100-jpg", o.Variant())
	assert.Equal(t, "0x0-center-90-src", Options{Gravity: "center", Quality: 90}.Variant())
}

func TestDecode(t *testing.T) {
	info, err := Decode(splitPNG(t, 30, 20))
	require.NoError(t, err)
	assert.Equal(t, Info{Format: "png", Width: 30, Height: 20}, info)
	assert.Equal(t, "image/png", MimeForFormat(info.Format))

	_, err = Decode([]byte("not an image"))
	assert.ErrorIs(t, err, ErrUnsupportedImage)
}

func TestRender_CoverCropWithGravity(t *testing.T) {
	src := splitPNG(t, 200, 100)

	tests := []struct {
		gravity string
		wantRed bool
	}{
		{"left", true},
		{"top-left", true},
		{"right", false},
		{"bottom-right", false},
	}
	for _, tt := range tests {
		t.Run(tt.gravity, func(t *testing.T) {
			out, ct, err := Render(src, Options{Width: 50, Height: 50, Gravity: tt.gravity, Output: "png"})
			require.NoError(t, err)
			assert.Equal(t, "image/png", ct)

			img := decodeOut(t, out)
			assert.Equal(t, 50, img.Bounds().Dx())
			assert.Equal(t, 50, img.Bounds().Dy())

			r, _, b, _ := img.At(25, 25).RGBA()
			if tt.wantRed {
				assert.Greater(t, r, b)
			} else {
				assert.Greater(t, b, r)
			}
		})
	}
}

func TestRender_NeverUpscales(t *testing.T) {
	src := splitPNG(t, 40, 20)

	out, _, err := Render(src, Options{Width: 2000, Height: 2000, Gravity: "top", Output: "png"})
	require.NoError(t, err)
	img := decodeOut(t, out)
	assert.Equal(t, 20, img.Bounds().Dx(), "crop keeps the target aspect")
	assert.Equal(t, 20, img.Bounds().Dy())

	out, _, err = Render(src, Options{Width: 400})
	require.NoError(t, err)
	img = decodeOut(t, out)
	assert.Equal(t, 40, img.Bounds().Dx())
	assert.Equal(t, 20, img.Bounds().Dy())
}

func TestRender_ProportionalSingleDimension(t *testing.T) {
	src := splitPNG(t, 200, 100)

	out, _, err := Render(src, Options{Width: 100})
	require.NoError(t, err)
	img := decodeOut(t, out)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 50, img.Bounds().Dy())

	out, _, err = Render(src, Options{Height: 25})
	require.NoError(t, err)
	img = decodeOut(t, out)
	assert.Equal(t, 50, img.Bounds().Dx())
	assert.Equal(t, 25, img.Bounds().Dy())
}

func TestRender_OutputFormats(t *testing.T) {
	src := splitPNG(t, 64, 64)

	tests := []struct {
		output     string
		wantCT     string
		wantFormat string
	}{
		{"", "image/png", "png"},
		{"jpg", "image/jpeg", "jpeg"},
		{"webp", "image/webp", "webp"},
	}
	for _, tt := range tests {
		t.Run(tt.wantFormat, func(t *testing.T) {
			out, ct, err := Render(src, Options{Width: 32, Height: 32, Output: tt.output, Quality: 80})
			require.NoError(t, err)
			assert.Equal(t, tt.wantCT, ct)
			info, err := Decode(out)
			require.NoError(t, err)
			assert.Equal(t, tt.wantFormat, info.Format)
		})
	}
}

func TestRender_RejectsGarbage(t *testing.T) {
	_, _, err := Render([]byte("nope"), Options{})
	assert.ErrorIs(t, err, ErrUnsupportedImage)

	_, _, err = Render(splitPNG(t, 4, 4), Options{Gravity: "sideways"})
	assert.Error(t, err)
}

func TestInfo_CheckBounds(t *testing.T) {
	assert.NoError(t, Info{Width: 4000, Height: 3000}.CheckBounds())
	assert.NoError(t, Info{Width: MaxSourceSide, Height: 3000}.CheckBounds())
	assert.ErrorIs(t, Info{Width: MaxSourceSide + 1, Height: 10}.CheckBounds(), ErrImageTooLarge)
	assert.ErrorIs(t, Info{Width: 8000, Height: 8000}.CheckBounds(), ErrImageTooLarge)
}

func TestRender_RefusesOversizedSourceBeforeDecoding(t *testing.T) {
	header := testutil.PNGHeader(20000, 20000)
	info, err := Decode(header)
	require.NoError(t, err)
	assert.Equal(t, Info{Format: "png", Width: 20000, Height: 20000}, info)

	_, _, err = Render(header, Options{Width: 100, Height: 100})
	assert.ErrorIs(t, err, ErrImageTooLarge)
}
