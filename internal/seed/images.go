package seed

import (
	"bytes"
	"image"
	"image/color"
	"image/png"

	"github.com/brianvoe/gofakeit/v6"
)

const imageSize = 96

// randomPNG draws diagonal bands in two random colours.
func randomPNG(f *gofakeit.Faker) ([]byte, error) {
	a := color.RGBA{R: f.Uint8(), G: f.Uint8(), B: f.Uint8(), A: 0xff}
	b := color.RGBA{R: f.Uint8(), G: f.Uint8(), B: f.Uint8(), A: 0xff}
	band := f.Number(6, 24)

	img := image.NewRGBA(image.Rect(0, 0, imageSize, imageSize))
	for y := 0; y < imageSize; y++ {
		for x := 0; x < imageSize; x++ {
			if ((x+y)/band)%2 == 0 {
				img.SetRGBA(x, y, a)
			} else {
				img.SetRGBA(x, y, b)
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
