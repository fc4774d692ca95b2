// Package preview renders resized, cropped and re-encoded variants of stored images.
package preview

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif" // Register GIF decoder
	"image/jpeg"
	"image/png"
	"strings"

	"knot/internal/observability"

	"github.com/chai2010/webp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	MaxDimension   = 4000
	DefaultQuality = 90

	// Limits on stored sources. Decoding allocates about four bytes per pixel.
	MaxSourceSide   = 12000
	MaxSourcePixels = 40_000_000
)

// Gravity values accepted by Options.
const (
	GravityCenter      = "center"
	GravityTopLeft     = "top-left"
	GravityTop         = "top"
	GravityTopRight    = "top-right"
	GravityLeft        = "left"
	GravityRight       = "right"
	GravityBottomLeft  = "bottom-left"
	GravityBottom      = "bottom"
	GravityBottomRight = "bottom-right"
)

// Output formats.
const (
	FormatJPG  = "jpg"
	FormatPNG  = "png"
	FormatWebP = "webp"
)

// ErrUnsupportedImage is returned when the source cannot be decoded.
var ErrUnsupportedImage = errors.New("unsupported image format")

// ErrImageTooLarge is returned for sources over MaxSourceSide or MaxSourcePixels.
var ErrImageTooLarge = errors.New("image dimensions too large")

// Options describes one preview variant. Zero values mean "keep the source".
type Options struct {
	Width   int
	Height  int
	Gravity string
	Quality int
	Output  string
}

// Normalize validates the options and fills defaults in place.
func (o *Options) Normalize() error {
	if o.Width < 0 || o.Height < 0 {
		return errors.New("width and height must not be negative")
	}
	if o.Width > MaxDimension {
		o.Width = MaxDimension
	}
	if o.Height > MaxDimension {
		o.Height = MaxDimension
	}

	o.Gravity = strings.ToLower(strings.TrimSpace(o.Gravity))
	switch o.Gravity {
	case "":
		o.Gravity = GravityCenter
	case GravityCenter, GravityTopLeft, GravityTop, GravityTopRight, GravityLeft,
		GravityRight, GravityBottomLeft, GravityBottom, GravityBottomRight:
	default:
		return fmt.Errorf("unsupported gravity %q", o.Gravity)
	}

	if o.Quality < 0 || o.Quality > 100 {
		return errors.New("quality must be between 0 and 100")
	}
	if o.Quality == 0 {
		o.Quality = DefaultQuality
	}

	o.Output = strings.ToLower(strings.TrimSpace(o.Output))
	switch o.Output {
	case "":
	case "jpg", "jpeg":
		o.Output = FormatJPG
	case "png", "gif":
		o.Output = FormatPNG
	case "webp":
		o.Output = FormatWebP
	default:
		return fmt.Errorf("unsupported output %q", o.Output)
	}
	return nil
}

// Variant is a stable name for the normalized options, used as a cache key part.
func (o Options) Variant() string {
	out := o.Output
	if out == "" {
		out = "src"
	}
	return fmt.Sprintf("%dx%d-%s-%d-%s", o.Width, o.Height, o.Gravity, o.Quality, out)
}

// Info is the decoded header of an image.
type Info struct {
	Format string
	Width  int
	Height int
}

// Decode reads only the image header.
func Decode(src []byte) (Info, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(src))
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	return Info{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

// CheckBounds rejects dimensions a decode should not be attempted on.
func (i Info) CheckBounds() error {
	if i.Width > MaxSourceSide || i.Height > MaxSourceSide ||
		int64(i.Width)*int64(i.Height) > MaxSourcePixels {
		return fmt.Errorf("%w: %dx%d (max %d px per side, %d MP)",
			ErrImageTooLarge, i.Width, i.Height, MaxSourceSide, MaxSourcePixels/1_000_000)
	}
	return nil
}

// MimeForFormat maps a decoder format name to its MIME type.
func MimeForFormat(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "jpeg", "jpg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return ""
	}
}

// Render decodes src and produces the variant described by opts.
// It returns the encoded bytes and their content type.
func Render(src []byte, opts Options) ([]byte, string, error) {
	defer observability.TrackPreview()()

	if err := opts.Normalize(); err != nil {
		return nil, "", err
	}

	info, err := Decode(src)
	if err != nil {
		return nil, "", err
	}
	if err := info.CheckBounds(); err != nil {
		return nil, "", err
	}

	img, format, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	out := opts.Output
	if out == "" {
		out = outputForSource(format)
	}

	switch {
	case opts.Width > 0 && opts.Height > 0:
		img = coverCrop(img, opts.Width, opts.Height, opts.Gravity)
	case opts.Width > 0 || opts.Height > 0:
		img = scaleProportional(img, opts.Width, opts.Height)
	}

	return encode(img, out, opts.Quality)
}

func outputForSource(format string) string {
	switch format {
	case "jpeg":
		return FormatJPG
	case "webp":
		return FormatWebP
	default:
		return FormatPNG
	}
}

// coverCrop crops src to the target aspect using gravity and then scales it
// down to the target. A source smaller than the target is cropped but not enlarged.
func coverCrop(src image.Image, tw, th int, gravity string) image.Image {
	b := src.Bounds()
	sw, sh := b.Dx(), b.Dy()
	if sw <= 0 || sh <= 0 {
		return src
	}

	cropW, cropH := sw, sh
	if sw*th > sh*tw {
		cropW = max(1, sh*tw/th)
	} else {
		cropH = max(1, sw*th/tw)
	}

	x, y := gravityOffset(gravity, sw-cropW, sh-cropH)
	cropped := cropToRect(src, b.Min.X+x, b.Min.Y+y, cropW, cropH)

	if cropW <= tw {
		return cropped
	}
	return scaleTo(cropped, tw, th)
}

func gravityOffset(gravity string, spareX, spareY int) (int, int) {
	x, y := spareX/2, spareY/2
	if strings.HasSuffix(gravity, "left") {
		x = 0
	} else if strings.HasSuffix(gravity, "right") {
		x = spareX
	}
	if strings.HasPrefix(gravity, "top") {
		y = 0
	} else if strings.HasPrefix(gravity, "bottom") {
		y = spareY
	}
	return x, y
}

func scaleProportional(src image.Image, w, h int) image.Image {
	b := src.Bounds()
	sw, sh := b.Dx(), b.Dy()
	if sw <= 0 || sh <= 0 {
		return src
	}
	if w > 0 {
		if sw <= w {
			return src
		}
		return scaleTo(src, w, max(1, sh*w/sw))
	}
	if sh <= h {
		return src
	}
	return scaleTo(src, max(1, sw*h/sh), h)
}

func cropToRect(src image.Image, x, y, w, h int) image.Image {
	if w <= 0 || h <= 0 {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), src, image.Point{X: x, Y: y}, draw.Src)
	return dst
}

func scaleTo(src image.Image, w, h int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Over, nil)
	return dst
}

func encode(img image.Image, format string, quality int) ([]byte, string, error) {
	buf := bytes.NewBuffer(nil)
	switch format {
	case FormatJPG:
		if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "image/jpeg", nil
	case FormatWebP:
		if err := webp.Encode(buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "image/webp", nil
	default:
		if err := png.Encode(buf, img); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "image/png", nil
	}
}
