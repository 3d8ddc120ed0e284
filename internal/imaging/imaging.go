// Package imaging normalizes uploaded photos before they are stored.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"net/http"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Defaults used when Options fields are zero.
const (
	DefaultMaxDimension = 1024
	DefaultQuality      = 85
)

// ErrUnsupportedFormat is returned for input that is not a JPEG, PNG or WebP image.
var ErrUnsupportedFormat = errors.New("unsupported image format")

var allowedMIME = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// Options controls normalization.
type Options struct {
	MaxDimension int
	Quality      int
}

// Photo is a normalized JPEG.
type Photo struct {
	Data   []byte
	MIME   string
	Width  int
	Height int
}

// Normalizer re-encodes photos as bounded-size JPEGs.
type Normalizer struct {
	maxDim  int
	quality int
}

// NewNormalizer returns a Normalizer with defaults filled in.
func NewNormalizer(opts Options) *Normalizer {
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = DefaultMaxDimension
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = DefaultQuality
	}
	return &Normalizer{maxDim: opts.MaxDimension, quality: opts.Quality}
}

// Decode sniffs the format from the bytes (not from client headers) and
// decodes an accepted image.
func Decode(data []byte) (image.Image, error) {
	detected := http.DetectContentType(data)
	if !allowedMIME[detected] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, detected)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// Normalize decodes data, downscales it to fit the configured bound and
// re-encodes it as JPEG.
func (n *Normalizer) Normalize(data []byte) (*Photo, error) {
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}

	img = downscale(img, n.maxDim)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: n.quality}); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}

	b := img.Bounds()
	return &Photo{Data: buf.Bytes(), MIME: "image/jpeg", Width: b.Dx(), Height: b.Dy()}, nil
}

// downscale fits img inside maxDim x maxDim keeping the aspect ratio.
// Smaller images are returned unchanged.
func downscale(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}

	newW, newH := maxDim, maxDim
	if w > h {
		newH = max(1, h*maxDim/w)
	} else {
		newW = max(1, w*maxDim/h)
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
