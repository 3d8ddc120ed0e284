// Package scan turns scanned codes into borrowers and basket entries and
// commits baskets as loans.
package scan

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/erazemk/pujcovna/internal/imaging"
)

// ErrNoCode is returned when an image holds no readable code.
var ErrNoCode = errors.New("no code found in image")

var decodeHints = map[gozxing.DecodeHintType]interface{}{
	gozxing.DecodeHintType_TRY_HARDER: true,
}

// DecodeImage reads the first CODE128 barcode or QR code in an image.
func DecodeImage(data []byte) (string, error) {
	img, err := imaging.Decode(data)
	if err != nil {
		return "", err
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("preparing image: %w", err)
	}

	readers := []gozxing.Reader{
		oned.NewCode128Reader(),
		qrcode.NewQRCodeReader(),
	}
	for _, r := range readers {
		result, err := r.Decode(bmp, decodeHints)
		if err == nil && result.GetText() != "" {
			return result.GetText(), nil
		}
	}
	return "", ErrNoCode
}

// EncodeCode128 renders text as a CODE128 barcode PNG at least width x height
// pixels in size.
func EncodeCode128(text string, width, height int) ([]byte, error) {
	if text == "" {
		return nil, errors.New("empty barcode text")
	}

	matrix, err := oned.NewCode128Writer().Encode(text, gozxing.BarcodeFormat_CODE_128, width, height, nil)
	if err != nil {
		return nil, fmt.Errorf("encoding barcode: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, matrix); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}
