/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package images

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"strings"

	"github.com/nfnt/resize"
)

const (
	DefaultCompressThreshold = 200 * 1000
	DefaultMaxDimension      = 512
	DefaultJPEGQuality       = 80
)

var ErrNotInline = errors.New("locator is not an inline base64 image")

// Resizer downsizes inline base64 images that exceed Threshold bytes and
// re-encodes them as JPEG. Anything it cannot improve is returned as is.
type Resizer struct {
	Threshold    int
	MaxDimension uint
	Quality      int
}

func NewResizer(threshold int, maxDimension uint) *Resizer {
	if threshold <= 0 {
		threshold = DefaultCompressThreshold
	}
	if maxDimension == 0 {
		maxDimension = DefaultMaxDimension
	}
	return &Resizer{
		Threshold:    threshold,
		MaxDimension: maxDimension,
		Quality:      DefaultJPEGQuality,
	}
}

func (r *Resizer) Compress(locator string) (string, error) {
	if !isInline(locator) || len(locator) <= r.Threshold {
		return locator, nil
	}

	data, err := DecodeDataURL(locator)
	if err != nil {
		return locator, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return locator, fmt.Errorf("decode image: %w", err)
	}

	small := resize.Thumbnail(r.MaxDimension, r.MaxDimension, img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, small, &jpeg.Options{Quality: r.Quality}); err != nil {
		return locator, fmt.Errorf("encode image: %w", err)
	}

	out := EncodeDataURL("image/jpeg", buf.Bytes())
	if len(out) >= len(locator) {
		return locator, nil
	}
	return out, nil
}

// DecodeDataURL returns the payload of a data:<mime>;base64,<payload> URL.
func DecodeDataURL(locator string) ([]byte, error) {
	header, payload, ok := strings.Cut(locator, ",")
	if !ok || !strings.HasPrefix(header, "data:") || !strings.HasSuffix(header, ";base64") {
		return nil, ErrNotInline
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return data, nil
}

func EncodeDataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
