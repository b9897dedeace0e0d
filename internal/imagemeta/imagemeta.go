package imagemeta

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

// ThumbnailMaxDim bounds the longest edge of generated preview thumbnails.
const ThumbnailMaxDim = 320

// Dimensions decodes the image and returns its pixel width and height.
func Dimensions(data []byte) (int, int, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("imagemeta: decode: %w", err)
	}
	bounds := img.Bounds()
	return bounds.Dx(), bounds.Dy(), nil
}

// Thumbnail produces a JPEG preview whose longest edge is at most
// ThumbnailMaxDim, preserving aspect ratio.
func Thumbnail(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("imagemeta: decode: %w", err)
	}
	thumb := imaging.Fit(img, ThumbnailMaxDim, ThumbnailMaxDim, imaging.Lanczos)
	buf := &bytes.Buffer{}
	if err := imaging.Encode(buf, thumb, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return nil, fmt.Errorf("imagemeta: encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
