package imagemeta

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func encodeJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

func TestDimensions(t *testing.T) {
	data := encodeJPEG(t, 640, 480)
	w, h, err := Dimensions(data)
	if err != nil {
		t.Fatalf("Dimensions: %v", err)
	}
	if w != 640 || h != 480 {
		t.Fatalf("dimensions = %dx%d, want 640x480", w, h)
	}
}

func TestDimensionsRejectsGarbage(t *testing.T) {
	if _, _, err := Dimensions([]byte("not an image")); err == nil {
		t.Fatal("want error for undecodable bytes")
	}
}

func TestThumbnailFitsWithinBound(t *testing.T) {
	data := encodeJPEG(t, 640, 480)
	thumb, err := Thumbnail(data)
	if err != nil {
		t.Fatalf("Thumbnail: %v", err)
	}
	w, h, err := Dimensions(thumb)
	if err != nil {
		t.Fatalf("decode thumbnail: %v", err)
	}
	if w > ThumbnailMaxDim || h > ThumbnailMaxDim {
		t.Fatalf("thumbnail = %dx%d, exceeds %d", w, h, ThumbnailMaxDim)
	}
	// Aspect ratio should survive the resize.
	if w != 320 || h != 240 {
		t.Fatalf("thumbnail = %dx%d, want 320x240", w, h)
	}
}

func TestThumbnailKeepsSmallImages(t *testing.T) {
	data := encodeJPEG(t, 100, 80)
	thumb, err := Thumbnail(data)
	if err != nil {
		t.Fatalf("Thumbnail: %v", err)
	}
	w, h, err := Dimensions(thumb)
	if err != nil {
		t.Fatalf("decode thumbnail: %v", err)
	}
	if w != 100 || h != 80 {
		t.Fatalf("small image resized to %dx%d", w, h)
	}
}
