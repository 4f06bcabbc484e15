package storage

import (
	"bytes"
	"errors"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/disintegration/imaging"
)

const (
	DefaultThumbSize = 256
	MaxThumbSize     = 1024
	ThumbQuality     = 80
)

// ErrNotImage is returned when a thumbnail is requested for a file that is
// not a decodable image.
var ErrNotImage = errors.New("not an image")

// Thumbnail returns a JPEG of the image at path fitted within size x size,
// with its EXIF orientation applied.
func Thumbnail(path string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultThumbSize
	}
	if size > MaxThumbSize {
		size = MaxThumbSize
	}
	if !IsImage(MimeType(path)) {
		return nil, ErrNotImage
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	orientation := DecodeExif(f).Orientation
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, ErrNotImage
	}
	img = applyOrientation(img, orientation)
	thumb := imaging.Fit(img, size, size, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: ThumbQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// applyOrientation transforms an image according to EXIF orientation value.
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}
