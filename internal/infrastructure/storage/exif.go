package storage

import (
	"io"
	"os"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// ExifData holds the EXIF fields the file manager uses.
type ExifData struct {
	DateTaken   *time.Time
	Orientation int
}

// DecodeExif reads EXIF data from r. Images without EXIF yield the zero
// data with orientation 1 and no error.
func DecodeExif(r io.Reader) *ExifData {
	d := &ExifData{Orientation: 1}

	x, err := exif.Decode(r)
	if err != nil {
		return d
	}

	if dt, err := x.DateTime(); err == nil {
		d.DateTaken = &dt
	}
	if orient, err := x.Get(exif.Orientation); err == nil {
		if v, err := orient.Int(0); err == nil && v >= 1 && v <= 8 {
			d.Orientation = v
		}
	}
	return d
}

// ReadExif opens path and decodes its EXIF data.
func ReadExif(path string) (*ExifData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeExif(f), nil
}
