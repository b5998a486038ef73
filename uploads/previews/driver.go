// Package previews re-orients, re-encodes and thumbnails uploaded images.
package previews

import (
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

var ErrUnsupportedFormat = errors.New("unsupported image format")

// Driver is one image codec generation. The processor picks one at startup
// and never probes capabilities per call.
type Driver interface {
	Name() string
	SupportsOrientation() bool
	// Format maps a file extension to the driver's encoder, or ErrUnsupportedFormat.
	Format(ext string) (string, error)
	Decode(r io.Reader, autoOrient bool) (image.Image, error)
	Encode(w io.Writer, img image.Image, format string, quality int) error
	// Fit scales img down to fit in a size x size box, never up.
	Fit(img image.Image, size int) image.Image
}

// SelectDriver returns nil for "none", which the processor treats as unavailable.
func SelectDriver(name string) (Driver, error) {
	switch strings.ToLower(name) {
	case "imaging", "":
		return imagingDriver{}, nil
	case "basic":
		return basicDriver{}, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown image driver %q", name)
	}
}

type imagingDriver struct{}

func (imagingDriver) Name() string { return "imaging" }

func (imagingDriver) SupportsOrientation() bool { return true }

func (imagingDriver) Format(ext string) (string, error) {
	f, err := imaging.FormatFromExtension(ext)
	if err != nil {
		return "", ErrUnsupportedFormat
	}
	return f.String(), nil
}

func (imagingDriver) Decode(r io.Reader, autoOrient bool) (image.Image, error) {
	return imaging.Decode(r, imaging.AutoOrientation(autoOrient))
}

func (d imagingDriver) Encode(w io.Writer, img image.Image, format string, quality int) error {
	f, err := imaging.FormatFromExtension(format)
	if err != nil {
		return ErrUnsupportedFormat
	}
	return imaging.Encode(w, img, f, imaging.JPEGQuality(quality))
}

func (imagingDriver) Fit(img image.Image, size int) image.Image {
	return imaging.Fit(img, size, size, imaging.Lanczos)
}

// basicDriver only needs the standard codecs and x/image/draw.
// It cannot read EXIF orientation.
type basicDriver struct{}

func (basicDriver) Name() string { return "basic" }

func (basicDriver) SupportsOrientation() bool { return false }

func (basicDriver) Format(ext string) (string, error) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "jpg", "jpeg":
		return "JPEG", nil
	case "png":
		return "PNG", nil
	case "gif":
		return "GIF", nil
	}
	return "", ErrUnsupportedFormat
}

func (basicDriver) Decode(r io.Reader, _ bool) (image.Image, error) {
	img, _, err := image.Decode(r)
	return img, err
}

func (basicDriver) Encode(w io.Writer, img image.Image, format string, quality int) error {
	switch format {
	case "JPEG":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
	case "PNG":
		return png.Encode(w, img)
	case "GIF":
		return gif.Encode(w, img, nil)
	}
	return ErrUnsupportedFormat
}

func (basicDriver) Fit(img image.Image, size int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= size && h <= size {
		return img
	}
	if w >= h {
		h = max(1, h*size/w)
		w = size
	} else {
		w = max(1, w*size/h)
		h = size
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
