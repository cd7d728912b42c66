package hdrsdr

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"sync"

	"github.com/gen2brain/jpegli"
)

// Encoder writes an 8-bit raster as a baseline-compatible JPEG.
type Encoder interface {
	Name() string
	// Available reports why the encoder cannot be used in this build, nil if it can.
	Available() error
	// Encode writes img at quality in [0, 100].
	Encode(w io.Writer, img image.Image, quality int) error
}

// EncoderByName returns an encoder by its Name.
func EncoderByName(name string) (Encoder, error) {
	for _, e := range []Encoder{JpegliEncoder(), StdEncoder()} {
		if e.Name() == name {
			return e, nil
		}
	}
	return nil, newError(KindArgument, "encoder", fmt.Errorf("unknown encoder %q", name))
}

type jpegliEncoder struct{}

var (
	jpegliOnce sync.Once
	jpegliErr  error
)

// JpegliEncoder encodes with jpegli using 4:2:0 chroma subsampling.
func JpegliEncoder() Encoder { return jpegliEncoder{} }

func (jpegliEncoder) Name() string { return "jpegli" }

func (e jpegliEncoder) Available() error {
	jpegliOnce.Do(func() {
		img := image.NewRGBA(image.Rect(0, 0, 1, 1))
		if err := e.Encode(io.Discard, img, DefaultQuality); err != nil {
			jpegliErr = newError(KindBackend, "jpegli", err)
		}
	})
	return jpegliErr
}

func (jpegliEncoder) Encode(w io.Writer, img image.Image, quality int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("jpegli: %v", r)
		}
	}()
	q := clampQuality(quality)
	if q < 1 {
		q = 1
	}
	return jpegli.Encode(w, img, &jpegli.EncodingOptions{
		Quality:           q,
		ChromaSubsampling: image.YCbCrSubsampleRatio420,
	})
}

type stdEncoder struct{}

// StdEncoder encodes with image/jpeg.
func StdEncoder() Encoder { return stdEncoder{} }

func (stdEncoder) Name() string     { return "std" }
func (stdEncoder) Available() error { return nil }

func (stdEncoder) Encode(w io.Writer, img image.Image, quality int) error {
	if img == nil {
		return errors.New("nil image")
	}
	return jpeg.Encode(w, img, &jpeg.Options{Quality: clampQuality(quality)})
}
