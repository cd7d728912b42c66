package hdrsdr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Options configures a Normalizer.
type Options struct {
	// Decoders in preference order, the first available one is used.
	Decoders []Decoder
	// Encoders in preference order, the first available one is used.
	Encoders []Encoder
	// Logger receives debug and warning records, discarded when nil.
	Logger *slog.Logger
	// PassthroughSRGB returns 8-bit upright sRGB JPEG input unchanged instead of re-encoding it.
	PassthroughSRGB bool
	// MaxDimension bounds the longer output side, 0 disables downscaling.
	MaxDimension uint
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

// WithPassthroughSRGB enables returning already-normalized JPEG input verbatim.
func WithPassthroughSRGB() func(o *Options) {
	return func(o *Options) { o.PassthroughSRGB = true }
}

// WithMaxDimension enables downscaling so that neither side exceeds maxDim.
func WithMaxDimension(maxDim uint) func(o *Options) {
	return func(o *Options) { o.MaxDimension = maxDim }
}

// WithDecoders replaces the decoder preference list.
func WithDecoders(d ...Decoder) func(o *Options) {
	return func(o *Options) { o.Decoders = d }
}

// WithEncoders replaces the encoder preference list.
func WithEncoders(e ...Encoder) func(o *Options) {
	return func(o *Options) { o.Encoders = e }
}

// Normalizer converts arbitrary images to upright, opaque 8-bit sRGB JPEG.
// It is safe for concurrent use.
type Normalizer struct {
	dec  Decoder
	enc  Encoder
	opts Options
	log  *slog.Logger
}

// New selects the first available decoder and encoder.
func New(opts ...func(o *Options)) (*Normalizer, error) {
	o := Options{
		Decoders: []Decoder{WideGamutDecoder(), ColorManagedDecoder(), BasicDecoder()},
		Encoders: []Encoder{JpegliEncoder(), StdEncoder()},
	}
	for _, applyOpt := range opts {
		applyOpt(&o)
	}

	n := &Normalizer{opts: o, log: o.Logger}
	if n.log == nil {
		n.log = slog.New(discardHandler{})
	}

	var errs []error
	for _, d := range o.Decoders {
		if err := d.Available(); err != nil {
			errs = append(errs, err)
			n.log.Debug("decoder unavailable", "decoder", d.Name(), "error", err)
			continue
		}
		n.dec = d
		break
	}
	for _, e := range o.Encoders {
		if err := e.Available(); err != nil {
			errs = append(errs, err)
			n.log.Debug("encoder unavailable", "encoder", e.Name(), "error", err)
			continue
		}
		n.enc = e
		break
	}
	if n.dec == nil || n.enc == nil {
		return nil, newError(KindBackend, "select backend", errors.Join(errs...))
	}
	n.log.Debug("backend selected", "decoder", n.dec.Name(), "encoder", n.enc.Name())
	return n, nil
}

// Decoder returns the selected decoder.
func (n *Normalizer) Decoder() Decoder { return n.dec }

// Encoder returns the selected encoder.
func (n *Normalizer) Encoder() Encoder { return n.enc }

// Probe describes data using the selected decoder.
func (n *Normalizer) Probe(data []byte) (*Info, error) {
	return n.dec.Probe(data)
}

// Normalize decodes data, remaps it to sRGB, bakes EXIF orientation into the pixels
// and encodes an opaque 8-bit JPEG at quality clamped to [0, 100].
//
// Errors match ErrDecode, ErrColorConversion or ErrEncode. A failing orientation
// transform is logged and the unrotated raster is encoded instead.
func (n *Normalizer) Normalize(data []byte, quality int) ([]byte, error) {
	q := clampQuality(quality)
	if len(data) == 0 {
		return nil, newError(KindDecode, "decode", errors.New("empty input"))
	}

	ras, err := n.dec.Decode(data)
	if err != nil {
		return nil, err
	}

	if n.canPassthrough(ras) {
		n.log.Debug("passthrough", "format", ras.Info.Format, "width", ras.Info.Width, "height", ras.Info.Height)
		return bytes.Clone(data), nil
	}

	rgba, release, err := toSRGB8(ras)
	if err != nil {
		return nil, err
	}
	defer release()
	ras.Image = nil

	upright := rgba
	oriented, releaseOriented, err := applyOrientation(rgba, ras.Info.Orientation)
	if err != nil {
		n.log.Warn("orientation skipped", "orientation", int(ras.Info.Orientation), "error", err)
	} else {
		defer releaseOriented()
		upright = oriented
	}

	img := downscale(upright, n.opts.MaxDimension)

	var buf bytes.Buffer
	if err := n.enc.Encode(&buf, img, q); err != nil {
		return nil, newError(KindEncode, "encode", err)
	}
	return buf.Bytes(), nil
}

func (n *Normalizer) canPassthrough(ras *Raster) bool {
	if !n.opts.PassthroughSRGB {
		return false
	}
	info := ras.Info
	if info.Format != formatJPEG || info.BitDepth != 8 || !info.Profile.IsSRGB() ||
		info.Orientation != OrientationNormal || !fits(info, info.Orientation, n.opts.MaxDimension) {
		return false
	}
	// CMYK JPEGs are re-encoded as RGB.
	_, cmyk := ras.Image.(*image.CMYK)
	return !cmyk
}

var (
	defaultOnce       sync.Once
	defaultNormalizer *Normalizer
	defaultErr        error
)

func defaultNormalizerOnce() (*Normalizer, error) {
	defaultOnce.Do(func() {
		defaultNormalizer, defaultErr = New()
	})
	return defaultNormalizer, defaultErr
}

// Normalize converts data with the default backends.
func Normalize(data []byte, quality int, opts ...func(o *Options)) ([]byte, error) {
	var (
		n   *Normalizer
		err error
	)
	if len(opts) == 0 {
		n, err = defaultNormalizerOnce()
	} else {
		n, err = New(opts...)
	}
	if err != nil {
		return nil, err
	}
	return n.Normalize(data, quality)
}

// NormalizeFile reads an image from inPath and writes the normalized JPEG to outPath.
func NormalizeFile(inPath, outPath string, quality int, opts ...func(o *Options)) error {
	data, err := os.ReadFile(inPath)
	if err != nil {
		return err
	}
	out, err := Normalize(data, quality, opts...)
	if err != nil {
		return fmt.Errorf("normalize %s: %w", inPath, err)
	}
	if err := os.WriteFile(filepath.Clean(outPath), out, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
