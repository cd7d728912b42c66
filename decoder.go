package hdrsdr

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // GIF decoder.
	_ "image/jpeg" // JPEG decoder.
	_ "image/png"  // PNG decoder.

	_ "golang.org/x/image/bmp"  // BMP decoder.
	_ "golang.org/x/image/tiff" // TIFF decoder.
	_ "golang.org/x/image/webp" // WebP decoder.
)

// Capability is a set of colour handling features of a Decoder.
type Capability uint8

const (
	// CapBasicDecode decodes registered formats and assumes sRGB.
	CapBasicDecode Capability = 1 << iota
	// CapColorManaged honours embedded ICC profiles.
	CapColorManaged
	// CapWideGamut additionally honours CICP/nclx, PQ and HLG, and decodes HEIC.
	CapWideGamut
)

// Has reports whether all bits of c2 are set in c.
func (c Capability) Has(c2 Capability) bool { return c&c2 == c2 }

// Decoder turns encoded bytes into a Raster with a resolved colour profile.
type Decoder interface {
	Name() string
	Capabilities() Capability
	// Available reports why the decoder cannot be used in this build, nil if it can.
	Available() error
	// Probe describes data without decoding pixels.
	Probe(data []byte) (*Info, error)
	Decode(data []byte) (*Raster, error)
}

type managedDecoder struct {
	name string
	caps Capability
}

// WideGamutDecoder honours ICC profiles, CICP colour descriptions and HDR transfer functions.
// It requires HEIC support in the image registry.
func WideGamutDecoder() Decoder {
	return managedDecoder{name: "wide-gamut", caps: CapBasicDecode | CapColorManaged | CapWideGamut}
}

// ColorManagedDecoder honours embedded ICC profiles.
func ColorManagedDecoder() Decoder {
	return managedDecoder{name: "color-managed", caps: CapBasicDecode | CapColorManaged}
}

// BasicDecoder treats every image as sRGB.
func BasicDecoder() Decoder {
	return managedDecoder{name: "basic", caps: CapBasicDecode}
}

// DecoderByName returns a decoder preset by its Name.
func DecoderByName(name string) (Decoder, error) {
	for _, d := range []Decoder{WideGamutDecoder(), ColorManagedDecoder(), BasicDecoder()} {
		if d.Name() == name {
			return d, nil
		}
	}
	return nil, newError(KindArgument, "decoder", fmt.Errorf("unknown decoder %q", name))
}

func (d managedDecoder) Name() string             { return d.name }
func (d managedDecoder) Capabilities() Capability { return d.caps }

func (d managedDecoder) Available() error {
	if d.caps.Has(CapWideGamut) && !heifRegistered() {
		return newError(KindBackend, d.name, errors.New("heic decoder not registered"))
	}
	return nil
}

// heifProbe is the smallest prefix matched by the HEIC registry entry.
var heifProbe = []byte("\x00\x00\x00\x18ftypheic\x00\x00\x00\x00mif1heic")

func heifRegistered() bool {
	_, _, err := image.DecodeConfig(bytes.NewReader(heifProbe))
	return !errors.Is(err, image.ErrFormat)
}

func (d managedDecoder) Probe(data []byte) (*Info, error) {
	if len(data) == 0 {
		return nil, newError(KindDecode, "probe", errors.New("empty input"))
	}
	meta, _ := readContainerMeta(data)
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, newError(KindDecode, "probe", err)
	}
	info := d.info(meta, format, cfg.Width, cfg.Height)
	if info.BitDepth == 0 {
		info.BitDepth = modelDepth(cfg.ColorModel)
	}
	return &info, nil
}

func (d managedDecoder) Decode(data []byte) (*Raster, error) {
	if len(data) == 0 {
		return nil, newError(KindDecode, "decode", errors.New("empty input"))
	}
	// Metadata is best-effort, a broken EXIF block must not prevent decoding.
	meta, _ := readContainerMeta(data)
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, newError(KindDecode, "decode", err)
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, newError(KindDecode, "decode", fmt.Errorf("empty raster %dx%d", b.Dx(), b.Dy()))
	}
	info := d.info(meta, format, b.Dx(), b.Dy())
	if info.BitDepth == 0 {
		info.BitDepth = modelDepth(img.ColorModel())
	}
	return &Raster{Image: img, Info: info}, nil
}

func (d managedDecoder) info(meta containerMeta, format string, w, h int) Info {
	info := Info{
		Format:      format,
		Width:       w,
		Height:      h,
		BitDepth:    meta.bitDepth,
		Orientation: meta.orientation,
		HasICC:      len(meta.icc) > 0,
	}
	if !info.Orientation.Valid() || meta.format == formatHEIF {
		info.Orientation = OrientationNormal
	}
	info.setProfile(d.resolveProfile(meta))
	return info
}

// resolveProfile narrows the container description to what the decoder honours.
func (d managedDecoder) resolveProfile(meta containerMeta) ColorProfile {
	switch {
	case d.caps.Has(CapWideGamut):
		return meta.profile()
	case d.caps.Has(CapColorManaged):
		if meta.intrinsic != nil {
			return *meta.intrinsic
		}
		if len(meta.icc) == 0 {
			return srgbProfile
		}
		p := profileFromICC(meta.icc)
		if p.IsHDR() {
			p.Transfer = TransferSRGB
		}
		return p
	default:
		return srgbProfile
	}
}

func modelDepth(m color.Model) int {
	switch m {
	case color.RGBA64Model, color.NRGBA64Model, color.Gray16Model, color.Alpha16Model:
		return 16
	default:
		return 8
	}
}
