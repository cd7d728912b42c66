package hdrsdr

import "image"

// Gamut identifies a supported set of RGB primaries (all with D65 white).
type Gamut int

const (
	GamutUnspecified Gamut = iota
	GamutSRGB              // BT.709 primaries.
	GamutDisplayP3
	GamutAdobeRGB
	GamutBT2020
)

func (g Gamut) String() string {
	switch g {
	case GamutSRGB:
		return "srgb"
	case GamutDisplayP3:
		return "display-p3"
	case GamutAdobeRGB:
		return "adobe-rgb"
	case GamutBT2020:
		return "bt2020"
	default:
		return "unspecified"
	}
}

// Transfer identifies a supported transfer function.
type Transfer int

const (
	TransferUnspecified Transfer = iota
	TransferSRGB
	TransferLinear
	// TransferGamma is a pure power curve, see ColorProfile.Gamma.
	TransferGamma
	TransferBT709
	TransferPQ
	TransferHLG
)

func (t Transfer) String() string {
	switch t {
	case TransferSRGB:
		return "srgb"
	case TransferLinear:
		return "linear"
	case TransferGamma:
		return "gamma"
	case TransferBT709:
		return "bt709"
	case TransferPQ:
		return "pq"
	case TransferHLG:
		return "hlg"
	default:
		return "unspecified"
	}
}

// ColorProfile describes how decoded pixel values should be interpreted.
type ColorProfile struct {
	Gamut    Gamut
	Transfer Transfer
	// Gamma is the exponent of TransferGamma, ignored otherwise.
	Gamma float32
}

// IsSRGB reports whether no gamut or transfer conversion is needed to obtain sRGB.
func (p ColorProfile) IsSRGB() bool {
	return (p.Gamut == GamutSRGB || p.Gamut == GamutUnspecified) &&
		(p.Transfer == TransferSRGB || p.Transfer == TransferUnspecified)
}

// IsHDR reports whether the transfer function encodes luminance above SDR white.
func (p ColorProfile) IsHDR() bool {
	return p.Transfer == TransferPQ || p.Transfer == TransferHLG
}

var srgbProfile = ColorProfile{Gamut: GamutSRGB, Transfer: TransferSRGB}

// Info describes an encoded image as seen by a Decoder without decoding pixels.
type Info struct {
	Format      string       `json:"format"`
	Width       int          `json:"width"`
	Height      int          `json:"height"`
	BitDepth    int          `json:"bit_depth,omitempty"`
	Orientation Orientation  `json:"orientation"`
	Profile     ColorProfile `json:"-"`
	Gamut       string       `json:"gamut"`
	Transfer    string       `json:"transfer"`
	HasICC      bool         `json:"has_icc"`
	SRGB        bool         `json:"srgb"`
}

func (i *Info) setProfile(p ColorProfile) {
	i.Profile = p
	i.Gamut = p.Gamut.String()
	i.Transfer = p.Transfer.String()
	i.SRGB = p.IsSRGB()
}

// Raster is a decoded image together with its resolved description.
// It is owned by a single Normalize call.
type Raster struct {
	Image image.Image
	Info  Info
}
