package hdrsdr

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"
	"unicode"
	"unicode/utf16"
)

const (
	iccHeaderSize = 128
	iccTagSize    = 12
)

var (
	iccSigRGB  = [4]byte{'R', 'G', 'B', ' '}
	iccSigGray = [4]byte{'G', 'R', 'A', 'Y'}
	iccSigRXYZ = [4]byte{'r', 'X', 'Y', 'Z'}
	iccSigGXYZ = [4]byte{'g', 'X', 'Y', 'Z'}
	iccSigRTRC = [4]byte{'r', 'T', 'R', 'C'}
	iccSigXYZ  = [4]byte{'X', 'Y', 'Z', ' '}
	iccSigCurv = [4]byte{'c', 'u', 'r', 'v'}
	iccSigPara = [4]byte{'p', 'a', 'r', 'a'}
	iccSigDesc = [4]byte{'d', 'e', 's', 'c'}
	iccSigMLUC = [4]byte{'m', 'l', 'u', 'c'}
	iccSigCICP = [4]byte{'c', 'i', 'c', 'p'}
)

// Colorants of the supported gamuts, chromatically adapted to the D50 PCS.
var iccColorants = []struct {
	gamut Gamut
	red   [3]float64
	green [3]float64
}{
	{gamut: GamutSRGB, red: [3]float64{0.4361, 0.2225, 0.0139}, green: [3]float64{0.3851, 0.7169, 0.0971}},
	{gamut: GamutDisplayP3, red: [3]float64{0.5151, 0.2412, -0.0011}, green: [3]float64{0.2919, 0.6922, 0.0419}},
	{gamut: GamutAdobeRGB, red: [3]float64{0.6097, 0.3111, 0.0195}, green: [3]float64{0.2053, 0.6257, 0.0609}},
	{gamut: GamutBT2020, red: [3]float64{0.6734, 0.2790, -0.0019}, green: [3]float64{0.1656, 0.6753, 0.0300}},
}

const colorantTolerance = 0.01

type iccTag struct {
	data []byte
}

// parseICCTags returns the tag table of an ICC profile keyed by signature.
func parseICCTags(profile []byte) map[[4]byte]iccTag {
	if len(profile) < iccHeaderSize+4 {
		return nil
	}
	n := int(binary.BigEndian.Uint32(profile[iccHeaderSize:]))
	if n <= 0 || n > 1024 {
		return nil
	}
	tags := make(map[[4]byte]iccTag, n)
	pos := iccHeaderSize + 4
	for i := 0; i < n; i++ {
		if pos+iccTagSize > len(profile) {
			break
		}
		var sig [4]byte
		copy(sig[:], profile[pos:pos+4])
		off := int(binary.BigEndian.Uint32(profile[pos+4:]))
		size := int(binary.BigEndian.Uint32(profile[pos+8:]))
		pos += iccTagSize
		if off < 0 || size < 0 || off+size > len(profile) || off+size < off {
			continue
		}
		tags[sig] = iccTag{data: profile[off : off+size]}
	}
	return tags
}

func s15Fixed16(b []byte) float64 {
	return float64(int32(binary.BigEndian.Uint32(b))) / 65536.0
}

func (t iccTag) xyz() ([3]float64, bool) {
	if len(t.data) < 20 || !bytes.Equal(t.data[:4], iccSigXYZ[:]) {
		return [3]float64{}, false
	}
	return [3]float64{s15Fixed16(t.data[8:]), s15Fixed16(t.data[12:]), s15Fixed16(t.data[16:])}, true
}

// transfer interprets a TRC tag, curv tables are assumed to approximate sRGB.
func (t iccTag) transfer() (ColorProfile, bool) {
	if len(t.data) < 12 {
		return ColorProfile{}, false
	}
	switch {
	case bytes.Equal(t.data[:4], iccSigCurv[:]):
		count := binary.BigEndian.Uint32(t.data[8:])
		switch count {
		case 0:
			return ColorProfile{Transfer: TransferLinear}, true
		case 1:
			if len(t.data) < 14 {
				return ColorProfile{}, false
			}
			return gammaProfile(float64(binary.BigEndian.Uint16(t.data[12:])) / 256.0), true
		default:
			return ColorProfile{Transfer: TransferSRGB}, true
		}
	case bytes.Equal(t.data[:4], iccSigPara[:]):
		if len(t.data) < 16 {
			return ColorProfile{}, false
		}
		fn := binary.BigEndian.Uint16(t.data[8:])
		g := s15Fixed16(t.data[12:])
		if fn == 0 {
			return gammaProfile(g), true
		}
		// Parametric types 3 and 4 with a 2.4 exponent are the sRGB curve.
		if math.Abs(g-2.4) < 0.01 {
			return ColorProfile{Transfer: TransferSRGB}, true
		}
		return gammaProfile(g), true
	}
	return ColorProfile{}, false
}

func gammaProfile(g float64) ColorProfile {
	if math.Abs(g-1) < 0.01 {
		return ColorProfile{Transfer: TransferLinear}
	}
	return ColorProfile{Transfer: TransferGamma, Gamma: float32(g)}
}

func colorantsMatch(got, want [3]float64) bool {
	for i := range got {
		if math.Abs(got[i]-want[i]) > colorantTolerance {
			return false
		}
	}
	return true
}

// text decodes a textDescriptionType or the first record of a multiLocalizedUnicodeType.
func (t iccTag) text() string {
	if len(t.data) < 12 {
		return ""
	}
	switch {
	case bytes.Equal(t.data[:4], iccSigDesc[:]):
		n := int(binary.BigEndian.Uint32(t.data[8:]))
		if n <= 0 || n > len(t.data)-12 {
			return ""
		}
		return string(bytes.TrimRight(t.data[12:12+n], "\x00"))
	case bytes.Equal(t.data[:4], iccSigMLUC[:]):
		if len(t.data) < 28 || binary.BigEndian.Uint32(t.data[8:]) == 0 {
			return ""
		}
		n := int(binary.BigEndian.Uint32(t.data[20:]))
		off := int(binary.BigEndian.Uint32(t.data[24:]))
		if off < 0 || n < 0 || off > len(t.data) || n > len(t.data)-off {
			return ""
		}
		units := make([]uint16, n/2)
		for i := range units {
			units[i] = binary.BigEndian.Uint16(t.data[off+2*i:])
		}
		return strings.TrimRight(string(utf16.Decode(units)), "\x00")
	}
	return ""
}

// cicp reads the ICC v4.4 coding-independent code points tag.
func (t iccTag) cicp() (cicp, bool) {
	if len(t.data) < 12 || !bytes.Equal(t.data[:4], iccSigCICP[:]) {
		return cicp{}, false
	}
	return cicp{primaries: uint16(t.data[8]), transfer: uint16(t.data[9]), matrix: uint16(t.data[10])}, true
}

// profileFromICC resolves gamut and transfer of an ICC profile.
// A cicp tag wins. Otherwise colorant tags decide the gamut and the description
// names PQ/HLG, which a TRC cannot express.
func profileFromICC(profile []byte) ColorProfile {
	if len(profile) == 0 {
		return srgbProfile
	}
	if len(profile) >= 20 && bytes.Equal(profile[16:20], iccSigGray[:]) {
		return srgbProfile
	}
	if len(profile) >= 20 && !bytes.Equal(profile[16:20], iccSigRGB[:]) {
		return srgbProfile
	}
	tags := parseICCTags(profile)
	if c, ok := tags[iccSigCICP].cicp(); ok {
		if p, ok := profileFromCICP(c); ok {
			return p
		}
	}
	p := profileFromDescription(tags[iccSigDesc].text())
	if r, ok := tags[iccSigRXYZ].xyz(); ok {
		if g, ok := tags[iccSigGXYZ].xyz(); ok {
			for _, c := range iccColorants {
				if colorantsMatch(r, c.red) && colorantsMatch(g, c.green) {
					p.Gamut = c.gamut
					break
				}
			}
		}
	}
	if p.Transfer == TransferPQ || p.Transfer == TransferHLG {
		return p
	}
	if trc, ok := tags[iccSigRTRC].transfer(); ok {
		p.Transfer = trc.Transfer
		p.Gamma = trc.Gamma
	}
	return p
}

// profileFromDescription matches well-known profile names, transfer names must be whole words.
func profileFromDescription(desc string) ColorProfile {
	lower := strings.ToLower(desc)
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	hasWord := func(w string) bool {
		for _, x := range words {
			if x == w {
				return true
			}
		}
		return false
	}
	containsAny := func(needles ...string) bool {
		for _, n := range needles {
			if strings.Contains(lower, n) {
				return true
			}
		}
		return false
	}

	p := srgbProfile
	switch {
	case containsAny("display p3", "dci-p3", "dci p3", "p3-d65"):
		p.Gamut = GamutDisplayP3
	case containsAny("adobe rgb", "adobergb"):
		p = ColorProfile{Gamut: GamutAdobeRGB, Transfer: TransferGamma, Gamma: adobeRGBGamma}
	case containsAny("rec. 2020", "rec.2020", "rec2020", "bt.2020", "bt2020", "itur_2020", "rec. 2100", "rec2100", "bt.2100", "bt2100"):
		p.Gamut = GamutBT2020
	}
	switch {
	case hasWord("pq") || hasWord("2084") || hasWord("st2084"):
		p.Transfer = TransferPQ
	case hasWord("hlg"):
		p.Transfer = TransferHLG
	}
	return p
}
