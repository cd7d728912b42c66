package hdrsdr

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"io"
	"sort"

	"github.com/vearutop/hdrsdr/internal/jpegx"
)

var (
	exifSig = []byte{'E', 'x', 'i', 'f', 0, 0}
	iccSig  = []byte{'I', 'C', 'C', '_', 'P', 'R', 'O', 'F', 'I', 'L', 'E', 0}
	pngSig  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}
)

// maxICCSize bounds decompressed embedded profiles.
const maxICCSize = 4 << 20

// cicp holds ITU-T H.273 coding-independent code points.
type cicp struct {
	primaries uint16
	transfer  uint16
	matrix    uint16
}

// containerMeta is colour and orientation metadata read from the container
// without decoding pixels.
type containerMeta struct {
	format      string
	orientation Orientation
	// intrinsic is the encoding defined by the format itself, it overrides tags.
	intrinsic   *ColorProfile
	icc         []byte
	cicp        *cicp
	srgbIntent  bool
	gamma       float32
	bitDepth    int
}

// sniffFormat identifies the container by magic bytes, empty when unknown.
func sniffFormat(data []byte) string {
	switch {
	case jpegx.IsJPEG(data):
		return formatJPEG
	case bytes.HasPrefix(data, pngSig):
		return formatPNG
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return formatWebP
	case len(data) >= 4 && (string(data[:4]) == "II*\x00" || string(data[:4]) == "MM\x00*"):
		return formatTIFF
	case len(data) >= 12 && string(data[4:8]) == "ftyp" && isHEIFBrand(string(data[8:12])):
		return formatHEIF
	case bytes.HasPrefix(data, []byte("GIF8")):
		return formatGIF
	case bytes.HasPrefix(data, []byte("BM")):
		return formatBMP
	case bytes.HasPrefix(data, []byte(exrMagicText)):
		return formatEXR
	}
	return ""
}

func isHEIFBrand(b string) bool {
	switch b {
	case "heic", "heix", "heim", "heis", "hevc", "hevx", "mif1", "msf1", "avif", "avis":
		return true
	}
	return false
}

// readContainerMeta extracts metadata from data. Unknown containers yield defaults
// and a nil error, malformed metadata is reported alongside whatever was read.
func readContainerMeta(data []byte) (containerMeta, error) {
	switch f := sniffFormat(data); f {
	case formatJPEG:
		return jpegMeta(data)
	case formatPNG:
		return pngMeta(data)
	case formatWebP:
		return webpMeta(data)
	case formatTIFF:
		return tiffMeta(data)
	case formatHEIF:
		return heifMeta(data)
	case formatEXR:
		return exrMeta(data)
	default:
		return containerMeta{format: f, orientation: OrientationNormal}, nil
	}
}

// profile resolves the colour profile, CICP takes precedence over ICC which
// takes precedence over PNG sRGB and gAMA chunks.
func (m containerMeta) profile() ColorProfile {
	if m.intrinsic != nil {
		return *m.intrinsic
	}
	if m.cicp != nil {
		if p, ok := profileFromCICP(*m.cicp); ok {
			return p
		}
	}
	if len(m.icc) > 0 {
		return profileFromICC(m.icc)
	}
	if m.srgbIntent {
		return srgbProfile
	}
	if m.gamma > 0 {
		p := gammaProfile(float64(m.gamma))
		p.Gamut = GamutSRGB
		return p
	}
	return srgbProfile
}

func profileFromCICP(c cicp) (ColorProfile, bool) {
	var p ColorProfile
	switch c.primaries {
	case 1:
		p.Gamut = GamutSRGB
	case 9:
		p.Gamut = GamutBT2020
	case 11, 12:
		p.Gamut = GamutDisplayP3
	case 2:
		p.Gamut = GamutUnspecified
	default:
		return ColorProfile{}, false
	}
	switch c.transfer {
	case 1, 6, 14, 15:
		p.Transfer = TransferBT709
	case 13:
		p.Transfer = TransferSRGB
	case 8:
		p.Transfer = TransferLinear
	case 16:
		p.Transfer = TransferPQ
	case 18:
		p.Transfer = TransferHLG
	case 4:
		p.Transfer, p.Gamma = TransferGamma, 2.2
	case 5:
		p.Transfer, p.Gamma = TransferGamma, 2.8
	case 2:
		p.Transfer = TransferUnspecified
	default:
		return ColorProfile{}, false
	}
	if p.Gamut == GamutUnspecified {
		p.Gamut = GamutSRGB
	}
	if p.Transfer == TransferUnspecified {
		p.Transfer = TransferSRGB
	}
	return p, true
}

type iccSegment struct {
	seq  int
	data []byte
}

// extractExifAndIcc returns the EXIF TIFF block and the reassembled ICC profile.
func extractExifAndIcc(data []byte) ([]byte, []byte, error) {
	var (
		exif    []byte
		iccSegs []iccSegment
	)
	err := jpegx.Walk(data, func(s jpegx.Segment) bool {
		switch s.Marker {
		case jpegx.MarkerAPP1:
			if exif == nil && bytes.HasPrefix(s.Payload, exifSig) {
				exif = s.Payload[len(exifSig):]
			}
		case jpegx.MarkerAPP2:
			if bytes.HasPrefix(s.Payload, iccSig) && len(s.Payload) >= len(iccSig)+2 {
				iccSegs = append(iccSegs, iccSegment{seq: int(s.Payload[len(iccSig)]), data: s.Payload[len(iccSig)+2:]})
			}
		}
		return true
	})
	if len(iccSegs) == 0 {
		return exif, nil, err
	}
	sort.SliceStable(iccSegs, func(i, j int) bool { return iccSegs[i].seq < iccSegs[j].seq })
	var icc []byte
	for _, s := range iccSegs {
		icc = append(icc, s.data...)
	}
	return exif, icc, err
}

func jpegMeta(data []byte) (containerMeta, error) {
	m := containerMeta{format: formatJPEG, orientation: OrientationNormal, bitDepth: 8}
	exif, icc, err := extractExifAndIcc(data)
	if exif != nil {
		m.orientation = exifOrientation(exif)
	}
	m.icc = icc
	if f, ferr := jpegx.ReadFrame(data); ferr == nil {
		m.bitDepth = f.Precision
	}
	return m, err
}

func pngMeta(data []byte) (containerMeta, error) {
	m := containerMeta{format: formatPNG, orientation: OrientationNormal}
	pos := len(pngSig)
	for pos+8 <= len(data) {
		n := int(binary.BigEndian.Uint32(data[pos:]))
		typ := string(data[pos+4 : pos+8])
		start := pos + 8
		end := start + n
		if n < 0 || end+4 > len(data) || end < start {
			return m, errors.New("png chunk truncated")
		}
		body := data[start:end]
		switch typ {
		case "IHDR":
			if len(body) >= 9 {
				m.bitDepth = int(body[8])
			}
		case "iCCP":
			if icc, err := inflateICCP(body); err == nil {
				m.icc = icc
			}
		case "cICP":
			if len(body) >= 4 {
				m.cicp = &cicp{primaries: uint16(body[0]), transfer: uint16(body[1]), matrix: uint16(body[2])}
			}
		case "sRGB":
			m.srgbIntent = true
		case "gAMA":
			if len(body) >= 4 {
				if g := binary.BigEndian.Uint32(body); g > 0 {
					// gAMA stores the encoding exponent times 100000.
					m.gamma = float32(100000.0 / float64(g))
				}
			}
		case "eXIf":
			m.orientation = exifOrientation(body)
		case "IEND":
			return m, nil
		}
		pos = end + 4
	}
	return m, nil
}

// inflateICCP decodes the body of an iCCP chunk: name, NUL, method, zlib stream.
func inflateICCP(body []byte) ([]byte, error) {
	i := bytes.IndexByte(body, 0)
	if i < 0 || i+2 > len(body) {
		return nil, errors.New("iccp malformed")
	}
	if body[i+1] != 0 {
		return nil, errors.New("iccp unknown compression")
	}
	zr, err := zlib.NewReader(bytes.NewReader(body[i+2:]))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	icc, err := io.ReadAll(io.LimitReader(zr, maxICCSize))
	if err != nil {
		return nil, err
	}
	return icc, nil
}

func webpMeta(data []byte) (containerMeta, error) {
	m := containerMeta{format: formatWebP, orientation: OrientationNormal, bitDepth: 8}
	pos := 12
	for pos+8 <= len(data) {
		fourcc := string(data[pos : pos+4])
		n := int(binary.LittleEndian.Uint32(data[pos+4:]))
		start := pos + 8
		end := start + n
		if n < 0 || end > len(data) || end < start {
			return m, errors.New("webp chunk truncated")
		}
		body := data[start:end]
		switch fourcc {
		case "ICCP":
			m.icc = body
		case "EXIF":
			m.orientation = exifOrientation(bytes.TrimPrefix(body, exifSig))
		}
		pos = end + n&1
	}
	return m, nil
}

// heifMeta reads the nclx or ICC colour property and pixel depth of a HEIF file.
// Orientation stays normal, irot and imir are applied by the decoder.
func heifMeta(data []byte) (containerMeta, error) {
	m := containerMeta{format: formatHEIF, orientation: OrientationNormal}
	meta, ok := findBox(data, "meta")
	if !ok {
		return m, errors.New("heif meta box missing")
	}
	if len(meta) < 4 {
		return m, errors.New("heif meta box truncated")
	}
	iprp, ok := findBox(meta[4:], "iprp")
	if !ok {
		return m, nil
	}
	ipco, ok := findBox(iprp, "ipco")
	if !ok {
		return m, nil
	}
	walkBoxes(ipco, func(typ string, body []byte) bool {
		switch typ {
		case "colr":
			if len(body) < 4 {
				return true
			}
			switch string(body[:4]) {
			case "nclx":
				if len(body) >= 10 && m.cicp == nil {
					m.cicp = &cicp{
						primaries: binary.BigEndian.Uint16(body[4:]),
						transfer:  binary.BigEndian.Uint16(body[6:]),
						matrix:    binary.BigEndian.Uint16(body[8:]),
					}
				}
			case "prof", "rICC":
				if m.icc == nil {
					m.icc = body[4:]
				}
			}
		case "pixi":
			// Full box header, channel count, per-channel depth.
			if len(body) >= 6 && m.bitDepth == 0 {
				m.bitDepth = int(body[5])
			}
		}
		return true
	})
	return m, nil
}

// walkBoxes iterates ISOBMFF boxes, fn receives the box payload.
func walkBoxes(data []byte, fn func(typ string, body []byte) bool) {
	pos := 0
	for pos+8 <= len(data) {
		size := uint64(binary.BigEndian.Uint32(data[pos:]))
		typ := string(data[pos+4 : pos+8])
		hdr := uint64(8)
		switch size {
		case 0:
			size = uint64(len(data) - pos)
		case 1:
			if pos+16 > len(data) {
				return
			}
			size = binary.BigEndian.Uint64(data[pos+8:])
			hdr = 16
		}
		if size < hdr || size > uint64(len(data)-pos) {
			return
		}
		if !fn(typ, data[pos+int(hdr):pos+int(size)]) {
			return
		}
		pos += int(size)
	}
}

func findBox(data []byte, want string) ([]byte, bool) {
	var (
		out   []byte
		found bool
	)
	walkBoxes(data, func(typ string, body []byte) bool {
		if typ == want {
			out, found = body, true
			return false
		}
		return true
	})
	return out, found
}
