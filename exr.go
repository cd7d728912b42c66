package hdrsdr

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
)

// OpenEXR scanline files hold scene-linear light, 1.0 is SDR white.
// Tiled, deep and multipart files are rejected.

const (
	exrMagic     = 20000630
	exrMagicText = "v/1\x01"
	exrMaxPixels = 1 << 28

	exrFlagTiled     = 0x200
	exrFlagDeep      = 0x800
	exrFlagMultipart = 0x1000
)

const (
	exrCompressionNone = 0
	exrCompressionZips = 2
	exrCompressionZip  = 3
)

const (
	exrPixelUint  = 0
	exrPixelHalf  = 1
	exrPixelFloat = 2
)

// Channel roles, values index the RGB triplet.
const (
	exrRoleOther = -2
	exrRoleY     = -1
	exrRoleR     = 0
	exrRoleG     = 1
	exrRoleB     = 2
)

func init() {
	image.RegisterFormat(formatEXR, exrMagicText, decodeEXR, decodeEXRConfig)
}

type exrChannel struct {
	name      string
	pixelType int32
	xSampling int32
	ySampling int32
	role      int
}

func (c exrChannel) size() int {
	if c.pixelType == exrPixelHalf {
		return 2
	}
	return 4
}

type exrHeader struct {
	channels    []exrChannel
	dataWindow  image.Rectangle
	compression byte
	// chromaticities are CIE xy of red, green, blue and white.
	chromaticities *[8]float32
	// headerEnd is the offset of the line offset table.
	headerEnd int
}

func (h exrHeader) bitDepth() int {
	depth := 0
	for _, c := range h.channels {
		if d := c.size() * 8; d > depth {
			depth = d
		}
	}
	return depth
}

func (h exrHeader) linesPerBlock() int {
	if h.compression == exrCompressionZip {
		return 16
	}
	return 1
}

// gamut matches the red and green chromaticities against known primaries,
// Rec. 709 is assumed when the attribute is absent.
func (h exrHeader) gamut() (Gamut, bool) {
	if h.chromaticities == nil {
		return GamutSRGB, true
	}
	c := h.chromaticities
	for _, p := range exrPrimaries {
		if near(c[0], p.xy[0]) && near(c[1], p.xy[1]) && near(c[2], p.xy[2]) && near(c[3], p.xy[3]) {
			return p.gamut, true
		}
	}
	return GamutUnspecified, false
}

var exrPrimaries = []struct {
	gamut Gamut
	xy    [4]float32 // Red x, y, green x, y.
}{
	{gamut: GamutSRGB, xy: [4]float32{0.64, 0.33, 0.30, 0.60}},
	{gamut: GamutDisplayP3, xy: [4]float32{0.680, 0.320, 0.265, 0.690}},
	{gamut: GamutAdobeRGB, xy: [4]float32{0.64, 0.33, 0.21, 0.71}},
	{gamut: GamutBT2020, xy: [4]float32{0.708, 0.292, 0.170, 0.797}},
}

func near(a, b float32) bool {
	return math.Abs(float64(a-b)) < 0.005
}

func readEXRHeader(data []byte) (exrHeader, error) {
	var h exrHeader
	r := bytes.NewReader(data)
	magic, err := readU32(r)
	if err != nil {
		return h, err
	}
	if magic != exrMagic {
		return h, errors.New("not an OpenEXR file")
	}
	version, err := readU32(r)
	if err != nil {
		return h, err
	}
	switch {
	case version&exrFlagTiled != 0:
		return h, errors.New("tiled OpenEXR not supported")
	case version&exrFlagDeep != 0:
		return h, errors.New("deep OpenEXR not supported")
	case version&exrFlagMultipart != 0:
		return h, errors.New("multipart OpenEXR not supported")
	}

	hasWindow := false
	for {
		name, err := readCString(r)
		if err != nil {
			return h, err
		}
		if name == "" {
			break
		}
		typ, err := readCString(r)
		if err != nil {
			return h, err
		}
		size, err := readU32(r)
		if err != nil {
			return h, err
		}
		if int(size) > r.Len() {
			return h, errors.New("OpenEXR attribute truncated")
		}
		payload := make([]byte, size)
		_, _ = io.ReadFull(r, payload)

		switch {
		case name == "channels" && typ == "chlist":
			if h.channels, err = parseEXRChannels(payload); err != nil {
				return h, err
			}
		case name == "dataWindow" && typ == "box2i" && len(payload) == 16:
			v := func(i int) int { return int(int32(binary.LittleEndian.Uint32(payload[i*4:]))) }
			h.dataWindow = image.Rect(v(0), v(1), v(2)+1, v(3)+1)
			hasWindow = true
		case name == "compression" && len(payload) == 1:
			h.compression = payload[0]
		case name == "chromaticities" && typ == "chromaticities" && len(payload) == 32:
			var c [8]float32
			for i := range c {
				c[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[i*4:]))
			}
			h.chromaticities = &c
		}
	}

	switch {
	case len(h.channels) == 0:
		return h, errors.New("OpenEXR missing channels")
	case !hasWindow:
		return h, errors.New("OpenEXR missing dataWindow")
	case h.dataWindow.Empty():
		return h, errors.New("invalid OpenEXR dimensions")
	}
	switch h.compression {
	case exrCompressionNone, exrCompressionZips, exrCompressionZip:
	default:
		return h, fmt.Errorf("unsupported OpenEXR compression %d", h.compression)
	}
	for _, c := range h.channels {
		if c.xSampling != 1 || c.ySampling != 1 {
			return h, errors.New("OpenEXR subsampled channels are not supported")
		}
	}
	h.headerEnd = len(data) - r.Len()
	return h, nil
}

func parseEXRChannels(data []byte) ([]exrChannel, error) {
	r := bytes.NewReader(data)
	var channels []exrChannel
	hasColor := false
	for {
		name, err := readCString(r)
		if err != nil {
			return nil, err
		}
		if name == "" {
			break
		}
		// Pixel type, pLinear and 3 reserved bytes, x and y sampling.
		var rec [16]byte
		if _, err := io.ReadFull(r, rec[:]); err != nil {
			return nil, err
		}
		c := exrChannel{
			name:      name,
			pixelType: int32(binary.LittleEndian.Uint32(rec[0:])),
			xSampling: int32(binary.LittleEndian.Uint32(rec[8:])),
			ySampling: int32(binary.LittleEndian.Uint32(rec[12:])),
			role:      exrRoleOther,
		}
		if c.pixelType < exrPixelUint || c.pixelType > exrPixelFloat {
			return nil, fmt.Errorf("unsupported OpenEXR pixel type %d", c.pixelType)
		}
		switch name {
		case "R", "r":
			c.role = exrRoleR
		case "G", "g":
			c.role = exrRoleG
		case "B", "b":
			c.role = exrRoleB
		case "Y", "y":
			c.role = exrRoleY
		}
		hasColor = hasColor || c.role != exrRoleOther
		channels = append(channels, c)
	}
	if !hasColor {
		return nil, errors.New("OpenEXR missing R/G/B or Y channels")
	}
	return channels, nil
}

// exrImage is a decoded OpenEXR raster. At clips scene-linear values to [0, 1].
type exrImage struct {
	rect image.Rectangle
	pix  []float32 // RGB triplets.
}

func (m *exrImage) ColorModel() color.Model { return color.RGBA64Model }

func (m *exrImage) Bounds() image.Rectangle { return m.rect }

func (m *exrImage) At(x, y int) color.Color {
	return m.RGBA64At(x, y)
}

func (m *exrImage) RGBA64At(x, y int) color.RGBA64 {
	if !(image.Point{X: x, Y: y}.In(m.rect)) {
		return color.RGBA64{}
	}
	i := ((y-m.rect.Min.Y)*m.rect.Dx() + (x - m.rect.Min.X)) * 3
	return color.RGBA64{R: linear16(m.pix[i]), G: linear16(m.pix[i+1]), B: linear16(m.pix[i+2]), A: 0xFFFF}
}

func linear16(v float32) uint16 {
	if !(v > 0) {
		return 0
	}
	if v >= 1 {
		return 0xFFFF
	}
	return uint16(v*0xFFFF + 0.5)
}

func decodeEXRConfig(r io.Reader) (image.Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return image.Config{}, err
	}
	h, err := readEXRHeader(data)
	if err != nil {
		return image.Config{}, err
	}
	return image.Config{ColorModel: color.RGBA64Model, Width: h.dataWindow.Dx(), Height: h.dataWindow.Dy()}, nil
}

func decodeEXR(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	h, err := readEXRHeader(data)
	if err != nil {
		return nil, err
	}

	w, ht := h.dataWindow.Dx(), h.dataWindow.Dy()
	if int64(w)*int64(ht) > exrMaxPixels {
		return nil, fmt.Errorf("OpenEXR image too large: %dx%d", w, ht)
	}

	blocks, err := exrBlocks(h, data)
	if err != nil {
		return nil, err
	}

	img := &exrImage{rect: image.Rect(0, 0, w, ht), pix: make([]float32, w*ht*3)}
	for _, blk := range blocks {
		raw, err := exrInflate(h.compression, blk.data, blk.want)
		if err != nil {
			return nil, err
		}
		if err := img.setLines(h.channels, blk.y, blk.n, raw); err != nil {
			return nil, err
		}
	}
	return img, nil
}

type exrBlock struct {
	y, n int
	want int
	data []byte
}

// maxDeflateRatio bounds how much a zlib stream can expand.
const maxDeflateRatio = 1032

// exrBlocks resolves the line offset table without touching pixel storage.
func exrBlocks(h exrHeader, data []byte) ([]exrBlock, error) {
	w, ht := h.dataWindow.Dx(), h.dataWindow.Dy()
	lines := h.linesPerBlock()
	count := (ht + lines - 1) / lines
	table := h.headerEnd
	if table > len(data) || count > (len(data)-table)/16 {
		return nil, errors.New("OpenEXR offset table truncated")
	}

	pixelBytes := 0
	for _, c := range h.channels {
		pixelBytes += c.size()
	}

	blocks := make([]exrBlock, 0, count)
	stored, total := 0, 0
	for i := 0; i < count; i++ {
		off := binary.LittleEndian.Uint64(data[table+i*8:])
		if off == 0 {
			continue
		}
		if off >= uint64(len(data)) || uint64(len(data))-off < 8 {
			return nil, errors.New("OpenEXR block offset out of range")
		}
		blk := data[int(off):]
		y := int(int32(binary.LittleEndian.Uint32(blk))) - h.dataWindow.Min.Y
		size := binary.LittleEndian.Uint32(blk[4:])
		if uint64(size) > uint64(len(blk)-8) {
			return nil, errors.New("OpenEXR block truncated")
		}
		if y < 0 || y >= ht {
			return nil, errors.New("OpenEXR scanline out of bounds")
		}
		n := min(lines, ht-y)
		want := w * n * pixelBytes
		blocks = append(blocks, exrBlock{y: y, n: n, want: want, data: blk[8 : 8+int(size)]})
		stored += int(size)
		total += want
	}

	limit := stored
	if h.compression != exrCompressionNone {
		limit *= maxDeflateRatio
	}
	if total > limit {
		return nil, errors.New("OpenEXR pixel data truncated")
	}
	return blocks, nil
}

func exrInflate(compression byte, data []byte, want int) ([]byte, error) {
	if compression == exrCompressionNone || len(data) == want {
		// Blocks that do not shrink are stored uncompressed.
		if len(data) != want {
			return nil, errors.New("unexpected OpenEXR block size")
		}
		return data, nil
	}
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	buf, err := io.ReadAll(io.LimitReader(zr, int64(want)+1))
	if err != nil {
		return nil, err
	}
	if len(buf) != want {
		return nil, errors.New("unexpected OpenEXR decompressed size")
	}

	// Undo the delta predictor, then interleave the two byte planes.
	for i := 1; i < len(buf); i++ {
		buf[i] = byte(int(buf[i]) + int(buf[i-1]) - 128)
	}
	out := make([]byte, len(buf))
	half := (len(buf) + 1) / 2
	for i := range out {
		if i%2 == 0 {
			out[i] = buf[i/2]
		} else {
			out[i] = buf[half+i/2]
		}
	}
	return out, nil
}

// setLines stores n scanlines starting at y, channels are planar per line.
func (m *exrImage) setLines(channels []exrChannel, y, n int, data []byte) error {
	w := m.rect.Dx()
	off := 0
	for row := y; row < y+n; row++ {
		for _, c := range channels {
			size := w * c.size()
			if off+size > len(data) {
				return errors.New("OpenEXR block truncated")
			}
			line := data[off : off+size]
			off += size
			if c.role == exrRoleOther {
				continue
			}
			base := row * w * 3
			for x := 0; x < w; x++ {
				var v float32
				switch c.pixelType {
				case exrPixelHalf:
					v = halfToFloat32(binary.LittleEndian.Uint16(line[x*2:]))
				case exrPixelFloat:
					v = math.Float32frombits(binary.LittleEndian.Uint32(line[x*4:]))
				default:
					v = float32(binary.LittleEndian.Uint32(line[x*4:]))
				}
				i := base + x*3
				if c.role == exrRoleY {
					m.pix[i], m.pix[i+1], m.pix[i+2] = v, v, v
				} else {
					m.pix[i+c.role] = v
				}
			}
		}
	}
	return nil
}

// exrMeta describes an OpenEXR file as linear light in the primaries of its chromaticities.
func exrMeta(data []byte) (containerMeta, error) {
	m := containerMeta{format: formatEXR, orientation: OrientationNormal}
	h, err := readEXRHeader(data)
	if err != nil {
		return m, err
	}
	m.bitDepth = h.bitDepth()
	g, ok := h.gamut()
	if !ok {
		return m, errors.New("OpenEXR chromaticities not supported")
	}
	m.intrinsic = &ColorProfile{Gamut: g, Transfer: TransferLinear}
	return m, nil
}

func readCString(r *bytes.Reader) (string, error) {
	var buf []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		if b == 0 {
			return string(buf), nil
		}
		if len(buf) == 255 {
			return "", errors.New("OpenEXR name too long")
		}
		buf = append(buf, b)
	}
}

func readU32(r *bytes.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func halfToFloat32(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exp := int32(h>>10) & 0x1F
	mant := uint32(h & 0x03FF)

	switch exp {
	case 0:
		if mant == 0 {
			return math.Float32frombits(sign)
		}
		// Subnormal, normalize the mantissa.
		for mant&0x0400 == 0 {
			mant <<= 1
			exp--
		}
		exp++
		mant &= 0x03FF
	case 31:
		return math.Float32frombits(sign | 0x7F800000 | mant<<13)
	}
	return math.Float32frombits(sign | uint32(exp+127-15)<<23 | mant<<13)
}
