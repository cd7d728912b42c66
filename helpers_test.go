package hdrsdr

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/require"

	"github.com/vearutop/hdrsdr/internal/jpegx"
)

func fillImage(w, h int, fn func(x, y int) color.Color) *image.NRGBA64 {
	img := image.NewNRGBA64(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, fn(x, y))
		}
	}
	return img
}

func solid(w, h int, c color.Color) *image.NRGBA64 {
	return fillImage(w, h, func(int, int) color.Color { return c })
}

func encodeJPEG(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}))
	return buf.Bytes()
}

func encodePNG(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// exifTIFF builds a TIFF block with a single Orientation entry in IFD0.
func exifTIFF(order binary.ByteOrder, orientation uint16) []byte {
	b := make([]byte, 8+2+12+4)
	if order == binary.BigEndian {
		copy(b, "MM")
	} else {
		copy(b, "II")
	}
	order.PutUint16(b[2:], 0x2A)
	order.PutUint32(b[4:], 8)
	order.PutUint16(b[8:], 1)
	e := b[10:]
	order.PutUint16(e[0:], tiffTagOrientation)
	order.PutUint16(e[2:], tiffTypeShort)
	order.PutUint32(e[4:], 1)
	order.PutUint16(e[8:], orientation)
	return b
}

func withEXIF(t testing.TB, jpg []byte, tiff []byte) []byte {
	t.Helper()
	out, err := jpegx.Insert(jpg, jpegx.Segment{Marker: jpegx.MarkerAPP1, Payload: append(append([]byte(nil), exifSig...), tiff...)})
	require.NoError(t, err)
	return out
}

// withICC embeds icc split into chunks of at most chunk bytes.
func withICC(t testing.TB, jpg []byte, icc []byte, chunk int) []byte {
	t.Helper()
	var segs []jpegx.Segment
	n := (len(icc) + chunk - 1) / chunk
	for i := 0; i < n; i++ {
		end := (i + 1) * chunk
		if end > len(icc) {
			end = len(icc)
		}
		p := append([]byte(nil), iccSig...)
		p = append(p, byte(i+1), byte(n))
		p = append(p, icc[i*chunk:end]...)
		segs = append(segs, jpegx.Segment{Marker: jpegx.MarkerAPP2, Payload: p})
	}
	// Out of order on purpose, readers sort by sequence number.
	for i, j := 0, len(segs)-1; i < j; i, j = i+1, j-1 {
		segs[i], segs[j] = segs[j], segs[i]
	}
	out, err := jpegx.Insert(jpg, segs...)
	require.NoError(t, err)
	return out
}

// withPNGChunk inserts a chunk right after IHDR.
func withPNGChunk(data []byte, typ string, body []byte) []byte {
	const ihdrEnd = 8 + 8 + 13 + 4
	var chunk bytes.Buffer
	_ = binary.Write(&chunk, binary.BigEndian, uint32(len(body)))
	chunk.WriteString(typ)
	chunk.Write(body)
	crc := crc32.NewIEEE()
	crc.Write([]byte(typ))
	crc.Write(body)
	_ = binary.Write(&chunk, binary.BigEndian, crc.Sum32())

	out := append([]byte(nil), data[:ihdrEnd]...)
	out = append(out, chunk.Bytes()...)
	return append(out, data[ihdrEnd:]...)
}

func iccpChunk(t testing.TB, icc []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("ICC Profile")
	buf.Write([]byte{0, 0})
	zw := zlib.NewWriter(&buf)
	_, err := zw.Write(icc)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

type iccSpec struct {
	space string
	desc  string
	red   *[3]float64
	green *[3]float64
	// gamma selects a curv TRC, zero selects the parametric sRGB curve.
	gamma float64
	noTRC bool
	// mluc stores desc as a multiLocalizedUnicodeType.
	mluc bool
	// extra tags are appended verbatim, keyed by signature.
	extra [][2]string
}

var (
	p3Red      = [3]float64{0.5151, 0.2412, -0.0011}
	p3Green    = [3]float64{0.2919, 0.6922, 0.0419}
	bt2020Red  = [3]float64{0.6734, 0.2790, -0.0019}
	bt2020Grn  = [3]float64{0.1656, 0.6753, 0.0300}
	srgbRed    = [3]float64{0.4361, 0.2225, 0.0139}
	srgbGreen  = [3]float64{0.3851, 0.7169, 0.0971}
	adobeRed   = [3]float64{0.6097, 0.3111, 0.0195}
	adobeGreen = [3]float64{0.2053, 0.6257, 0.0609}
)

func s15(v float64) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(int32(math.Round(v*65536))))
	return b
}

// buildICC assembles a minimal ICC v2 profile.
func buildICC(s iccSpec) []byte {
	type tag struct {
		sig  string
		data []byte
	}
	var tags []tag
	switch {
	case s.desc != "" && s.mluc:
		d := []byte("mluc\x00\x00\x00\x00")
		d = binary.BigEndian.AppendUint32(d, 1)
		d = binary.BigEndian.AppendUint32(d, 12)
		d = append(d, "enUS"...)
		units := utf16.Encode([]rune(s.desc))
		d = binary.BigEndian.AppendUint32(d, uint32(2*len(units)))
		d = binary.BigEndian.AppendUint32(d, 28)
		for _, u := range units {
			d = binary.BigEndian.AppendUint16(d, u)
		}
		tags = append(tags, tag{sig: "desc", data: d})
	case s.desc != "":
		d := []byte("desc\x00\x00\x00\x00")
		d = binary.BigEndian.AppendUint32(d, uint32(len(s.desc)+1))
		d = append(d, s.desc...)
		d = append(d, 0)
		tags = append(tags, tag{sig: "desc", data: d})
	}
	for _, e := range s.extra {
		tags = append(tags, tag{sig: e[0], data: []byte(e[1])})
	}
	xyz := func(v [3]float64) []byte {
		d := []byte("XYZ \x00\x00\x00\x00")
		for _, c := range v {
			d = append(d, s15(c)...)
		}
		return d
	}
	if s.red != nil {
		tags = append(tags, tag{sig: "rXYZ", data: xyz(*s.red)})
	}
	if s.green != nil {
		tags = append(tags, tag{sig: "gXYZ", data: xyz(*s.green)})
	}
	if !s.noTRC {
		var trc []byte
		if s.gamma > 0 {
			trc = []byte("curv\x00\x00\x00\x00\x00\x00\x00\x01")
			trc = binary.BigEndian.AppendUint16(trc, uint16(math.Round(s.gamma*256)))
			trc = append(trc, 0, 0)
		} else {
			trc = []byte("para\x00\x00\x00\x00\x00\x03\x00\x00")
			for _, p := range []float64{2.4, 1 / 1.055, 0.055 / 1.055, 1 / 12.92, 0.04045} {
				trc = append(trc, s15(p)...)
			}
		}
		for _, sig := range []string{"rTRC", "gTRC", "bTRC"} {
			tags = append(tags, tag{sig: sig, data: trc})
		}
	}

	space := s.space
	if space == "" {
		space = "RGB "
	}
	header := make([]byte, iccHeaderSize)
	copy(header[12:], "mntr")
	copy(header[16:], space)
	copy(header[20:], "XYZ ")
	copy(header[36:], "acsp")

	table := binary.BigEndian.AppendUint32(nil, uint32(len(tags)))
	offset := iccHeaderSize + 4 + len(tags)*iccTagSize
	var body []byte
	for _, tg := range tags {
		for len(body)%4 != 0 {
			body = append(body, 0)
		}
		table = append(table, tg.sig...)
		table = binary.BigEndian.AppendUint32(table, uint32(offset+len(body)))
		table = binary.BigEndian.AppendUint32(table, uint32(len(tg.data)))
		body = append(body, tg.data...)
	}
	out := append(header, table...)
	out = append(out, body...)
	binary.BigEndian.PutUint32(out, uint32(len(out)))
	return out
}

func srgbAt(img image.Image, x, y int) (r, g, b uint8) {
	c := color.RGBAModel.Convert(img.At(img.Bounds().Min.X+x, img.Bounds().Min.Y+y)).(color.RGBA)
	return c.R, c.G, c.B
}

func decodeOutput(t testing.TB, data []byte) image.Image {
	t.Helper()
	img, format, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, formatJPEG, format)
	return img
}

func requireColorNear(t testing.TB, img image.Image, x, y int, want [3]uint8, tol int) {
	t.Helper()
	r, g, b := srgbAt(img, x, y)
	got := [3]uint8{r, g, b}
	for i := range got {
		d := int(got[i]) - int(want[i])
		if d < -tol || d > tol {
			t.Fatalf("pixel (%d,%d) = %v, want %v +-%d", x, y, got, want, tol)
		}
	}
}

func newStdNormalizer(t testing.TB, opts ...func(o *Options)) *Normalizer {
	t.Helper()
	opts = append([]func(o *Options){WithEncoders(StdEncoder())}, opts...)
	n, err := New(opts...)
	require.NoError(t, err)
	return n
}

type orientedDecoder struct {
	Decoder
	o Orientation
}

func (d orientedDecoder) Decode(data []byte) (*Raster, error) {
	r, err := d.Decoder.Decode(data)
	if err == nil {
		r.Info.Orientation = d.o
	}
	return r, err
}

type unavailableDecoder struct{ Decoder }

func (unavailableDecoder) Available() error { return errors.New("not built") }

type failingEncoder struct{ Encoder }

func (failingEncoder) Encode(io.Writer, image.Image, int) error { return errors.New("encoder rejected raster") }
