package hdrsdr

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

type mat3 [9]float32

var identity3 = mat3{1, 0, 0, 0, 1, 0, 0, 0, 1}

func (m mat3) mul(n mat3) mat3 {
	var out mat3
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[r*3+c] = m[r*3]*n[c] + m[r*3+1]*n[3+c] + m[r*3+2]*n[6+c]
		}
	}
	return out
}

func (m *mat3) apply(v rgb) rgb {
	return rgb{
		r: m[0]*v.r + m[1]*v.g + m[2]*v.b,
		g: m[3]*v.r + m[4]*v.g + m[5]*v.b,
		b: m[6]*v.r + m[7]*v.g + m[8]*v.b,
	}
}

// Matrices are D65 linear RGB -> XYZ.
var gamutToXYZ = map[Gamut]mat3{
	GamutSRGB: {
		0.4123908, 0.35758433, 0.1804808,
		0.212639, 0.71516865, 0.07219232,
		0.019330818, 0.11919478, 0.95053214,
	},
	GamutDisplayP3: {
		0.48657095, 0.2656677, 0.19821729,
		0.22897457, 0.69173855, 0.07928691,
		0, 0.04511338, 1.0439444,
	},
	GamutAdobeRGB: {
		0.5767309, 0.185554, 0.1881852,
		0.2973769, 0.6273491, 0.0752741,
		0.0270343, 0.0706872, 0.9911085,
	},
	GamutBT2020: {
		0.63695805, 0.1446169, 0.16888098,
		0.2627002, 0.67799807, 0.05930172,
		0, 0.02807269, 1.060985,
	},
}

var xyzToSRGB = mat3{
	3.24097, -1.5373832, -0.49861076,
	-0.96924365, 1.8759675, 0.041555058,
	0.05563008, -0.20397696, 1.0569715,
}

// gamutToSRGB returns the linear-light matrix remapping from g to sRGB primaries.
func gamutToSRGB(g Gamut) (mat3, error) {
	if g == GamutSRGB || g == GamutUnspecified {
		return identity3, nil
	}
	m, ok := gamutToXYZ[g]
	if !ok {
		return mat3{}, fmt.Errorf("unsupported gamut %d", int(g))
	}
	return xyzToSRGB.mul(m), nil
}

type rgb struct {
	r, g, b float32
}

// toSRGB8 renders the raster into an opaque 8-bit sRGB buffer taken from the pixel pool.
// Alpha is dropped by compositing over black. The returned release func must be called
// once the buffer is no longer used.
func toSRGB8(ras *Raster) (*image.RGBA, func(), error) {
	src := ras.Image
	sb := src.Bounds()
	w, h := sb.Dx(), sb.Dy()
	if w <= 0 || h <= 0 {
		return nil, nil, newError(KindDecode, "decode", fmt.Errorf("invalid dimensions %dx%d", w, h))
	}
	p := ras.Info.Profile

	m, err := gamutToSRGB(p.Gamut)
	if err != nil {
		return nil, nil, newError(KindColorConversion, "remap gamut", err)
	}

	dst, err := getRGBA(w, h)
	if err != nil {
		return nil, nil, newError(KindColorConversion, "allocate raster", err)
	}
	release := func() { putRGBA(dst) }

	if p.IsSRGB() {
		// Bit depth normalization only.
		draw.Draw(dst, dst.Rect, src, sb.Min, draw.Src)
		forceOpaque(dst)
		return dst, release, nil
	}

	lut := linearLUT(p)
	hlg := p.Transfer == TransferHLG
	parallelFor(h, func(start, end int) {
		for y := start; y < end; y++ {
			row := dst.Pix[y*dst.Stride:]
			for x := 0; x < w; x++ {
				r, g, b, _ := src.At(sb.Min.X+x, sb.Min.Y+y).RGBA()
				v := rgb{r: lut[r], g: lut[g], b: lut[b]}
				if hlg {
					v = hlgOOTF(v)
				}
				v = m.apply(v)
				i := x * 4
				row[i] = encodeSRGB8(v.r)
				row[i+1] = encodeSRGB8(v.g)
				row[i+2] = encodeSRGB8(v.b)
				row[i+3] = 0xFF
			}
		}
	})
	return dst, release, nil
}

// hlgOOTF maps HLG scene light to display light relative to SDR white.
func hlgOOTF(v rgb) rgb {
	ys := 0.2627*v.r + 0.6780*v.g + 0.0593*v.b
	if ys <= 0 {
		return rgb{}
	}
	k := powf(ys, hlgSystemGam-1) * hlgMaxNits / sdrWhiteNits
	return rgb{r: v.r * k, g: v.g * k, b: v.b * k}
}

func forceOpaque(img *image.RGBA) {
	b := img.Rect
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+b.Dx()*4]
		for i := 3; i < len(row); i += 4 {
			row[i] = 0xFF
		}
	}
}
