package hdrsdr

import (
	"math"
	"sync"
)

func powf(v, e float32) float32 { return float32(math.Pow(float64(v), float64(e))) }

func srgbInvOetf(v float32) float32 {
	if v <= 0.04045 {
		return v / 12.92
	}
	return powf((v+0.055)/1.055, 2.4)
}

func srgbOetf(v float32) float32 {
	if v <= 0.0031308 {
		return 12.92 * v
	}
	return 1.055*powf(v, 1.0/2.4) - 0.055
}

func bt709InvOetf(v float32) float32 {
	if v < 0.081 {
		return v / 4.5
	}
	return powf((v+0.099)/1.099, 1.0/0.45)
}

// pqEotf returns display light normalized to pqMaxNits.
func pqEotf(v float32) float32 {
	const (
		m1 = 2610.0 / 16384.0
		m2 = 2523.0 / 4096.0 * 128.0
		c1 = 3424.0 / 4096.0
		c2 = 2413.0 / 4096.0 * 32.0
		c3 = 2392.0 / 4096.0 * 32.0
	)
	p := powf(v, 1.0/m2)
	num := p - c1
	if num < 0 {
		num = 0
	}
	den := c2 - c3*p
	if den <= 0 {
		return 1
	}
	return powf(num/den, 1.0/m1)
}

// hlgInvOetf returns scene light in [0, 1].
func hlgInvOetf(v float32) float32 {
	const (
		a = 0.17883277
		b = 0.28466892
		c = 0.55991073
	)
	if v <= 0.5 {
		return v * v / 3
	}
	return (float32(math.Exp(float64((v-c)/a))) + b) / 12
}

// linearize maps an encoded value in [0, 1] to linear light relative to SDR white.
// HLG returns scene light, the OOTF is applied per pixel.
func linearize(v float32, p ColorProfile) float32 {
	switch p.Transfer {
	case TransferLinear:
		return v
	case TransferGamma:
		if p.Gamma <= 0 {
			return srgbInvOetf(v)
		}
		return powf(v, p.Gamma)
	case TransferBT709:
		return bt709InvOetf(v)
	case TransferPQ:
		return pqEotf(v) * pqMaxNits / sdrWhiteNits
	case TransferHLG:
		return hlgInvOetf(v)
	default:
		return srgbInvOetf(v)
	}
}

type lutKey struct {
	transfer Transfer
	gamma    float32
}

// linearLUTs caches 16-bit to linear tables per transfer function.
var linearLUTs sync.Map

func linearLUT(p ColorProfile) *[65536]float32 {
	key := lutKey{transfer: p.Transfer, gamma: p.Gamma}
	if v, ok := linearLUTs.Load(key); ok {
		return v.(*[65536]float32)
	}
	lut := new([65536]float32)
	for i := range lut {
		lut[i] = linearize(float32(i)/65535.0, p)
	}
	v, _ := linearLUTs.LoadOrStore(key, lut)
	return v.(*[65536]float32)
}

const encodeLUTSize = 16384

var (
	srgbEncodeOnce sync.Once
	srgbEncode     [encodeLUTSize]uint8
)

// encodeSRGB8 clips linear light to [0, 1] and applies the sRGB OETF.
func encodeSRGB8(v float32) uint8 {
	srgbEncodeOnce.Do(func() {
		for i := range srgbEncode {
			srgbEncode[i] = clampToByte(srgbOetf(float32(i)/(encodeLUTSize-1)) * 255.0)
		}
	})
	if !(v > 0) {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return srgbEncode[int(v*(encodeLUTSize-1)+0.5)]
}

func clampToByte(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}

func clampQuality(q int) int {
	if q < minQuality {
		return minQuality
	}
	if q > maxQuality {
		return maxQuality
	}
	return q
}
