package hdrsdr

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Orientation is an EXIF orientation state (1-8).
type Orientation int

const (
	OrientationNormal     Orientation = 1
	OrientationFlipH      Orientation = 2
	OrientationRotate180  Orientation = 3
	OrientationFlipV      Orientation = 4
	OrientationTranspose  Orientation = 5 // Flip H then rotate 270 CW.
	OrientationRotate90   Orientation = 6 // Rotate 90 CW.
	OrientationTransverse Orientation = 7 // Flip H then rotate 90 CW.
	OrientationRotate270  Orientation = 8 // Rotate 270 CW.
)

func orientationFromTag(v uint32) Orientation {
	o := Orientation(v)
	if !o.Valid() {
		return OrientationNormal
	}
	return o
}

// Valid reports whether o is one of the 8 EXIF orientation states.
func (o Orientation) Valid() bool {
	return o >= OrientationNormal && o <= OrientationRotate270
}

// SwapsAxes reports whether the upright image has width and height exchanged.
func (o Orientation) SwapsAxes() bool {
	return o >= OrientationTranspose && o <= OrientationRotate270
}

func (o Orientation) String() string {
	switch o {
	case OrientationNormal:
		return "normal"
	case OrientationFlipH:
		return "flip-horizontal"
	case OrientationRotate180:
		return "rotate-180"
	case OrientationFlipV:
		return "flip-vertical"
	case OrientationTranspose:
		return "transpose"
	case OrientationRotate90:
		return "rotate-90"
	case OrientationTransverse:
		return "transverse"
	case OrientationRotate270:
		return "rotate-270"
	default:
		return fmt.Sprintf("invalid(%d)", int(o))
	}
}

// srcToDst returns the affine map from stored pixel space of a w x h image to upright space.
func (o Orientation) srcToDst(w, h int) f64.Aff3 {
	fw, fh := float64(w), float64(h)
	switch o {
	case OrientationFlipH:
		return f64.Aff3{-1, 0, fw, 0, 1, 0}
	case OrientationRotate180:
		return f64.Aff3{-1, 0, fw, 0, -1, fh}
	case OrientationFlipV:
		return f64.Aff3{1, 0, 0, 0, -1, fh}
	case OrientationTranspose:
		return f64.Aff3{0, 1, 0, 1, 0, 0}
	case OrientationRotate90:
		return f64.Aff3{0, -1, fh, 1, 0, 0}
	case OrientationTransverse:
		return f64.Aff3{0, -1, fh, -1, 0, fw}
	case OrientationRotate270:
		return f64.Aff3{0, 1, 0, -1, 0, fw}
	default:
		return f64.Aff3{1, 0, 0, 0, 1, 0}
	}
}

// applyOrientation bakes o into pixel order. For OrientationNormal src is returned as is
// with a no-op release. Failures are reported as ErrTransform, src stays valid either way.
func applyOrientation(src *image.RGBA, o Orientation) (*image.RGBA, func(), error) {
	if !o.Valid() {
		return nil, nil, newError(KindTransform, "orient", fmt.Errorf("invalid orientation %d", int(o)))
	}
	if o == OrientationNormal {
		return src, func() {}, nil
	}
	if src == nil || src.Rect.Empty() {
		return nil, nil, newError(KindTransform, "orient", fmt.Errorf("empty raster"))
	}
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dw, dh := w, h
	if o.SwapsAxes() {
		dw, dh = h, w
	}
	dst, err := getRGBA(dw, dh)
	if err != nil {
		return nil, nil, newError(KindTransform, "orient", err)
	}
	sr := image.Rect(0, 0, w, h).Add(src.Rect.Min)
	s2d := o.srcToDst(w, h)
	s2d[2] -= s2d[0]*float64(sr.Min.X) + s2d[1]*float64(sr.Min.Y)
	s2d[5] -= s2d[3]*float64(sr.Min.X) + s2d[4]*float64(sr.Min.Y)
	draw.NearestNeighbor.Transform(dst, s2d, src, sr, draw.Src, nil)
	return dst, func() { putRGBA(dst) }, nil
}
