package hdrsdr

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// uprightSource returns the stored pixel shown at upright (x, y) for a w x h stored image.
func uprightSource(o Orientation, w, h, x, y int) (int, int) {
	switch o {
	case OrientationFlipH:
		return w - 1 - x, y
	case OrientationRotate180:
		return w - 1 - x, h - 1 - y
	case OrientationFlipV:
		return x, h - 1 - y
	case OrientationTranspose:
		return y, x
	case OrientationRotate90:
		return y, h - 1 - x
	case OrientationTransverse:
		return w - 1 - y, h - 1 - x
	case OrientationRotate270:
		return w - 1 - y, x
	default:
		return x, y
	}
}

func labelled(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 7, A: 255})
		}
	}
	return img
}

func TestApplyOrientation_allStates(t *testing.T) {
	const w, h = 5, 3
	src := labelled(w, h)

	for o := OrientationNormal; o <= OrientationRotate270; o++ {
		t.Run(o.String(), func(t *testing.T) {
			dst, release, err := applyOrientation(src, o)
			require.NoError(t, err)
			defer release()

			dw, dh := w, h
			if o.SwapsAxes() {
				dw, dh = h, w
			}
			require.Equal(t, image.Rect(0, 0, dw, dh), dst.Rect)
			for y := 0; y < dh; y++ {
				for x := 0; x < dw; x++ {
					sx, sy := uprightSource(o, w, h, x, y)
					if got, want := dst.RGBAAt(x, y), src.RGBAAt(sx, sy); got != want {
						t.Fatalf("%s: dst(%d,%d) = %v, want src(%d,%d) = %v", o, x, y, got, sx, sy, want)
					}
				}
			}
		})
	}
}

func TestApplyOrientation_subImage(t *testing.T) {
	full := labelled(6, 4)
	src := full.SubImage(image.Rect(2, 1, 6, 4)).(*image.RGBA)

	dst, release, err := applyOrientation(src, OrientationRotate90)
	require.NoError(t, err)
	defer release()

	require.Equal(t, image.Rect(0, 0, 3, 4), dst.Rect)
	// Upright top-left comes from stored bottom-left.
	assert.Equal(t, full.RGBAAt(2, 3), dst.RGBAAt(0, 0))
	assert.Equal(t, full.RGBAAt(5, 1), dst.RGBAAt(2, 3))
}

func TestApplyOrientation_normalIsNoop(t *testing.T) {
	src := labelled(2, 2)
	dst, release, err := applyOrientation(src, OrientationNormal)
	require.NoError(t, err)
	release()
	assert.Same(t, src, dst)
}

func TestApplyOrientation_errors(t *testing.T) {
	_, _, err := applyOrientation(labelled(2, 2), 9)
	assert.ErrorIs(t, err, ErrTransform)

	_, _, err = applyOrientation(&image.RGBA{}, OrientationRotate90)
	assert.ErrorIs(t, err, ErrTransform)
	assert.Equal(t, "xform", CodeOf(err))
}

func TestOrientation(t *testing.T) {
	assert.Equal(t, OrientationNormal, orientationFromTag(0))
	assert.Equal(t, OrientationNormal, orientationFromTag(9))
	assert.Equal(t, OrientationRotate90, orientationFromTag(6))
	assert.False(t, OrientationFlipV.SwapsAxes())
	assert.True(t, OrientationTranspose.SwapsAxes())
	assert.Equal(t, "invalid(12)", Orientation(12).String())
}
