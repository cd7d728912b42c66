package hdrsdr

import (
	"image"

	"github.com/nfnt/resize"
)

// downscale fits img into a maxDim x maxDim box preserving aspect ratio.
// Images that already fit are returned as is.
func downscale(img image.Image, maxDim uint) image.Image {
	if maxDim == 0 {
		return img
	}
	b := img.Bounds()
	if uint(b.Dx()) <= maxDim && uint(b.Dy()) <= maxDim {
		return img
	}
	return resize.Thumbnail(maxDim, maxDim, img, resize.Lanczos3)
}

func fits(info Info, o Orientation, maxDim uint) bool {
	if maxDim == 0 {
		return true
	}
	w, h := info.Width, info.Height
	if o.SwapsAxes() {
		w, h = h, w
	}
	return uint(w) <= maxDim && uint(h) <= maxDim
}
