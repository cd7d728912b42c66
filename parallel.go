package hdrsdr

import (
	"fmt"
	"image"
	"runtime"
	"sync"
)

// maxRasterPixels bounds a single raster allocation.
const maxRasterPixels = 1 << 28

var pixPool = sync.Pool{
	New: func() any {
		buf := make([]uint8, 0)
		return &buf
	},
}

var (
	workerSemOnce sync.Once
	workerSem     chan struct{}
)

// getRGBA returns a w x h raster backed by a pooled buffer.
// Pixels are not cleared, callers overwrite every pixel.
func getRGBA(w, h int) (*image.RGBA, error) {
	if w <= 0 || h <= 0 || w > maxRasterPixels/h {
		return nil, fmt.Errorf("raster %dx%d out of bounds", w, h)
	}
	n := w * h * 4
	bufPtr := pixPool.Get().(*[]uint8)
	buf := *bufPtr
	if cap(buf) < n {
		buf = make([]uint8, n)
	}
	return &image.RGBA{Pix: buf[:n], Stride: 4 * w, Rect: image.Rect(0, 0, w, h)}, nil
}

// putRGBA returns the raster buffer to the pool, img must not be used afterwards.
func putRGBA(img *image.RGBA) {
	if img == nil || img.Pix == nil {
		return
	}
	buf := img.Pix[:0]
	img.Pix = nil
	pixPool.Put(&buf)
}

func parallelFor(total int, fn func(start, end int)) {
	if total <= 0 {
		return
	}
	capacity := runtime.GOMAXPROCS(0)
	workerSemOnce.Do(func() {
		workerSem = make(chan struct{}, capacity)
	})
	if cap(workerSem) < capacity {
		capacity = cap(workerSem)
	}
	workers := capacity
	if workers > total {
		workers = total
	}
	if workers <= 1 {
		fn(0, total)
		return
	}
	step := (total + workers - 1) / workers
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		start := i * step
		end := start + step
		if end > total {
			end = total
		}
		if start >= end {
			break
		}
		workerSem <- struct{}{}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			defer func() { <-workerSem }()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}
