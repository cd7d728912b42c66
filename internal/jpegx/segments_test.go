package jpegx_test

import (
	"bytes"
	"image"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vearutop/hdrsdr/internal/jpegx"
)

func sample(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h)), nil))
	return buf.Bytes()
}

func TestInsertAndWalk(t *testing.T) {
	src := sample(t, 7, 3)
	out, err := jpegx.Insert(src,
		jpegx.Segment{Marker: jpegx.MarkerAPP1, Payload: []byte("Exif\x00\x00MM")},
		jpegx.Segment{Marker: jpegx.MarkerAPP2, Payload: []byte("ICC_PROFILE\x00\x01\x01")},
	)
	require.NoError(t, err)
	assert.Equal(t, len(src)+4+8+4+14, len(out))

	var markers []byte
	require.NoError(t, jpegx.Walk(out, func(s jpegx.Segment) bool {
		markers = append(markers, s.Marker)
		if s.Marker == jpegx.MarkerAPP1 {
			assert.Equal(t, []byte("Exif\x00\x00MM"), s.Payload)
		}
		return true
	}))
	require.GreaterOrEqual(t, len(markers), 3)
	assert.Equal(t, []byte{jpegx.MarkerAPP1, jpegx.MarkerAPP2}, markers[:2])
	assert.Contains(t, markers, byte(jpegx.MarkerDQT))
	assert.NotContains(t, markers, byte(jpegx.MarkerSOS))

	// Stops when fn returns false.
	n := 0
	require.NoError(t, jpegx.Walk(out, func(jpegx.Segment) bool {
		n++
		return false
	}))
	assert.Equal(t, 1, n)

	img, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 7, 3), img.Bounds())
}

func TestReadFrame(t *testing.T) {
	f, err := jpegx.ReadFrame(sample(t, 17, 9))
	require.NoError(t, err)
	assert.Equal(t, jpegx.Frame{Precision: 8, Width: 17, Height: 9, Components: 1}, f)

	_, err = jpegx.ReadFrame([]byte{0xFF, 0xD8, 0xFF, 0xDA, 0x00, 0x02})
	assert.ErrorIs(t, err, jpegx.ErrNoFrame)
}

func TestErrors(t *testing.T) {
	assert.False(t, jpegx.IsJPEG([]byte{0xFF}))
	assert.ErrorIs(t, jpegx.Walk([]byte("PNG..."), func(jpegx.Segment) bool { return true }), jpegx.ErrNotJPEG)

	_, err := jpegx.Insert([]byte("nope"))
	assert.ErrorIs(t, err, jpegx.ErrNotJPEG)

	_, err = jpegx.Insert(sample(t, 1, 1), jpegx.Segment{Marker: jpegx.MarkerAPP1, Payload: make([]byte, 0xFFFF)})
	assert.Error(t, err)

	bad := []byte{0xFF, 0xD8, 0xFF, 0xE1, 0x40, 0x00, 0x01}
	assert.Error(t, jpegx.Walk(bad, func(jpegx.Segment) bool { return true }))
}
