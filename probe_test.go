package hdrsdr

import (
	"bytes"
	"encoding/binary"
	"image/color"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeReader_matchesProbe(t *testing.T) {
	icc := buildICC(iccSpec{desc: "Display P3", red: &p3Red, green: &p3Green})
	jpg := withICC(t, encodeJPEG(t, solid(10, 6, red)), icc, 100)
	jpg = withEXIF(t, jpg, exifTIFF(binary.LittleEndian, 8))

	want, err := Probe(jpg)
	require.NoError(t, err)
	assert.Equal(t, OrientationRotate270, want.Orientation)
	assert.Equal(t, "display-p3", want.Gamut)
	assert.True(t, want.HasICC)

	got, err := ProbeReader(iotest.OneByteReader(bytes.NewReader(jpg)))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestProbeReader_nonJPEG(t *testing.T) {
	png := withPNGChunk(encodePNG(t, solid(3, 5, color.Gray{Y: 10})), "cICP", []byte{9, 16, 0, 1})

	info, err := ProbeReader(bytes.NewReader(png))
	require.NoError(t, err)
	assert.Equal(t, formatPNG, info.Format)
	assert.Equal(t, 3, info.Width)
	assert.Equal(t, 5, info.Height)
	assert.Equal(t, "bt2020", info.Gamut)
	assert.Equal(t, "pq", info.Transfer)
	assert.False(t, info.SRGB)
}

func TestProbeReader_errors(t *testing.T) {
	jpg := encodeJPEG(t, solid(2, 2, red))
	for name, data := range map[string][]byte{
		"empty":     nil,
		"garbage":   []byte("definitely not an image"),
		"truncated": jpg[:4],
		"no frame":  {0xFF, 0xD8, 0xFF, 0xD9},
	} {
		_, err := ProbeReader(bytes.NewReader(data))
		assert.ErrorIs(t, err, ErrDecode, name)
	}
}
