package hdrsdr

import (
	"encoding/binary"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoderByName(t *testing.T) {
	for _, name := range []string{"wide-gamut", "color-managed", "basic"} {
		d, err := DecoderByName(name)
		require.NoError(t, err)
		assert.Equal(t, name, d.Name())
		assert.True(t, d.Capabilities().Has(CapBasicDecode))
	}

	_, err := DecoderByName("libvips")
	assert.ErrorIs(t, err, ErrArgument)
}

func TestCapability(t *testing.T) {
	assert.True(t, WideGamutDecoder().Capabilities().Has(CapColorManaged|CapWideGamut))
	assert.True(t, ColorManagedDecoder().Capabilities().Has(CapColorManaged))
	assert.False(t, ColorManagedDecoder().Capabilities().Has(CapWideGamut))
	assert.False(t, BasicDecoder().Capabilities().Has(CapColorManaged))
}

func TestDecoder_Available(t *testing.T) {
	assert.NoError(t, ColorManagedDecoder().Available())
	assert.NoError(t, BasicDecoder().Available())

	err := WideGamutDecoder().Available()
	if heifRegistered() {
		assert.NoError(t, err)
	} else {
		assert.ErrorIs(t, err, ErrNoBackend)
	}
}

func TestDecoder_profileGating(t *testing.T) {
	pq := buildICC(iccSpec{desc: "Rec. 2100 PQ"})
	jpg := withICC(t, encodeJPEG(t, solid(4, 4, red)), pq, 4096)
	png := withPNGChunk(encodePNG(t, solid(4, 4, red)), "cICP", []byte{12, 13, 0, 1})

	for _, tc := range []struct {
		dec       Decoder
		data      []byte
		gamut     Gamut
		transfer  Transfer
		hasICC    bool
		wantsSRGB bool
	}{
		{dec: WideGamutDecoder(), data: jpg, gamut: GamutBT2020, transfer: TransferPQ, hasICC: true},
		{dec: ColorManagedDecoder(), data: jpg, gamut: GamutBT2020, transfer: TransferSRGB, hasICC: true},
		{dec: BasicDecoder(), data: jpg, gamut: GamutSRGB, transfer: TransferSRGB, hasICC: true, wantsSRGB: true},
		{dec: WideGamutDecoder(), data: png, gamut: GamutDisplayP3, transfer: TransferSRGB},
		{dec: ColorManagedDecoder(), data: png, gamut: GamutSRGB, transfer: TransferSRGB, wantsSRGB: true},
	} {
		ras, err := tc.dec.Decode(tc.data)
		require.NoError(t, err)
		name := tc.dec.Name() + "/" + ras.Info.Format
		assert.Equal(t, tc.gamut, ras.Info.Profile.Gamut, name)
		assert.Equal(t, tc.transfer, ras.Info.Profile.Transfer, name)
		assert.Equal(t, tc.hasICC, ras.Info.HasICC, name)
		assert.Equal(t, tc.wantsSRGB, ras.Info.SRGB, name)
		assert.Equal(t, 4, ras.Info.Width)
	}
}

func TestDecoder_Probe(t *testing.T) {
	data := withEXIF(t, encodeJPEG(t, solid(6, 4, red)), exifTIFF(binary.BigEndian, 6))
	info, err := BasicDecoder().Probe(data)
	require.NoError(t, err)
	assert.Equal(t, Info{
		Format:      formatJPEG,
		Width:       6,
		Height:      4,
		BitDepth:    8,
		Orientation: OrientationRotate90,
		Profile:     srgbProfile,
		Gamut:       "srgb",
		Transfer:    "srgb",
		SRGB:        true,
	}, *info)

	info, err = BasicDecoder().Probe(encodePNG(t, solid(2, 2, color.NRGBA64{R: 1, A: 0x8000})))
	require.NoError(t, err)
	assert.Equal(t, 16, info.BitDepth)

	_, err = BasicDecoder().Probe(nil)
	assert.ErrorIs(t, err, ErrDecode)
	_, err = BasicDecoder().Probe([]byte("not an image"))
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDecoder_Decode_errors(t *testing.T) {
	for _, data := range [][]byte{nil, []byte("GIF89a"), encodeJPEG(t, solid(2, 2, red))[:40]} {
		_, err := BasicDecoder().Decode(data)
		assert.ErrorIs(t, err, ErrDecode)
		assert.Equal(t, "dec", CodeOf(err))
	}
}
