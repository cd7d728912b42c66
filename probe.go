package hdrsdr

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"sort"

	"github.com/vearutop/hdrsdr/internal/jpegx"
)

// Probe describes data with the wide-gamut decoder without decoding pixels.
func Probe(data []byte) (*Info, error) {
	return WideGamutDecoder().Probe(data)
}

// ProbeReader describes an image read from r. JPEG streams are read only up to the
// first scan, other formats are read fully.
func ProbeReader(r io.Reader) (*Info, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(2)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, newError(KindDecode, "probe", err)
	}
	if !jpegx.IsJPEG(head) {
		data, err := io.ReadAll(br)
		if err != nil {
			return nil, newError(KindDecode, "probe", err)
		}
		return Probe(data)
	}
	_, _ = br.Discard(2)

	info, err := probeJPEGStream(br)
	if err != nil {
		return nil, newError(KindDecode, "probe", err)
	}
	return info, nil
}

func probeJPEGStream(br *bufio.Reader) (*Info, error) {
	m := containerMeta{format: formatJPEG, orientation: OrientationNormal}
	var (
		iccSegs []iccSegment
		frame   *jpegx.Frame
	)
	for frame == nil {
		marker, err := readMarker(br)
		if err != nil {
			return nil, err
		}
		switch marker {
		case jpegx.MarkerEOI, jpegx.MarkerSOS:
			return nil, errors.New("jpeg frame header missing")
		case jpegx.MarkerAPP1, jpegx.MarkerAPP2, 0xC0, 0xC1, 0xC2, 0xC3, 0xC5, 0xC6, 0xC7,
			0xC9, 0xCA, 0xCB, 0xCD, 0xCE, 0xCF:
			payload, err := readSegment(br)
			if err != nil {
				return nil, err
			}
			switch {
			case marker == jpegx.MarkerAPP1 && bytes.HasPrefix(payload, exifSig):
				m.orientation = exifOrientation(payload[len(exifSig):])
			case marker == jpegx.MarkerAPP2 && bytes.HasPrefix(payload, iccSig) && len(payload) >= len(iccSig)+2:
				iccSegs = append(iccSegs, iccSegment{seq: int(payload[len(iccSig)]), data: payload[len(iccSig)+2:]})
			case marker != jpegx.MarkerAPP1 && marker != jpegx.MarkerAPP2:
				f, err := frameFromSOF(marker, payload)
				if err != nil {
					return nil, err
				}
				frame = &f
			}
		default:
			if (marker >= 0xD0 && marker <= 0xD7) || marker == 0x01 {
				continue
			}
			if err := discardSegment(br); err != nil {
				return nil, err
			}
		}
	}
	sort.SliceStable(iccSegs, func(i, j int) bool { return iccSegs[i].seq < iccSegs[j].seq })
	for _, s := range iccSegs {
		m.icc = append(m.icc, s.data...)
	}
	m.bitDepth = frame.Precision

	d := WideGamutDecoder().(managedDecoder)
	info := d.info(m, formatJPEG, frame.Width, frame.Height)
	return &info, nil
}

func frameFromSOF(marker byte, seg []byte) (jpegx.Frame, error) {
	// Reuse the in-memory parser on a minimal SOI+SOF stream.
	buf := make([]byte, 0, len(seg)+6)
	buf = append(buf, jpegx.MarkerStart, jpegx.MarkerSOI, jpegx.MarkerStart, marker)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(seg)+2))
	buf = append(buf, seg...)
	return jpegx.ReadFrame(buf)
}

func readMarker(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		if b != jpegx.MarkerStart {
			continue
		}
		for {
			m, err := br.ReadByte()
			if err != nil {
				return 0, err
			}
			if m != jpegx.MarkerStart {
				return m, nil
			}
		}
	}
}

func readSegment(br *bufio.Reader) ([]byte, error) {
	length, err := readU16(br)
	if err != nil {
		return nil, err
	}
	if length < 2 {
		return nil, errors.New("invalid segment length")
	}
	buf := make([]byte, int(length-2))
	if _, err := io.ReadFull(br, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func discardSegment(br *bufio.Reader) error {
	length, err := readU16(br)
	if err != nil {
		return err
	}
	if length < 2 {
		return errors.New("invalid segment length")
	}
	_, err = br.Discard(int(length - 2))
	return err
}

func readU16(br *bufio.Reader) (uint16, error) {
	hi, err := br.ReadByte()
	if err != nil {
		return 0, err
	}
	lo, err := br.ReadByte()
	if err != nil {
		return 0, err
	}
	return uint16(hi)<<8 | uint16(lo), nil
}
