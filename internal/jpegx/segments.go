package jpegx

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrNotJPEG is returned when data does not start with SOI.
	ErrNotJPEG = errors.New("not a jpeg")
	// ErrNoFrame is returned when no SOF segment precedes the first scan.
	ErrNoFrame = errors.New("jpeg frame header missing")
)

// Segment is a marker segment of the JPEG header.
type Segment struct {
	Marker  byte
	Payload []byte
}

// IsJPEG reports whether data starts with the SOI marker.
func IsJPEG(data []byte) bool {
	return len(data) >= 2 && data[0] == MarkerStart && data[1] == MarkerSOI
}

// Walk calls fn for every marker segment before the first scan.
// Payloads alias data. Walking stops early when fn returns false.
func Walk(data []byte, fn func(s Segment) bool) error {
	if len(data) < 4 || !IsJPEG(data) {
		return ErrNotJPEG
	}
	pos := 2
	for pos+3 < len(data) {
		if data[pos] != MarkerStart {
			pos++
			continue
		}
		for pos < len(data) && data[pos] == MarkerStart {
			pos++
		}
		if pos >= len(data) {
			break
		}
		marker := data[pos]
		pos++
		if marker == MarkerSOS || marker == MarkerEOI {
			return nil
		}
		if isStandalone(marker) {
			continue
		}
		if pos+1 >= len(data) {
			return errors.New("truncated marker")
		}
		segLen := int(binary.BigEndian.Uint16(data[pos:]))
		if segLen < 2 || pos+segLen > len(data) {
			return errors.New("invalid segment length")
		}
		if !fn(Segment{Marker: marker, Payload: data[pos+2 : pos+segLen]}) {
			return nil
		}
		pos += segLen
	}
	return nil
}

// Frame is the content of a SOF segment.
type Frame struct {
	Precision  int
	Width      int
	Height     int
	Components int
}

// ReadFrame returns the frame header of the first frame.
func ReadFrame(data []byte) (Frame, error) {
	var (
		f     Frame
		found bool
		ferr  error
	)
	err := Walk(data, func(s Segment) bool {
		if !isSOF(s.Marker) {
			return true
		}
		found = true
		seg := s.Payload
		if len(seg) < 6 {
			ferr = errors.New("truncated sof")
			return false
		}
		f = Frame{
			Precision:  int(seg[0]),
			Height:     int(binary.BigEndian.Uint16(seg[1:3])),
			Width:      int(binary.BigEndian.Uint16(seg[3:5])),
			Components: int(seg[5]),
		}
		if f.Components < 1 || len(seg) < 6+3*f.Components {
			ferr = fmt.Errorf("invalid component count %d", f.Components)
		}
		return false
	})
	if err != nil {
		return Frame{}, err
	}
	if ferr != nil {
		return Frame{}, ferr
	}
	if !found {
		return Frame{}, ErrNoFrame
	}
	return f, nil
}

func writeSegment(out *bytes.Buffer, s Segment) error {
	if len(s.Payload)+2 > 0xFFFF {
		return fmt.Errorf("segment payload too large: %d", len(s.Payload))
	}
	out.WriteByte(MarkerStart)
	out.WriteByte(s.Marker)
	length := uint16(len(s.Payload) + 2)
	out.WriteByte(byte(length >> 8))
	out.WriteByte(byte(length))
	out.Write(s.Payload)
	return nil
}

// Insert returns a copy of data with segs placed right after SOI.
func Insert(data []byte, segs ...Segment) ([]byte, error) {
	if !IsJPEG(data) {
		return nil, ErrNotJPEG
	}
	var out bytes.Buffer
	out.Grow(len(data) + 64)
	out.WriteByte(MarkerStart)
	out.WriteByte(MarkerSOI)
	for _, s := range segs {
		if err := writeSegment(&out, s); err != nil {
			return nil, err
		}
	}
	out.Write(data[2:])
	return out.Bytes(), nil
}
