package hdrsdr

import (
	"encoding/binary"
	"errors"
)

const (
	tiffTagBitsPerSample = 0x0102
	tiffTagOrientation   = 0x0112
	tiffTagICCProfile    = 0x8773
)

const (
	tiffTypeByte      = 1
	tiffTypeASCII     = 2
	tiffTypeShort     = 3
	tiffTypeLong      = 4
	tiffTypeRational  = 5
	tiffTypeUndefined = 7
	tiffTypeSLong     = 9
	tiffTypeSRational = 10
	tiffTypeFloat     = 11
	tiffTypeDouble    = 12
)

const maxIFDEntries = 1024

type tiffEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	value [4]byte
}

func (e tiffEntry) size() int {
	var unit int
	switch e.typ {
	case tiffTypeByte, tiffTypeASCII, tiffTypeUndefined:
		unit = 1
	case tiffTypeShort:
		unit = 2
	case tiffTypeLong, tiffTypeSLong, tiffTypeFloat:
		unit = 4
	case tiffTypeRational, tiffTypeSRational, tiffTypeDouble:
		unit = 8
	default:
		return -1
	}
	if e.count > 1<<28 {
		return -1
	}
	return unit * int(e.count)
}

// payload returns the value bytes, resolving the offset for values larger than 4 bytes.
func (e tiffEntry) payload(tiff []byte, order binary.ByteOrder) ([]byte, bool) {
	n := e.size()
	if n < 0 {
		return nil, false
	}
	if n <= 4 {
		return e.value[:n], true
	}
	off := int(order.Uint32(e.value[:]))
	if off < 0 || off+n > len(tiff) || off+n < off {
		return nil, false
	}
	return tiff[off : off+n], true
}

// firstUint returns the first SHORT or LONG value of the entry.
func (e tiffEntry) firstUint(tiff []byte, order binary.ByteOrder) (uint32, bool) {
	if e.count == 0 {
		return 0, false
	}
	b, ok := e.payload(tiff, order)
	if !ok {
		return 0, false
	}
	switch e.typ {
	case tiffTypeShort:
		return uint32(order.Uint16(b)), true
	case tiffTypeLong:
		return order.Uint32(b), true
	default:
		return 0, false
	}
}

func parseTIFFHeader(tiff []byte) (binary.ByteOrder, int, error) {
	if len(tiff) < 8 {
		return nil, 0, errors.New("tiff header too small")
	}
	var order binary.ByteOrder
	switch {
	case tiff[0] == 'M' && tiff[1] == 'M':
		order = binary.BigEndian
	case tiff[0] == 'I' && tiff[1] == 'I':
		order = binary.LittleEndian
	default:
		return nil, 0, errors.New("tiff endian invalid")
	}
	if order.Uint16(tiff[2:4]) != 0x002A {
		return nil, 0, errors.New("tiff magic invalid")
	}
	ifdOffset := int(order.Uint32(tiff[4:8]))
	if ifdOffset < 8 || ifdOffset+2 > len(tiff) {
		return nil, 0, errors.New("tiff ifd offset invalid")
	}
	return order, ifdOffset, nil
}

func readIFD(tiff []byte, order binary.ByteOrder, offset int) ([]tiffEntry, error) {
	if offset < 0 || offset+2 > len(tiff) {
		return nil, errors.New("tiff ifd offset invalid")
	}
	count := int(order.Uint16(tiff[offset : offset+2]))
	if count > maxIFDEntries {
		return nil, errors.New("tiff ifd too large")
	}
	pos := offset + 2
	entries := make([]tiffEntry, 0, count)
	for i := 0; i < count; i++ {
		if pos+12 > len(tiff) {
			return entries, errors.New("tiff ifd truncated")
		}
		e := tiffEntry{
			tag:   order.Uint16(tiff[pos : pos+2]),
			typ:   order.Uint16(tiff[pos+2 : pos+4]),
			count: order.Uint32(tiff[pos+4 : pos+8]),
		}
		copy(e.value[:], tiff[pos+8:pos+12])
		entries = append(entries, e)
		pos += 12
	}
	return entries, nil
}

// exifOrientation reads the Orientation tag of IFD0 from a TIFF-structured EXIF block.
// Any parse failure yields OrientationNormal.
func exifOrientation(tiff []byte) Orientation {
	order, ifd, err := parseTIFFHeader(tiff)
	if err != nil {
		return OrientationNormal
	}
	entries, _ := readIFD(tiff, order, ifd)
	for _, e := range entries {
		if e.tag != tiffTagOrientation {
			continue
		}
		v, ok := e.firstUint(tiff, order)
		if !ok {
			return OrientationNormal
		}
		return orientationFromTag(v)
	}
	return OrientationNormal
}

// tiffMeta reads orientation, ICC profile and bit depth from a TIFF file.
func tiffMeta(data []byte) (containerMeta, error) {
	m := containerMeta{format: formatTIFF, orientation: OrientationNormal}
	order, ifd, err := parseTIFFHeader(data)
	if err != nil {
		return m, err
	}
	entries, err := readIFD(data, order, ifd)
	for _, e := range entries {
		switch e.tag {
		case tiffTagOrientation:
			if v, ok := e.firstUint(data, order); ok {
				m.orientation = orientationFromTag(v)
			}
		case tiffTagICCProfile:
			if b, ok := e.payload(data, order); ok {
				m.icc = append([]byte(nil), b...)
			}
		case tiffTagBitsPerSample:
			if v, ok := e.firstUint(data, order); ok {
				m.bitDepth = int(v)
			}
		}
	}
	return m, err
}
