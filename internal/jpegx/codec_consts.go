// Package jpegx walks JPEG marker segments without decoding entropy-coded data.
package jpegx

// Markers.
const (
	MarkerStart = 0xFF
	MarkerSOI   = 0xD8 // Start Of Image.
	MarkerEOI   = 0xD9 // End Of Image.
	MarkerSOS   = 0xDA // Start Of Scan.
	MarkerDQT   = 0xDB // Define Quantization Table.
	MarkerDHT   = 0xC4 // Define Huffman Table.
	MarkerAPP0  = 0xE0
	MarkerAPP1  = 0xE1
	MarkerAPP2  = 0xE2

	sof0Marker  = 0xC0 // Start Of Frame (Baseline Sequential).
	sof15Marker = 0xCF
	dacMarker   = 0xCC // Define Arithmetic Coding, shares the SOF range.
	rst0Marker  = 0xD0
	rst7Marker  = 0xD7
	temMarker   = 0x01
)

func isSOF(m byte) bool {
	return m >= sof0Marker && m <= sof15Marker && m != MarkerDHT && m != dacMarker && m != 0xC8
}

func isStandalone(m byte) bool {
	return (m >= rst0Marker && m <= rst7Marker) || m == temMarker || m == MarkerSOI
}
