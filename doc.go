// Package hdrsdr converts HDR and wide-gamut encoded images into standard-dynamic-range sRGB JPEG.
//
// Container metadata (EXIF orientation, ICC, CICP/nclx, OpenEXR chromaticities) is parsed in Go,
// pixels are decoded through the image registry, remapped to sRGB with D65 matrices, baked into
// upright orientation and re-encoded as an 8-bit JPEG. Values above SDR white are clipped.
//
// HEIC decoding and the jpegli encoder run as WebAssembly, no cgo is required.
// Build with the noheic tag to leave HEIC out.
package hdrsdr
