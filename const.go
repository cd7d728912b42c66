package hdrsdr

const (
	sdrWhiteNits = 203.0
	pqMaxNits    = 10000.0
	hlgMaxNits   = 1000.0
	hlgSystemGam = 1.2
)

// DefaultQuality is the JPEG quality used when a caller does not provide one.
const DefaultQuality = 90

const (
	minQuality = 0
	maxQuality = 100
)

// adobeRGBGamma is the pure power curve of Adobe RGB (1998), 563/256.
const adobeRGBGamma = 2.19921875

const (
	formatJPEG = "jpeg"
	formatPNG  = "png"
	formatWebP = "webp"
	formatTIFF = "tiff"
	formatHEIF = "heif"
	formatGIF  = "gif"
	formatBMP  = "bmp"
	formatEXR  = "exr"
)
