//go:build !noheic

package hdrsdr

import (
	_ "github.com/gen2brain/heic" // HEIC decoder, enables the wide-gamut decoder.
)
