package config

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func environ(vars ...string) func() []string {
	return func() []string { return vars }
}

func TestLoad_defaults(t *testing.T) {
	cfg, err := load(environ("HOME=/root", "PATH=/usr/bin"))
	require.NoError(t, err)

	want := Default()
	assert.Equal(t, &want, cfg)
	assert.Equal(t, 90, cfg.Quality)
	assert.Equal(t, runtime.GOMAXPROCS(0), cfg.Workers)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_env(t *testing.T) {
	cfg, err := load(environ(
		"HDRSDR_QUALITY=75",
		"HDRSDR_WORKERS= 3 ",
		"HDRSDR_MAX_DIMENSION=2048",
		"HDRSDR_PASSTHROUGH_SRGB=true",
		"HDRSDR_ENCODER=std",
		"HDRSDR_DECODER=basic",
		"HDRSDR_LOG_LEVEL=debug",
		"HDRSDR_LOG_JSON=1",
		"HDRSDR_UNKNOWN=ignored",
	))
	require.NoError(t, err)

	assert.Equal(t, &Config{
		Quality:         75,
		Workers:         3,
		MaxDimension:    2048,
		PassthroughSRGB: true,
		Encoder:         "std",
		Decoder:         "basic",
		Log:             Log{Level: "debug", JSON: true},
	}, cfg)
}

func TestLoad_invalid(t *testing.T) {
	for _, v := range []string{
		"HDRSDR_WORKERS=0",
		"HDRSDR_QUALITY=101",
		"HDRSDR_ENCODER=mozjpeg",
		"HDRSDR_DECODER=vips",
		"HDRSDR_LOG_LEVEL=trace",
	} {
		_, err := load(environ(v))
		assert.Error(t, err, v)
	}
}

func TestValidate(t *testing.T) {
	assert.Error(t, Validate(nil))

	cfg := Default()
	assert.NoError(t, Validate(&cfg))

	cfg.Quality = -1
	assert.ErrorContains(t, Validate(&cfg), "Quality")
}
