// Package channel exposes the normalizer as named method calls with loosely typed arguments.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"

	"golang.org/x/sync/semaphore"

	"github.com/vearutop/hdrsdr"
)

// Method names.
const (
	MethodConvert            = "convert"
	MethodGetPlatformVersion = "getPlatformVersion"
)

// Argument keys of MethodConvert.
const (
	ArgImage   = "image"
	ArgQuality = "quality"
)

// ErrNotImplemented is returned for unknown methods.
var ErrNotImplemented = errors.New("method not implemented")

// Call is a method invocation.
type Call struct {
	Method string
	Args   map[string]any
}

// Error is a failed call reported with a short category code.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// Converter normalizes encoded images, *hdrsdr.Normalizer implements it.
type Converter interface {
	Normalize(data []byte, quality int) ([]byte, error)
}

// HandlerOptions configures Handler.
type HandlerOptions struct {
	// Workers bounds concurrent conversions, GOMAXPROCS when not positive.
	Workers int
	// DefaultQuality applies when the call has no quality argument.
	DefaultQuality int
	Logger         *slog.Logger
}

// Handler dispatches calls to a Converter on a bounded pool.
type Handler struct {
	conv Converter
	sem  *semaphore.Weighted
	opts HandlerOptions
}

// NewHandler creates a Handler.
func NewHandler(conv Converter, opts ...func(o *HandlerOptions)) *Handler {
	o := HandlerOptions{
		Workers:        runtime.GOMAXPROCS(0),
		DefaultQuality: hdrsdr.DefaultQuality,
	}
	for _, applyOpt := range opts {
		applyOpt(&o)
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return &Handler{conv: conv, sem: semaphore.NewWeighted(int64(o.Workers)), opts: o}
}

// Handle runs call. Conversions wait for a free worker while ctx allows,
// a started conversion is not interrupted.
func (h *Handler) Handle(ctx context.Context, call Call) (any, error) {
	switch call.Method {
	case MethodGetPlatformVersion:
		return PlatformVersion(), nil
	case MethodConvert:
		return h.convert(ctx, call.Args)
	default:
		return nil, fmt.Errorf("%w: %q", ErrNotImplemented, call.Method)
	}
}

// PlatformVersion describes the host as "<GOOS> <GOARCH> <go version>".
func PlatformVersion() string {
	return runtime.GOOS + " " + runtime.GOARCH + " " + runtime.Version()
}

func (h *Handler) convert(ctx context.Context, args map[string]any) ([]byte, error) {
	img, ok := args[ArgImage].([]byte)
	if !ok || img == nil {
		return nil, &Error{Code: hdrsdr.KindArgument.Code(), Message: "no image"}
	}
	quality, err := qualityArg(args[ArgQuality], h.opts.DefaultQuality)
	if err != nil {
		return nil, &Error{Code: hdrsdr.KindArgument.Code(), Message: err.Error()}
	}

	if err := h.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer h.sem.Release(1)

	out, err := h.conv.Normalize(img, quality)
	if err != nil {
		h.opts.Logger.Debug("convert failed", "size", len(img), "quality", quality, "error", err)
		return nil, &Error{Code: hdrsdr.CodeOf(err), Message: err.Error()}
	}
	return out, nil
}

// qualityArg accepts the numeric types produced by common argument codecs.
func qualityArg(v any, def int) (int, error) {
	switch q := v.(type) {
	case nil:
		return def, nil
	case int:
		return q, nil
	case int32:
		return int(q), nil
	case int64:
		return int(q), nil
	case float64:
		if math.IsNaN(q) || math.IsInf(q, 0) {
			return 0, fmt.Errorf("invalid quality %v", q)
		}
		return int(math.Round(math.Max(-1, math.Min(q, 101)))), nil
	case json.Number:
		i, err := q.Int64()
		if err != nil {
			return 0, fmt.Errorf("invalid quality %q", q.String())
		}
		return int(i), nil
	default:
		return 0, fmt.Errorf("invalid quality type %T", v)
	}
}
